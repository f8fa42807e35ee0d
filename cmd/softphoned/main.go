package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"softphone/internal/backend"
	"softphone/internal/bridge"
	"softphone/internal/config"
	"softphone/internal/contacts"
	"softphone/internal/credentials"
	"softphone/internal/history"
	"softphone/internal/httpapi"
	"softphone/internal/messaging"
	"softphone/internal/notify"
	"softphone/internal/session"
	"softphone/internal/storage"
	"softphone/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn(".env not loaded", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	kv, err := storage.Open(rootCtx, storage.Options{
		Driver:      cfg.Store.Driver,
		Namespace:   cfg.Store.Namespace,
		SQLitePath:  cfg.Store.SQLitePath,
		PostgresDSN: cfg.PostgresDSN(),
		RedisAddr:   cfg.RedisAddr(),
	})
	if err != nil {
		log.Error("store init failed", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer kv.Close()

	creds := credentials.NewStore(kv, log)
	book := contacts.NewStore(kv, log)
	calls := history.NewStore(kv, book, cfg.Session.HistoryMaxItems, log)

	relay := backend.New(cfg.Backend.URL, backend.Options{
		Timeout: cfg.Backend.Timeout,
		RPS:     cfg.Backend.RPS,
		Logger:  log,
	})
	hub := notify.NewHub(0)
	br := bridge.New(0, log)

	ctl := session.New(session.Deps{
		Credentials: creds,
		Tokens:      relay,
		Devices:     br,
		History:     calls,
		Observer:    httpapi.PublishSession(hub),
		Logger:      log,
	}, session.Options{RegisterTimeout: cfg.Session.RegisterTimeout})

	sms := messaging.NewService(relay, creds, ctl, log)
	poller := messaging.NewPoller(sms, hub, cfg.Session.SMSPollInterval, log)
	go poller.Run(rootCtx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, httpapi.Handlers{
		Credentials: creds,
		Contacts:    book,
		History:     calls,
		Session:     ctl,
		Messaging:   sms,
		Hub:         hub,
		Bridge:      br,
	})

	// No WriteTimeout: the SSE streams stay open for the life of the page.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return rootCtx },
	}

	go func() {
		log.Info("softphone listening", "addr", srv.Addr, "env", cfg.App.Env, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	ctl.Disconnect()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	ctl.Wait()
}
