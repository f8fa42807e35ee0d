package main

import (
	"net/http"

	"softphone/internal/httpapi"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "state": h.Session.Snapshot().State, "page": h.Bridge.Attached()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	httpapi.Mount(r, h)
}
