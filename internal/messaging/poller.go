package messaging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"softphone/internal/apperr"
	"softphone/internal/metrics"
	"softphone/internal/notify"
)

type Publisher interface {
	Publish(kind notify.Kind, data any)
}

// Poller refreshes the conversation list on an interval and publishes it.
type Poller struct {
	svc      *Service
	pub      Publisher
	interval time.Duration
	log      *slog.Logger
}

func NewPoller(svc *Service, pub Publisher, interval time.Duration, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{svc: svc, pub: pub, interval: interval, log: log.With("component", "sms_poller")}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Poll(ctx)
		}
	}
}

// Poll does one refresh. Offline or unconfigured sessions are skipped quietly.
func (p *Poller) Poll(ctx context.Context) {
	convs, err := p.svc.Conversations(ctx)
	switch {
	case errors.Is(err, apperr.ErrNotConnected), errors.Is(err, apperr.ErrMissingCredentials):
		metrics.SMSPolls.WithLabelValues("skipped").Inc()
		return
	case err != nil:
		metrics.SMSPolls.WithLabelValues("error").Inc()
		p.log.Warn("conversation refresh failed", "err", err)
		return
	}
	metrics.SMSPolls.WithLabelValues("ok").Inc()
	p.pub.Publish(notify.KindSMS, convs)
}
