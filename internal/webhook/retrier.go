package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/YannKr/adimport/internal/db"
)

// Retrier re-attempts failed deliveries whose backoff has elapsed.
type Retrier struct {
	Dispatcher *Dispatcher
	Interval   time.Duration
}

func (r *Retrier) Start(ctx context.Context) {
	if r.Interval == 0 {
		r.Interval = 30 * time.Second
	}
	go r.loop(ctx)
	slog.Info("webhook retrier started", "interval", r.Interval)
}

func (r *Retrier) loop(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

func (r *Retrier) RunOnce(ctx context.Context) {
	due, err := db.ListDueWebhookDeliveries(ctx, r.Dispatcher.DB, time.Now())
	if err != nil {
		slog.Error("webhook retrier: list due deliveries", "error", err)
		return
	}
	for i := range due {
		d := &due[i]
		d.AttemptNumber++
		r.Dispatcher.attempt(ctx, d)
	}
}
