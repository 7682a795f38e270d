// Package cleanup periodically prunes finished jobs, old webhook deliveries
// and abandoned partial uploads.
package cleanup

import (
	"context"
	"database/sql"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/YannKr/adimport/internal/db"
)

const (
	deliveryRetention = 90 * 24 * time.Hour
	staleUploadAge    = time.Hour
)

type Cleaner struct {
	DB           *sql.DB
	FilesDir     string
	Interval     time.Duration
	JobRetention time.Duration
	cancel       context.CancelFunc
	done         chan struct{}
}

func (c *Cleaner) Start(ctx context.Context) {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.loop(ctx)
	slog.Info("cleanup scheduler started", "interval", c.Interval)
}

func (c *Cleaner) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	slog.Info("cleanup scheduler stopped")
}

func (c *Cleaner) loop(ctx context.Context) {
	defer close(c.done)

	c.RunOnce(ctx)

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

func (c *Cleaner) RunOnce(ctx context.Context) {
	now := time.Now()

	if c.JobRetention > 0 {
		if n, err := db.PruneFinishedJobs(ctx, c.DB, now.Add(-c.JobRetention)); err != nil {
			slog.Error("cleanup: prune jobs", "error", err)
		} else if n > 0 {
			slog.Info("cleanup: pruned finished jobs", "count", n)
		}
	}

	if n, err := db.PruneOldWebhookDeliveries(ctx, c.DB, now.Add(-deliveryRetention)); err != nil {
		slog.Error("cleanup: prune webhook deliveries", "error", err)
	} else if n > 0 {
		slog.Info("cleanup: pruned old webhook deliveries", "count", n)
	}

	if c.FilesDir != "" {
		if n := removeStaleUploads(c.FilesDir, now.Add(-staleUploadAge)); n > 0 {
			slog.Info("cleanup: removed stale partial uploads", "count", n)
		}
	}
}

// removeStaleUploads deletes temp files left behind by interrupted uploads.
func removeStaleUploads(root string, cutoff time.Time) int {
	removed := 0
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			slog.Warn("cleanup: remove partial upload", "path", path, "error", err)
			return nil
		}
		removed++
		return nil
	})
	return removed
}
