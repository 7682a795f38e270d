package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	adimport "github.com/YannKr/adimport"
	"github.com/YannKr/adimport/internal/cleanup"
	"github.com/YannKr/adimport/internal/config"
	"github.com/YannKr/adimport/internal/credentials"
	"github.com/YannKr/adimport/internal/db"
	"github.com/YannKr/adimport/internal/diskstat"
	"github.com/YannKr/adimport/internal/handler"
	"github.com/YannKr/adimport/internal/importer"
	"github.com/YannKr/adimport/internal/metric"
	"github.com/YannKr/adimport/internal/sse"
	"github.com/YannKr/adimport/internal/storage"
	"github.com/YannKr/adimport/internal/webhook"
	"github.com/YannKr/adimport/internal/worker"
)

func Run(ctx context.Context, cfg *config.Config) error {
	for _, dir := range []string{cfg.DataDir, cfg.FilesDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, adimport.MigrationFS); err != nil {
		return err
	}
	slog.Info("database ready")

	if cfg.TokenEncryptionKey == "" {
		slog.Warn("TOKEN_ENCRYPTION_KEY not set, stored access tokens cannot be decrypted")
	}
	creds := &credentials.Provider{DB: database, Box: credentials.NewBox(cfg.TokenEncryptionKey)}
	store := &storage.Local{Root: cfg.FilesDir(), BaseURL: cfg.BaseURL}
	metrics := metric.New()

	im := importer.New(database, creds, store, cfg, metrics)
	if im.Scraper.Endpoint == "" {
		slog.Info("video scraping disabled, SCRAPER_ENDPOINT not set")
	}

	dispatcher := &webhook.Dispatcher{
		DB:     database,
		URLs:   cfg.WebhookURLs,
		Secret: cfg.WebhookSecret,
	}
	if len(cfg.WebhookURLs) > 0 {
		retrier := &webhook.Retrier{Dispatcher: dispatcher}
		retrier.Start(ctx)
	}

	cleaner := &cleanup.Cleaner{
		DB:           database,
		FilesDir:     cfg.FilesDir(),
		Interval:     time.Duration(cfg.CleanupIntervalMins) * time.Minute,
		JobRetention: time.Duration(cfg.JobRetentionDays) * 24 * time.Hour,
	}
	cleaner.Start(ctx)
	defer cleaner.Stop()

	notifier := &worker.Notifier{Hub: sse.New(), Webhooks: dispatcher}

	pool := worker.NewPool(database, im, notifier, cfg.WorkerCount)
	pool.Start(ctx)
	defer pool.Stop()

	diskCache := diskstat.New(cfg.FilesDir(), 60*time.Second)
	diskCache.Start()
	defer diskCache.Stop()

	apiRL := handler.NewRateLimiter(cfg.APIRatePerSec, cfg.APIRateBurst)
	defer apiRL.Stop()

	h := handler.New(database, cfg, im, notifier, metrics)
	h.DiskCache = diskCache

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h.Routes(apiRL),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server starting", "addr", cfg.ListenAddr, "base_url", cfg.BaseURL, "workers", cfg.WorkerCount)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
