// Package importer runs an ad import for a collection: fetch the top-spending
// ads, resolve and store each ad's media, and write the result back.
package importer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/YannKr/adimport/internal/adstats"
	"github.com/YannKr/adimport/internal/config"
	"github.com/YannKr/adimport/internal/creative"
	"github.com/YannKr/adimport/internal/db"
	"github.com/YannKr/adimport/internal/download"
	"github.com/YannKr/adimport/internal/fetcher"
	"github.com/YannKr/adimport/internal/graph"
	"github.com/YannKr/adimport/internal/metric"
	"github.com/YannKr/adimport/internal/model"
	"github.com/YannKr/adimport/internal/resolve"
	"github.com/YannKr/adimport/internal/scraper"
)

const (
	Method = "tiered_top_spend"

	MinMaxAds = 10
	MaxMaxAds = 1000

	dateLayout = "2006-01-02"
)

var ErrCollectionNotFound = errors.New("collection not found")

type CredentialSource interface {
	GetBrandMetaCredentials(ctx context.Context, brandID string) (model.MetaCredentials, error)
}

type Request struct {
	CollectionID string
	DateRange    *model.DateRange
	MaxAds       int
}

type Importer struct {
	DB          *sql.DB
	Credentials CredentialSource
	Graph       config.Graph
	Scraper     config.Scraper
	Pipeline    config.Pipeline
	Metrics     *metric.Metrics
	HTTPClient  *http.Client
	Now         func() time.Time

	scrapes   *scraper.Cache
	downloads *download.Downloader
}

func New(database *sql.DB, creds CredentialSource, store download.Store, cfg *config.Config, m *metric.Metrics) *Importer {
	im := &Importer{
		DB:          database,
		Credentials: creds,
		Graph:       cfg.Graph,
		Scraper:     cfg.Scraper,
		Pipeline:    cfg.Pipeline,
		Metrics:     m,
		Now:         time.Now,
		scrapes:     scraper.NewCache(),
	}
	im.downloads = &download.Downloader{
		Store:     store,
		Meta:      db.AdAssets{DB: database},
		Retries:   cfg.Pipeline.DownloadRetries,
		BaseDelay: cfg.Pipeline.DownloadBaseDelay,
		Timeout:   cfg.Pipeline.DownloadTimeout,
		MinBytes:  cfg.Pipeline.MinAssetBytes,
		Metrics:   m,
	}
	return im
}

// Run imports ads into the requested collection and stores the result on it.
// Per-ad failures are reported in the result rows; only failures that prevent
// obtaining any ad list are returned as errors.
func (im *Importer) Run(ctx context.Context, req Request, progress ProgressFunc) (*model.ImportResult, error) {
	started := time.Now()
	result, err := im.run(ctx, req, progress)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	im.Metrics.ImportFinished(outcome, time.Since(started))
	return result, err
}

func (im *Importer) run(ctx context.Context, req Request, progress ProgressFunc) (*model.ImportResult, error) {
	started := im.now()
	col, err := db.GetCollection(ctx, im.DB, req.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}
	if col == nil {
		return nil, ErrCollectionNotFound
	}

	creds, err := im.Credentials.GetBrandMetaCredentials(ctx, col.BrandID)
	if err != nil {
		return nil, fmt.Errorf("brand credentials: %w", err)
	}

	dateRange := DefaultDateRange(started)
	if req.DateRange != nil && req.DateRange.Since != "" && req.DateRange.Until != "" {
		dateRange = *req.DateRange
	}
	maxAds := ClampMaxAds(req.MaxAds, im.Pipeline.DefaultMaxAds)

	gc := graph.NewClient(im.Graph.GraphURL(), creds.AccessToken, graph.Options{
		CallDelay:  im.Graph.CallDelay,
		Timeout:    im.Graph.Timeout,
		HTTPClient: im.HTTPClient,
		Metrics:    im.Metrics,
	})

	slog.Info("ad import started", "collection_id", col.ID, "account", creds.AdAccountID,
		"since", dateRange.Since, "until", dateRange.Until, "max_ads", maxAds)

	f := &fetcher.Fetcher{
		Graph:           gc,
		Tiers:           im.Pipeline.SpendTiers,
		MaxPagesPerTier: im.Pipeline.MaxPagesPerTier,
		PageSize:        im.Pipeline.PageSize,
		PageDelay:       im.Pipeline.PageDelay,
		TierDelay:       im.Pipeline.TierDelay,
		DateRange:       dateRange,
	}
	ads, err := f.FetchTopSpendingAds(ctx, creds.AdAccountID, maxAds)
	if err != nil {
		return nil, fmt.Errorf("fetch ads: %w", err)
	}

	proc := im.processor(gc, progress)
	pages := creds.PageIDs()
	rows, stats := proc.Process(ctx, col.ID, creds.AdAccountID, pages, ads)

	result := &model.ImportResult{
		Ads:     rows,
		Summary: adstats.Summarize(rows),
		Import: model.ImportMeta{
			Method:       Method,
			ImportedAt:   im.now().UTC(),
			DateRange:    dateRange,
			MaxAds:       maxAds,
			FetchedAds:   len(ads),
			CircuitOpen:  stats.CircuitOpen,
			DurationSecs: im.now().Sub(started).Seconds(),
		},
	}

	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode import result: %w", err)
	}
	if err := db.SaveAdImport(ctx, im.DB, col.ID, string(b), result.Import.ImportedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCollectionNotFound
		}
		return nil, fmt.Errorf("save import result: %w", err)
	}

	slog.Info("ad import finished", "collection_id", col.ID, "ads", len(rows),
		"succeeded", result.Summary.SuccessfulAds, "failed", result.Summary.FailedAds,
		"circuit_open", stats.CircuitOpen)
	return result, nil
}

func (im *Importer) processor(gc *graph.Client, progress ProgressFunc) *Processor {
	s := &scraper.Scraper{
		Endpoint:   im.Scraper.Endpoint,
		APIKey:     im.Scraper.APIKey,
		Delay:      im.Scraper.Delay,
		Timeout:    im.Scraper.Timeout,
		HTTPClient: im.HTTPClient,
		Graph:      gc,
		Cache:      im.scrapes,
		Metrics:    im.Metrics,
	}
	return &Processor{
		Creatives: &creative.Resolver{Graph: gc},
		URLs: resolve.New(gc, s, resolve.Options{
			GuessImageURLs:   im.Pipeline.GuessImageURLs,
			ImageCDNTemplate: im.Pipeline.ImageCDNTemplate,
		}),
		Downloads:    im.downloads,
		BatchSize:    im.Pipeline.BatchSize,
		StaggerDelay: im.Pipeline.StaggerDelay,
		BatchDelay:   im.Pipeline.BatchDelay,
		Threshold:    im.Pipeline.CircuitBreakerThreshold,
		Metrics:      im.Metrics,
		Progress:     progress,
	}
}

func (im *Importer) now() time.Time {
	if im.Now == nil {
		return time.Now()
	}
	return im.Now()
}

// ClampMaxAds applies the default when n is unset and bounds it to [10, 1000].
func ClampMaxAds(n, def int) int {
	if n <= 0 {
		n = def
	}
	if n < MinMaxAds {
		return MinMaxAds
	}
	if n > MaxMaxAds {
		return MaxMaxAds
	}
	return n
}

// DefaultDateRange covers the 30 full days before now.
func DefaultDateRange(now time.Time) model.DateRange {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return model.DateRange{
		Since: today.AddDate(0, 0, -30).Format(dateLayout),
		Until: today.AddDate(0, 0, -1).Format(dateLayout),
	}
}

// ValidDate reports whether s is a YYYY-MM-DD date.
func ValidDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}
