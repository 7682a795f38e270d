package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/YannKr/adimport/internal/adstats"
	"github.com/YannKr/adimport/internal/creative"
	"github.com/YannKr/adimport/internal/metric"
	"github.com/YannKr/adimport/internal/model"
	"github.com/YannKr/adimport/internal/resolve"
)

type CreativeResolver interface {
	Resolve(ctx context.Context, adID string) *model.Creative
}

type URLResolver interface {
	DownloadURL(ctx context.Context, ref model.AssetReference, accountID string, pages []string) resolve.Result
}

type AssetDownloader interface {
	DownloadAndStore(ctx context.Context, remoteURL, assetID string, kind model.AssetKind, collectionID, adID string) (string, error)
}

// ProgressFunc is called after each batch with the number of ads finished.
type ProgressFunc func(done, total int)

type Processor struct {
	Creatives    CreativeResolver
	URLs         URLResolver
	Downloads    AssetDownloader
	BatchSize    int
	StaggerDelay time.Duration
	BatchDelay   time.Duration
	Threshold    int
	Metrics      *metric.Metrics
	Progress     ProgressFunc
}

type ProcessStats struct {
	Failures    int
	CircuitOpen bool
}

// Process turns each ad into exactly one row, in input order. Ads run in
// concurrent batches; once failures exceed the threshold the remaining ads
// skip asset work and produce degraded rows.
func (p *Processor) Process(ctx context.Context, collectionID, accountID string, pages []string, ads []model.AdRecord) ([]model.ProcessedAdRow, ProcessStats) {
	rows := make([]model.ProcessedAdRow, len(ads))
	b := &breaker{threshold: int64(p.Threshold), metrics: p.Metrics}
	size := p.BatchSize
	if size <= 0 {
		size = 1
	}

	for start := 0; start < len(ads); start += size {
		end := min(start+size, len(ads))
		if start > 0 {
			if err := sleep(ctx, p.BatchDelay); err != nil {
				p.abandon(rows, ads, start, err)
				break
			}
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				if err := sleep(ctx, time.Duration(i-start)*p.StaggerDelay); err != nil {
					rows[i] = degradedRow(ads[i], err.Error())
					return nil
				}
				rows[i] = p.safeProcess(ctx, b, collectionID, accountID, pages, ads[i])
				return nil
			})
		}
		g.Wait()

		if p.Progress != nil {
			p.Progress(end, len(ads))
		}
	}

	for _, r := range rows {
		p.Metrics.AdProcessed(r.Status)
	}
	return rows, ProcessStats{Failures: int(b.failures.Load()), CircuitOpen: b.open()}
}

func (p *Processor) abandon(rows []model.ProcessedAdRow, ads []model.AdRecord, from int, err error) {
	for i := from; i < len(ads); i++ {
		rows[i] = degradedRow(ads[i], err.Error())
	}
}

func (p *Processor) safeProcess(ctx context.Context, b *breaker, collectionID, accountID string, pages []string, ad model.AdRecord) (row model.ProcessedAdRow) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while processing ad", "ad_id", ad.ID, "panic", r)
			b.fail()
			row = degradedRow(ad, fmt.Sprintf("internal error: %v", r))
		}
	}()
	return p.processAd(ctx, b, collectionID, accountID, pages, ad)
}

func (p *Processor) processAd(ctx context.Context, b *breaker, collectionID, accountID string, pages []string, ad model.AdRecord) model.ProcessedAdRow {
	if b.open() {
		return degradedRow(ad, "circuit breaker open: asset resolution skipped")
	}
	row := baseRow(ad, ad.Creative)
	fail := func(state, msg string) model.ProcessedAdRow {
		b.fail()
		row.Status = model.RowError
		row.Error = msg
		slog.Debug("ad state", "ad_id", ad.ID, "state", "error", "failed_in", state, "error", msg)
		return row
	}

	slog.Debug("ad state", "ad_id", ad.ID, "state", "resolving-creative")
	c := p.Creatives.Resolve(ctx, ad.ID)
	if c == nil {
		c = ad.Creative
	}
	if c == nil {
		return fail("resolving-creative", "creative unavailable")
	}
	row = baseRow(ad, c)

	ref := creative.PickBestAsset(c.AssetFeedSpec)
	var direct string
	if ref == nil {
		ref, direct = creative.LegacyAsset(*c)
	}
	if ref == nil && direct == "" {
		return fail("resolving-creative", "creative has no media asset")
	}
	if ref == nil {
		ref = &model.AssetReference{
			AssetID:   uuid.NewSHA1(uuid.NameSpaceURL, []byte(direct)).String(),
			Kind:      model.AssetImage,
			Placement: creative.PlacementLegacy,
		}
	}
	row.AssetType = ref.Kind
	row.AssetID = ref.AssetID
	row.Placement = ref.Placement
	if ref.Kind == model.AssetVideo {
		row.VideoID = ref.AssetID
	}

	slog.Debug("ad state", "ad_id", ad.ID, "state", "resolving-url")
	remote := direct
	if remote == "" {
		res := p.URLs.DownloadURL(ctx, *ref, accountID, pages)
		remote = res.URL
		row.AssetURLGuessed = res.Guessed
	}
	if remote == "" {
		return fail("resolving-url", "asset url unavailable")
	}
	row.RemoteAssetURL = remote

	slog.Debug("ad state", "ad_id", ad.ID, "state", "downloading")
	local, err := p.Downloads.DownloadAndStore(ctx, remote, ref.AssetID, ref.Kind, collectionID, ad.ID)
	if err != nil {
		return fail("downloading", err.Error())
	}
	row.AssetURL = local
	row.Status = model.RowSuccess
	slog.Debug("ad state", "ad_id", ad.ID, "state", "done")
	return row
}

func baseRow(ad model.AdRecord, c *model.Creative) model.ProcessedAdRow {
	row := model.ProcessedAdRow{
		ID:        uuid.NewString(),
		AdID:      ad.ID,
		AdName:    ad.Name,
		AdStatus:  ad.EffectiveStatus,
		AdMetrics: adstats.Compute(ad.Stats()),
	}
	if row.AdStatus == "" {
		row.AdStatus = ad.Status
	}
	if ad.AdSet != nil {
		row.AdsetID = ad.AdSet.ID
		row.AdsetName = ad.AdSet.Name
	}
	if ad.Campaign != nil {
		row.CampaignID = ad.Campaign.ID
		row.CampaignName = ad.Campaign.Name
	}
	if c != nil {
		row.CreativeID = c.ID
		row.CreativeTitle = c.Title
		row.CreativeBody = c.Body
		row.ThumbnailURL = creative.Thumbnail(c)
		if oss := c.ObjectStorySpec; oss != nil && oss.VideoData != nil {
			if row.CreativeTitle == "" {
				row.CreativeTitle = oss.VideoData.Title
			}
			if row.CreativeBody == "" {
				row.CreativeBody = oss.VideoData.Message
			}
		}
	}
	return row
}

// degradedRow keeps whatever the ad list already carried.
func degradedRow(ad model.AdRecord, msg string) model.ProcessedAdRow {
	row := baseRow(ad, ad.Creative)
	if ad.Creative != nil {
		if ref, _ := creative.LegacyAsset(*ad.Creative); ref != nil {
			row.AssetType = ref.Kind
			row.AssetID = ref.AssetID
			if ref.Kind == model.AssetVideo {
				row.VideoID = ref.AssetID
			}
		}
	}
	row.Status = model.RowError
	row.Error = msg
	return row
}

type breaker struct {
	threshold int64
	failures  atomic.Int64
	tripped   atomic.Bool
	metrics   *metric.Metrics
}

func (b *breaker) fail() {
	n := b.failures.Add(1)
	if n > b.threshold && b.tripped.CompareAndSwap(false, true) {
		slog.Warn("circuit breaker opened", "failures", n, "threshold", b.threshold)
		b.metrics.CircuitTripped()
	}
}

func (b *breaker) open() bool { return b.tripped.Load() }

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
