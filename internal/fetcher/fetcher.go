// Package fetcher collects an account's highest-spending ads by scanning
// descending spend tiers.
package fetcher

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/YannKr/adimport/internal/graph"
	"github.com/YannKr/adimport/internal/model"
)

type AdLister interface {
	ListAds(ctx context.Context, q graph.AdsQuery) (*graph.AdsPage, error)
}

type Fetcher struct {
	Graph           AdLister
	Tiers           []float64
	MaxPagesPerTier int
	PageSize        int
	PageDelay       time.Duration
	TierDelay       time.Duration
	DateRange       model.DateRange
}

// FetchTopSpendingAds returns at most target ads ordered by spend, highest first.
// A failing tier is abandoned and the scan moves on; an error is returned only
// when every scanned tier failed and nothing was collected.
func (f *Fetcher) FetchTopSpendingAds(ctx context.Context, accountID string, target int) ([]model.AdRecord, error) {
	seen := make(map[string]bool)
	var all []model.AdRecord
	var firstErr error
	scanned, failed := 0, 0

	for i, threshold := range f.Tiers {
		if len(all) >= target {
			break
		}
		if i > 0 {
			if err := sleep(ctx, f.TierDelay); err != nil {
				return nil, err
			}
		}

		scanned++
		tier, err := f.fetchTier(ctx, accountID, threshold)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			if firstErr == nil {
				firstErr = err
			}
			slog.Warn("abandoning spend tier", "threshold", threshold,
				"unsupported_field", graph.IsUnsupportedField(err), "error", err)
		}

		added := 0
		for _, ad := range tier {
			if seen[ad.ID] {
				continue
			}
			seen[ad.ID] = true
			all = append(all, ad)
			added++
		}
		slog.Info("spend tier scanned", "threshold", threshold, "fetched", len(tier), "added", added, "total", len(all))
	}

	if len(all) == 0 && failed > 0 && failed == scanned {
		return nil, firstErr
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Spend() > all[j].Spend() })
	if len(all) > target {
		all = all[:target]
	}
	return all, nil
}

// fetchTier pages through one threshold. On error it returns what was
// collected before the failing page.
func (f *Fetcher) fetchTier(ctx context.Context, accountID string, threshold float64) ([]model.AdRecord, error) {
	var buf []model.AdRecord
	after := ""
	for page := 0; page < f.MaxPagesPerTier; page++ {
		if page > 0 {
			if err := sleep(ctx, f.PageDelay); err != nil {
				return buf, err
			}
		}
		resp, err := f.Graph.ListAds(ctx, graph.AdsQuery{
			AccountID: accountID,
			MinSpend:  threshold,
			DateRange: f.DateRange,
			Limit:     f.PageSize,
			After:     after,
		})
		if err != nil {
			return buf, err
		}
		for _, ad := range resp.Data {
			st := ad.Stats()
			if st.Spend.Float() >= threshold && st.Impressions.Float() > 0 {
				buf = append(buf, ad)
			}
		}
		after = resp.NextCursor()
		if after == "" {
			return buf, nil
		}
	}
	slog.Debug("max pages reached for tier", "threshold", threshold, "pages", f.MaxPagesPerTier)
	return buf, nil
}

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
