// Package creative loads ad creatives and picks the asset an import should keep.
package creative

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/net/html"

	"github.com/YannKr/adimport/internal/graph"
	"github.com/YannKr/adimport/internal/model"
)

const previewFormat = "MOBILE_FEED_STANDARD"

type Graph interface {
	AdCreative(ctx context.Context, adID string) (*model.Creative, error)
	Creative(ctx context.Context, creativeID string) (*model.Creative, error)
	AdPreviews(ctx context.Context, adID, format string) ([]graph.Preview, error)
}

type Resolver struct {
	Graph Graph
}

// Resolve returns the creative behind an ad, or nil when it could not be loaded.
func (r *Resolver) Resolve(ctx context.Context, adID string) *model.Creative {
	summary, err := r.Graph.AdCreative(ctx, adID)
	if err != nil {
		slog.Warn("fetch ad creative", "ad_id", adID, "error", err)
		return nil
	}
	if summary == nil {
		return nil
	}

	c := summary
	if !hasStructure(summary) && summary.ID != "" {
		detail, err := r.Graph.Creative(ctx, summary.ID)
		if err != nil {
			slog.Warn("fetch creative detail", "ad_id", adID, "creative_id", summary.ID, "error", err)
			return nil
		}
		c = Merge(summary, detail)
	}

	if c.ThumbnailURL == "" && hasMediaReference(c) {
		c.ThumbnailURL = r.previewThumbnail(ctx, adID)
	}
	return c
}

func (r *Resolver) previewThumbnail(ctx context.Context, adID string) string {
	previews, err := r.Graph.AdPreviews(ctx, adID, previewFormat)
	if err != nil {
		slog.Debug("ad preview unavailable", "ad_id", adID, "error", err)
		return ""
	}
	for _, p := range previews {
		if src := iframeSrc(p.Body); src != "" {
			return src
		}
	}
	return ""
}

func iframeSrc(body string) string {
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "iframe" {
				continue
			}
			for _, a := range tok.Attr {
				if a.Key == "src" && a.Val != "" {
					return a.Val
				}
			}
		}
	}
}

func hasStructure(c *model.Creative) bool {
	return c.AssetFeedSpec != nil || c.ObjectStorySpec != nil ||
		c.VideoID != "" || c.ImageHash != "" || c.ImageURL != ""
}

func hasMediaReference(c *model.Creative) bool {
	if c.AssetFeedSpec != nil && (len(c.AssetFeedSpec.Videos) > 0 || len(c.AssetFeedSpec.Images) > 0) {
		return true
	}
	ref, direct := LegacyAsset(*c)
	return ref != nil || direct != ""
}

// Merge combines a creative summary with its full detail record. Non-empty
// summary fields win; the detail fills what the summary lacks.
func Merge(summary, detail *model.Creative) *model.Creative {
	if summary == nil {
		return detail
	}
	out := *summary
	if detail == nil {
		return &out
	}
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&out.ID, detail.ID)
	fill(&out.Name, detail.Name)
	fill(&out.Title, detail.Title)
	fill(&out.Body, detail.Body)
	fill(&out.ThumbnailURL, detail.ThumbnailURL)
	fill(&out.ImageURL, detail.ImageURL)
	fill(&out.ImageHash, detail.ImageHash)
	fill(&out.VideoID, detail.VideoID)
	fill(&out.ObjectType, detail.ObjectType)
	fill(&out.EffectiveObjectStoryID, detail.EffectiveObjectStoryID)
	if out.ObjectStorySpec == nil {
		out.ObjectStorySpec = detail.ObjectStorySpec
	}
	if out.AssetFeedSpec == nil {
		out.AssetFeedSpec = detail.AssetFeedSpec
	}
	return &out
}
