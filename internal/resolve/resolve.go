// Package resolve turns asset references into downloadable URLs by walking an
// ordered list of lookup strategies.
package resolve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/YannKr/adimport/internal/graph"
	"github.com/YannKr/adimport/internal/model"
)

type Graph interface {
	Video(ctx context.Context, videoID string, fields ...string) (*graph.Video, error)
	AdImages(ctx context.Context, accountID string, hashes []string) ([]graph.Image, error)
	Image(ctx context.Context, accountID, hash string) (*graph.Image, error)
}

type VideoScraper interface {
	VideoURL(ctx context.Context, videoID string, brandPages []string) (string, bool)
}

type Target struct {
	Ref       model.AssetReference
	AccountID string
	Pages     []string
}

type Result struct {
	URL      string
	Guessed  bool
	Strategy string
}

// Strategy is one step of a fallback chain. An empty result with a nil error
// hands over to the next step; an error ends the chain with no URL.
type Strategy struct {
	Name    string
	Resolve func(ctx context.Context, t Target) (Result, error)
}

type Resolver struct {
	videos []Strategy
	images []Strategy
}

type Options struct {
	GuessImageURLs   bool
	ImageCDNTemplate string
}

func New(g Graph, s VideoScraper, opts Options) *Resolver {
	r := &Resolver{
		videos: []Strategy{videoSource(g)},
		images: []Strategy{adImages(g), imageNode(g)},
	}
	if s != nil {
		r.videos = append(r.videos, scraped(s))
	}
	if opts.GuessImageURLs && opts.ImageCDNTemplate != "" {
		r.images = append(r.images, cdnGuess(opts.ImageCDNTemplate))
	}
	return r
}

// DownloadURL resolves ref to a URL, or "" when no strategy produced one.
func (r *Resolver) DownloadURL(ctx context.Context, ref model.AssetReference, accountID string, pages []string) Result {
	t := Target{Ref: ref, AccountID: accountID, Pages: pages}
	chain := r.images
	if ref.Kind == model.AssetVideo {
		chain = r.videos
	}
	return Run(ctx, chain, t)
}

func Run(ctx context.Context, chain []Strategy, t Target) Result {
	for _, s := range chain {
		res, err := s.Resolve(ctx, t)
		if err != nil {
			slog.Warn("asset url resolution stopped", "asset_id", t.Ref.AssetID, "strategy", s.Name, "error", err)
			return Result{}
		}
		if res.URL != "" {
			res.Strategy = s.Name
			return res
		}
		slog.Debug("strategy produced no url", "asset_id", t.Ref.AssetID, "strategy", s.Name)
	}
	return Result{}
}

func videoSource(g Graph) Strategy {
	return Strategy{Name: "video_source", Resolve: func(ctx context.Context, t Target) (Result, error) {
		v, err := g.Video(ctx, t.Ref.AssetID, "source")
		if err != nil {
			if graph.IsPermissionError(err) {
				return Result{}, nil
			}
			return Result{}, fmt.Errorf("video %s source: %w", t.Ref.AssetID, err)
		}
		if v == nil || v.Source == "" {
			return Result{}, fmt.Errorf("video %s has no source", t.Ref.AssetID)
		}
		return Result{URL: v.Source}, nil
	}}
}

func scraped(s VideoScraper) Strategy {
	return Strategy{Name: "scraper", Resolve: func(ctx context.Context, t Target) (Result, error) {
		u, ok := s.VideoURL(ctx, t.Ref.AssetID, t.Pages)
		if !ok {
			return Result{}, nil
		}
		return Result{URL: u}, nil
	}}
}

func adImages(g Graph) Strategy {
	return Strategy{Name: "adimages", Resolve: func(ctx context.Context, t Target) (Result, error) {
		images, err := g.AdImages(ctx, t.AccountID, []string{t.Ref.AssetID})
		if err != nil {
			slog.Debug("adimages lookup failed", "hash", t.Ref.AssetID, "error", err)
			return Result{}, nil
		}
		for _, img := range images {
			if img.Hash == t.Ref.AssetID && img.URL != "" {
				return Result{URL: img.URL}, nil
			}
		}
		if len(images) > 0 {
			return Result{URL: images[0].URL}, nil
		}
		return Result{}, nil
	}}
}

func imageNode(g Graph) Strategy {
	return Strategy{Name: "image_node", Resolve: func(ctx context.Context, t Target) (Result, error) {
		img, err := g.Image(ctx, t.AccountID, t.Ref.AssetID)
		if err != nil || img == nil {
			slog.Debug("image node lookup failed", "hash", t.Ref.AssetID, "error", err)
			return Result{}, nil
		}
		return Result{URL: img.URL}, nil
	}}
}

// cdnGuess builds a URL from the hash alone. The result may not exist; the
// downloader's size check rejects the error pages served for wrong guesses.
func cdnGuess(template string) Strategy {
	return Strategy{Name: "cdn_guess", Resolve: func(ctx context.Context, t Target) (Result, error) {
		return Result{URL: fmt.Sprintf(template, t.Ref.AssetID), Guessed: true}, nil
	}}
}
