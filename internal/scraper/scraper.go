// Package scraper recovers direct video URLs from public video pages when the
// ads API refuses access to a video's source.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/YannKr/adimport/internal/graph"
	"github.com/YannKr/adimport/internal/metric"
)

const maxPageBytes = 8 << 20

type VideoLookup interface {
	Video(ctx context.Context, videoID string, fields ...string) (*graph.Video, error)
}

type Scraper struct {
	Endpoint   string
	APIKey     string
	Delay      time.Duration
	Timeout    time.Duration
	HTTPClient *http.Client
	Graph      VideoLookup
	Cache      *Cache
	Metrics    *metric.Metrics
}

func (s *Scraper) Enabled() bool { return s != nil && s.Endpoint != "" }

// VideoURL returns a playable URL for videoID. Outcomes are memoized in the
// cache and concurrent lookups for the same id share one attempt sequence.
// A lookup cut short by its context is not cached.
func (s *Scraper) VideoURL(ctx context.Context, videoID string, brandPages []string) (string, bool) {
	if !s.Enabled() || videoID == "" {
		return "", false
	}
	if u, ok, found := s.Cache.Get(videoID); found {
		s.Metrics.Scrape("cache_hit")
		return u, ok
	}

	for {
		v, err, _ := s.Cache.group.Do(videoID, func() (interface{}, error) {
			if u, ok, found := s.Cache.Get(videoID); found {
				return cacheEntry{url: u, ok: ok}, nil
			}
			u, err := s.scrape(ctx, videoID, brandPages)
			if err != nil {
				return nil, err
			}
			e := cacheEntry{url: u, ok: u != ""}
			s.Cache.Put(videoID, e.url, e.ok)
			return e, nil
		})
		if err == nil {
			e := v.(cacheEntry)
			return e.url, e.ok
		}
		// The shared attempt belonged to a caller that went away.
		if ctx.Err() != nil {
			return "", false
		}
	}
}

// scrape tries each candidate page in turn. It returns "" when no page yields
// a URL, and an error only when ctx ended before the candidates were exhausted.
func (s *Scraper) scrape(ctx context.Context, videoID string, brandPages []string) (string, error) {
	owner := s.ownerPage(ctx, videoID)
	candidates := CandidateURLs(videoID, owner, brandPages)

	for i, target := range candidates {
		if i > 0 {
			if err := sleep(ctx, s.Delay); err != nil {
				return "", err
			}
		}
		body, err := s.fetch(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				slog.Debug("scrape interrupted", "video_id", videoID, "error", ctx.Err())
				return "", ctx.Err()
			}
			s.Metrics.Scrape("error")
			slog.Debug("scrape attempt failed", "video_id", videoID, "url", target, "error", err)
			continue
		}
		if u := ExtractVideoURL(body); u != "" {
			s.Metrics.Scrape("success")
			slog.Info("scraped video url", "video_id", videoID, "page_url", target)
			return u, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.Metrics.Scrape("failure")
	slog.Warn("no video url found by scraping", "video_id", videoID, "attempts", len(candidates))
	return "", nil
}

func (s *Scraper) ownerPage(ctx context.Context, videoID string) string {
	if s.Graph == nil {
		return ""
	}
	v, err := s.Graph.Video(ctx, videoID, "from")
	if err != nil || v == nil || v.From == nil {
		return ""
	}
	return v.From.ID
}

func (s *Scraper) fetch(ctx context.Context, target string) (string, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	q := url.Values{"api_key": {s.APIKey}, "url": {target}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("scraping service returned %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CandidateURLs lists public pages that may embed the video, most specific first.
func CandidateURLs(videoID, ownerPage string, brandPages []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(u string) {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	if ownerPage != "" {
		add(fmt.Sprintf("https://www.facebook.com/%s/videos/%s", ownerPage, videoID))
	}
	add("https://www.facebook.com/watch/?v=" + videoID)
	add("https://www.facebook.com/video.php?v=" + videoID)
	add("https://www.facebook.com/reel/" + videoID)
	for _, p := range brandPages {
		if p != "" {
			add(fmt.Sprintf("https://www.facebook.com/%s/videos/%s", p, videoID))
		}
	}
	return out
}

var jsonVideoURL = regexp.MustCompile(`"(browser_native_hd_url|playable_url_quality_hd|playable_url|browser_native_sd_url)"\s*:\s*("(?:[^"\\]|\\.)*")`)

// ExtractVideoURL finds a direct video URL in a rendered page.
func ExtractVideoURL(page string) string {
	if u := videoFromMarkup(page); u != "" {
		return u
	}
	for _, m := range jsonVideoURL.FindAllStringSubmatch(page, -1) {
		var u string
		if err := json.Unmarshal([]byte(m[2]), &u); err != nil {
			continue
		}
		if validVideoURL(u) {
			return u
		}
	}
	return ""
}

func videoFromMarkup(page string) string {
	z := html.NewTokenizer(strings.NewReader(page))
	var tagSrc string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tagSrc
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "meta":
				prop, content := attr(tok, "property"), attr(tok, "content")
				if prop == "og:video" || prop == "og:video:secure_url" || prop == "og:video:url" {
					if validVideoURL(content) {
						return content
					}
				}
			case "video", "source":
				if src := attr(tok, "src"); tagSrc == "" && validVideoURL(src) {
					tagSrc = src
				}
			}
		}
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func validVideoURL(u string) bool {
	if !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") {
		return false
	}
	parsed, err := url.Parse(u)
	return err == nil && parsed.Host != ""
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
