package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YannKr/adimport/internal/graph"
	"github.com/YannKr/adimport/internal/model"
)

type fakeVideos struct{ owner string }

func (f fakeVideos) Video(ctx context.Context, id string, fields ...string) (*graph.Video, error) {
	if f.owner == "" {
		return &graph.Video{ID: id}, nil
	}
	return &graph.Video{ID: id, From: &model.Ref{ID: f.owner}}, nil
}

func newScraper(t *testing.T, h http.HandlerFunc) (*Scraper, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return &Scraper{
		Endpoint: srv.URL,
		APIKey:   "key",
		Graph:    fakeVideos{owner: "page9"},
		Cache:    NewCache(),
	}, &hits
}

func TestVideoURLIsMemoized(t *testing.T) {
	s, hits := newScraper(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "https://www.facebook.com/page9/videos/v1", r.URL.Query().Get("url"))
		w.Write([]byte(`<html><head><meta property="og:video" content="https://video.cdn/v1.mp4"></head></html>`))
	})
	ctx := context.Background()

	u, ok := s.VideoURL(ctx, "v1", nil)
	require.True(t, ok)
	assert.Equal(t, "https://video.cdn/v1.mp4", u)

	u, ok = s.VideoURL(ctx, "v1", nil)
	assert.True(t, ok)
	assert.Equal(t, "https://video.cdn/v1.mp4", u)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestFailedScrapeIsCached(t *testing.T) {
	s, hits := newScraper(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>login required</body></html>`))
	})
	ctx := context.Background()

	_, ok := s.VideoURL(ctx, "v2", []string{"brand1"})
	require.False(t, ok)
	first := atomic.LoadInt32(hits)
	assert.Equal(t, int32(5), first, "owner page, three generic formats, one brand page")

	_, ok = s.VideoURL(ctx, "v2", []string{"brand1"})
	assert.False(t, ok)
	assert.Equal(t, first, atomic.LoadInt32(hits))
	assert.Equal(t, 1, s.Cache.Len())
}

func TestConcurrentLookupsShareOneScrape(t *testing.T) {
	release := make(chan struct{})
	s, hits := newScraper(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`<video src="https://video.cdn/shared.mp4"></video>`))
	})

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = s.VideoURL(context.Background(), "v3", nil)
		}(i)
	}
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "https://video.cdn/shared.mp4", r)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestInterruptedScrapeIsNotCached(t *testing.T) {
	var healthy atomic.Bool
	s, _ := newScraper(t, func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			<-r.Context().Done()
			return
		}
		w.Write([]byte(`<meta property="og:video" content="https://video.cdn/v5.mp4">`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := s.VideoURL(ctx, "v5", nil)
	require.False(t, ok)
	assert.Equal(t, 0, s.Cache.Len())

	healthy.Store(true)
	u, ok := s.VideoURL(context.Background(), "v5", nil)
	require.True(t, ok)
	assert.Equal(t, "https://video.cdn/v5.mp4", u)
}

func TestLiveCallerOutlivesCancelledLeader(t *testing.T) {
	var requests int32
	started := make(chan struct{})
	s, _ := newScraper(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			close(started)
			<-r.Context().Done()
			return
		}
		w.Write([]byte(`<video src="https://video.cdn/v6.mp4"></video>`))
	})

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderDone := make(chan bool)
	go func() {
		_, ok := s.VideoURL(leaderCtx, "v6", nil)
		leaderDone <- ok
	}()
	<-started

	type result struct {
		url string
		ok  bool
	}
	follower := make(chan result)
	go func() {
		u, ok := s.VideoURL(context.Background(), "v6", nil)
		follower <- result{u, ok}
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.False(t, <-leaderDone)
	got := <-follower
	assert.True(t, got.ok)
	assert.Equal(t, "https://video.cdn/v6.mp4", got.url)
}

func TestDisabledScraper(t *testing.T) {
	s := &Scraper{Cache: NewCache()}
	_, ok := s.VideoURL(context.Background(), "v1", nil)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Cache.Len())
}

func TestCandidateURLs(t *testing.T) {
	got := CandidateURLs("77", "owner", []string{"brand", "owner", ""})
	want := []string{
		"https://www.facebook.com/owner/videos/77",
		"https://www.facebook.com/watch/?v=77",
		"https://www.facebook.com/video.php?v=77",
		"https://www.facebook.com/reel/77",
		"https://www.facebook.com/brand/videos/77",
	}
	assert.Equal(t, want, got)

	assert.Len(t, CandidateURLs("77", "", nil), 3)
}

func TestExtractVideoURL(t *testing.T) {
	tests := []struct {
		name, page, want string
	}{
		{"og secure url", `<meta property="og:video:secure_url" content="https://v.cdn/a.mp4?x=1&amp;y=2">`, "https://v.cdn/a.mp4?x=1&y=2"},
		{"source tag", `<video><source src="https://v.cdn/b.mp4" type="video/mp4"></video>`, "https://v.cdn/b.mp4"},
		{"json hd", `<script>{"browser_native_hd_url":"https:\/\/v.cdn\/c.mp4?a=1&2"}</script>`, "https://v.cdn/c.mp4?a=1&2"},
		{"json playable", `{"playable_url":"https:\/\/v.cdn\/d.mp4"}`, "https://v.cdn/d.mp4"},
		{"relative ignored", `<video src="/local.mp4"></video>`, ""},
		{"nothing", `<html></html>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractVideoURL(tt.page))
		})
	}
}

func TestScrapeSkipsFailingCandidates(t *testing.T) {
	s, _ := newScraper(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("url"), "/reel/") {
			w.Write([]byte(`{"browser_native_sd_url":"https:\/\/v.cdn\/reel.mp4"}`))
			return
		}
		http.Error(w, "blocked", http.StatusForbidden)
	})
	u, ok := s.VideoURL(context.Background(), "v4", nil)
	assert.True(t, ok)
	assert.Equal(t, "https://v.cdn/reel.mp4", u)
}
