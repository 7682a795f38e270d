package download

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adimport "github.com/YannKr/adimport"
	"github.com/YannKr/adimport/internal/db"
	"github.com/YannKr/adimport/internal/model"
	"github.com/YannKr/adimport/internal/storage"
)

func newDownloader(t *testing.T) (*Downloader, *storage.Local) {
	t.Helper()
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database, adimport.MigrationFS))

	store := &storage.Local{Root: t.TempDir(), BaseURL: "http://assets.test"}
	return &Downloader{
		Store:     store,
		Meta:      db.AdAssets{DB: database},
		Retries:   2,
		BaseDelay: time.Millisecond,
		Timeout:   2 * time.Second,
		MinBytes:  1000,
	}, store
}

func TestDownloadIsIdempotent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(bytes.Repeat([]byte{1}, 4096))
	}))
	defer srv.Close()
	d, _ := newDownloader(t)
	ctx := context.Background()

	first, err := d.DownloadAndStore(ctx, srv.URL+"/v1", "v1", model.AssetVideo, "c1", "ad1")
	require.NoError(t, err)
	assert.Equal(t, "http://assets.test/files/ad-assets/c1/ad1/v1.mp4", first)

	second, err := d.DownloadAndStore(ctx, srv.URL+"/v1", "v1", model.AssetVideo, "c1", "ad1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestConcurrentDownloadsShareOneFetch(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		w.Header().Set("Content-Type", "image/png")
		w.Write(bytes.Repeat([]byte{2}, 2048))
	}))
	defer srv.Close()
	d, _ := newDownloader(t)

	var wg sync.WaitGroup
	urls := make([]string, 5)
	for i := range urls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			urls[i], _ = d.DownloadAndStore(context.Background(), srv.URL, "h1", model.AssetImage, "c1", "ad1")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, u := range urls {
		assert.Equal(t, "http://assets.test/files/ad-assets/c1/ad1/h1.png", u)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestCancelledCallerDoesNotFailSharedDownload(t *testing.T) {
	var hits int32
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			close(started)
			<-r.Context().Done()
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(bytes.Repeat([]byte{3}, 4096))
	}))
	defer srv.Close()
	d, _ := newDownloader(t)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error)
	go func() {
		_, err := d.DownloadAndStore(leaderCtx, srv.URL, "v9", model.AssetVideo, "c1", "ad1")
		leaderErr <- err
	}()
	<-started

	type result struct {
		url string
		err error
	}
	follower := make(chan result)
	go func() {
		u, err := d.DownloadAndStore(context.Background(), srv.URL, "v9", model.AssetVideo, "c1", "ad1")
		follower <- result{u, err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-leaderErr, context.Canceled)
	got := <-follower
	require.NoError(t, got.err)
	assert.Equal(t, "http://assets.test/files/ad-assets/c1/ad1/v9.mp4", got.url)
}

func TestUndersizedBodyIsRejected(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(bytes.Repeat([]byte{0}, 512))
	}))
	defer srv.Close()
	d, _ := newDownloader(t)

	_, err := d.DownloadAndStore(context.Background(), srv.URL, "h1", model.AssetImage, "c1", "ad1")
	assert.True(t, errors.Is(err, ErrUndersized), "err = %v", err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "undersized bodies are not retried")

	found, err := d.Meta.FindAsset(context.Background(), "c1", "ad1", "h1")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRetriesTransientFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write(bytes.Repeat([]byte{3}, 1500))
	}))
	defer srv.Close()
	d, _ := newDownloader(t)

	u, err := d.DownloadAndStore(context.Background(), srv.URL, "v9", model.AssetVideo, "c1", "ad2")
	require.NoError(t, err)
	assert.Contains(t, u, "/ad-assets/c1/ad2/v9.")
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestGivesUpAfterRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()
	d, _ := newDownloader(t)

	_, err := d.DownloadAndStore(context.Background(), srv.URL, "v1", model.AssetVideo, "c1", "ad1")
	assert.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

type failingMeta struct{}

func (failingMeta) FindAsset(ctx context.Context, c, a, id string) (*model.AdAsset, error) {
	return nil, nil
}

func (failingMeta) UpsertAsset(ctx context.Context, a *model.AdAsset) error {
	return errors.New("disk full")
}

func TestMetadataWriteFailureIsIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(bytes.Repeat([]byte{4}, 1200))
	}))
	defer srv.Close()
	d, _ := newDownloader(t)
	d.Meta = failingMeta{}

	u, err := d.DownloadAndStore(context.Background(), srv.URL, "h2", model.AssetImage, "c1", "ad1")
	require.NoError(t, err)
	assert.Equal(t, "http://assets.test/files/ad-assets/c1/ad1/h2.jpg", u)
}
