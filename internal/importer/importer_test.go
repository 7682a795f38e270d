package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adimport "github.com/YannKr/adimport"
	"github.com/YannKr/adimport/internal/config"
	"github.com/YannKr/adimport/internal/credentials"
	"github.com/YannKr/adimport/internal/db"
	"github.com/YannKr/adimport/internal/graph"
	"github.com/YannKr/adimport/internal/model"
	"github.com/YannKr/adimport/internal/storage"
)

type staticCreds struct {
	creds model.MetaCredentials
	err   error
}

func (s staticCreds) GetBrandMetaCredentials(ctx context.Context, brandID string) (model.MetaCredentials, error) {
	return s.creds, s.err
}

// newGraphServer fakes the ads graph and the media CDN on one server.
func newGraphServer(t *testing.T, adsStatus int) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v21.0/act_1/ads":
			if adsStatus != http.StatusOK {
				w.WriteHeader(adsStatus)
				w.Write([]byte(`{"error":{"message":"Session has expired","type":"OAuthException","code":190}}`))
				return
			}
			w.Write([]byte(`{"data":[
				{"id":"ad2","name":"Image ad","insights":{"data":[{"spend":"300","impressions":"900"}]}},
				{"id":"ad1","name":"Video ad","insights":{"data":[{"spend":"500","impressions":"1000",
					"actions":[{"action_type":"video_view","value":"200"},{"action_type":"purchase","value":"5"}],
					"action_values":[{"action_type":"purchase","value":"1000"}]}]}}
			]}`))
		case "/v21.0/ad1":
			w.Write([]byte(`{"creative":{"id":"cr1","video_id":"v1","thumbnail_url":"https://thumb/1"}}`))
		case "/v21.0/ad2":
			w.Write([]byte(`{"creative":{"id":"cr2","image_hash":"h1","thumbnail_url":"https://thumb/2"}}`))
		case "/v21.0/v1":
			fmt.Fprintf(w, `{"id":"v1","source":%q}`, srv.URL+"/cdn/v1.mp4")
		case "/v21.0/act_1/adimages":
			fmt.Fprintf(w, `{"data":[{"hash":"h1","url":%q}]}`, srv.URL+"/cdn/h1.jpg")
		default:
			if strings.HasPrefix(r.URL.Path, "/cdn/") {
				if strings.HasSuffix(r.URL.Path, ".mp4") {
					w.Header().Set("Content-Type", "video/mp4")
				} else {
					w.Header().Set("Content-Type", "image/jpeg")
				}
				w.Write(bytes.Repeat([]byte{7}, 2048))
				return
			}
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestImporter(t *testing.T, graphURL string, creds CredentialSource) *Importer {
	t.Helper()
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database, adimport.MigrationFS))

	ctx := context.Background()
	require.NoError(t, db.CreateBrand(ctx, database, &model.Brand{ID: "b1", Name: "Brand"}))
	require.NoError(t, db.CreateCollection(ctx, database, &model.Collection{ID: "c1", BrandID: "b1", Name: "Launch"}))

	cfg := &config.Config{
		Graph: config.Graph{BaseURL: graphURL, APIVersion: "v21.0", Timeout: 2 * time.Second},
		Pipeline: config.Pipeline{
			SpendTiers:              []float64{1000, 100},
			MaxPagesPerTier:         2,
			PageSize:                50,
			BatchSize:               5,
			CircuitBreakerThreshold: 10,
			DownloadTimeout:         2 * time.Second,
			MinAssetBytes:           1000,
			DefaultMaxAds:           100,
		},
	}
	store := &storage.Local{Root: t.TempDir(), BaseURL: "http://app.test"}
	return New(database, creds, store, cfg, nil)
}

var testCreds = staticCreds{creds: model.MetaCredentials{AccessToken: "tok", AdAccountID: "1", Pages: []string{"p1"}}}

func TestRunImportsAndStoresResult(t *testing.T) {
	srv := newGraphServer(t, http.StatusOK)
	im := newTestImporter(t, srv.URL, testCreds)
	ctx := context.Background()

	var progressed int
	res, err := im.Run(ctx, Request{CollectionID: "c1"}, func(done, total int) { progressed = done })
	require.NoError(t, err)

	require.Len(t, res.Ads, 2)
	assert.Equal(t, "ad1", res.Ads[0].AdID, "rows ordered by spend")
	assert.Equal(t, "ad2", res.Ads[1].AdID)
	for _, row := range res.Ads {
		assert.Equal(t, model.RowSuccess, row.Status, "row %s: %s", row.AdID, row.Error)
	}
	assert.Equal(t, "http://app.test/files/ad-assets/c1/ad1/v1.mp4", res.Ads[0].AssetURL)
	assert.Equal(t, "http://app.test/files/ad-assets/c1/ad2/h1.jpg", res.Ads[1].AssetURL)
	assert.Equal(t, 20.0, res.Ads[0].HookRate)
	assert.Equal(t, 100.0, res.Ads[0].CPA)
	assert.Equal(t, 2.0, res.Ads[0].ROAS)
	assert.Equal(t, 2, progressed)

	assert.Equal(t, 800.0, res.Summary.TotalSpend)
	assert.Equal(t, Method, res.Import.Method)
	assert.Equal(t, 100, res.Import.MaxAds)

	col, err := db.GetCollection(ctx, im.DB, "c1")
	require.NoError(t, err)
	require.NotNil(t, col.AdImportedAt)
	var stored model.ImportResult
	require.NoError(t, json.Unmarshal([]byte(col.AdImportJSON), &stored))
	assert.Len(t, stored.Ads, 2)

	assets, err := db.ListAdAssets(ctx, im.DB, "c1")
	require.NoError(t, err)
	assert.Len(t, assets, 2)
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()
	srv := newGraphServer(t, http.StatusOK)

	im := newTestImporter(t, srv.URL, testCreds)
	_, err := im.Run(ctx, Request{CollectionID: "missing"}, nil)
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	im = newTestImporter(t, srv.URL, staticCreds{err: credentials.ErrNoIntegration})
	_, err = im.Run(ctx, Request{CollectionID: "c1"}, nil)
	assert.ErrorIs(t, err, credentials.ErrNoIntegration)

	expired := newGraphServer(t, http.StatusBadRequest)
	im = newTestImporter(t, expired.URL, testCreds)
	_, err = im.Run(ctx, Request{CollectionID: "c1"}, nil)
	require.Error(t, err)
	assert.True(t, graph.IsAuthError(err), "err = %v", err)
	var ge *graph.Error
	assert.True(t, errors.As(err, &ge))
}

func TestClampMaxAds(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 100}, {-5, 100}, {3, 10}, {10, 10}, {250, 250}, {5000, 1000},
	}
	for _, tt := range tests {
		if got := ClampMaxAds(tt.in, 100); got != tt.want {
			t.Errorf("ClampMaxAds(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDefaultDateRange(t *testing.T) {
	now := time.Date(2026, 3, 15, 17, 30, 0, 0, time.UTC)
	got := DefaultDateRange(now)
	want := model.DateRange{Since: "2026-02-13", Until: "2026-03-14"}
	if got != want {
		t.Errorf("DefaultDateRange = %+v, want %+v", got, want)
	}
}
