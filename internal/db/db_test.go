package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	adimport "github.com/YannKr/adimport"
	"github.com/YannKr/adimport/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := Migrate(database, adimport.MigrationFS); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func TestMigrateIsIdempotent(t *testing.T) {
	database := openTestDB(t)
	if err := Migrate(database, adimport.MigrationFS); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestUpsertAdAssetKeepsOneRowPerKey(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	a := &model.AdAsset{
		CollectionID: "c1", AdID: "ad1", AssetID: "v1",
		AssetType: model.AssetVideo, OriginalURL: "https://cdn/one.mp4",
		StoragePath: "ad-assets/c1/ad1/v1.mp4", PublicURL: "http://x/files/ad-assets/c1/ad1/v1.mp4",
		FileSize: 4096, MimeType: "video/mp4",
	}
	if err := UpsertAdAsset(ctx, database, a); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	b := *a
	b.ID = ""
	b.FileSize = 8192
	if err := UpsertAdAsset(ctx, database, &b); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	assets, err := ListAdAssets(ctx, database, "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("got %d rows, want 1", len(assets))
	}
	if assets[0].FileSize != 8192 {
		t.Errorf("FileSize = %d, want 8192", assets[0].FileSize)
	}

	got, err := FindAdAsset(ctx, database, "c1", "ad1", "v1")
	if err != nil || got == nil {
		t.Fatalf("find: %v, %v", got, err)
	}
	if got.AssetType != model.AssetVideo {
		t.Errorf("AssetType = %q", got.AssetType)
	}
	missing, err := FindAdAsset(ctx, database, "c1", "ad1", "nope")
	if err != nil || missing != nil {
		t.Errorf("missing asset = %v, %v; want nil, nil", missing, err)
	}
}

func TestCollectionAndIntegration(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	if err := CreateBrand(ctx, database, &model.Brand{ID: "b1", Name: "Brand"}); err != nil {
		t.Fatalf("brand: %v", err)
	}
	if err := CreateCollection(ctx, database, &model.Collection{ID: "c1", BrandID: "b1", Name: "Q3"}); err != nil {
		t.Fatalf("collection: %v", err)
	}
	bi := &model.BrandIntegration{
		BrandID: "b1", Provider: "meta", AccessTokenEnc: "enc", AdAccountID: "123",
		Pages: []string{"p1"},
	}
	if err := UpsertBrandIntegration(ctx, database, bi); err != nil {
		t.Fatalf("integration: %v", err)
	}
	got, err := GetBrandIntegration(ctx, database, "b1", "meta")
	if err != nil || got == nil {
		t.Fatalf("get integration: %v, %v", got, err)
	}
	if got.AdAccountID != "123" || len(got.Pages) != 1 || len(got.ManualPages) != 0 {
		t.Errorf("integration = %+v", got)
	}

	now := time.Now()
	if err := SaveAdImport(ctx, database, "c1", `{"ads":[]}`, now); err != nil {
		t.Fatalf("save import: %v", err)
	}
	c, err := GetCollection(ctx, database, "c1")
	if err != nil || c == nil {
		t.Fatalf("get collection: %v, %v", c, err)
	}
	if c.AdImportJSON != `{"ads":[]}` || c.AdImportedAt == nil {
		t.Errorf("collection = %+v", c)
	}
	if err := SaveAdImport(ctx, database, "missing", "{}", now); err != sql.ErrNoRows {
		t.Errorf("save on missing collection = %v, want sql.ErrNoRows", err)
	}
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	if err := EnqueueJob(ctx, database, &model.Job{ID: "j1", JobType: "ad_import", CollectionID: "c1", InputData: "{}"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, err := ClaimNextJob(ctx, database, []string{"ad_import"})
	if err != nil || job == nil {
		t.Fatalf("claim: %v, %v", job, err)
	}
	if job.State != JobRunning || job.StartedAt == nil {
		t.Errorf("claimed job = %+v", job)
	}
	again, err := ClaimNextJob(ctx, database, []string{"ad_import"})
	if err != nil || again != nil {
		t.Errorf("second claim = %v, %v; want empty queue", again, err)
	}
	if err := CompleteJob(ctx, database, "j1", `{"ok":true}`); err != nil {
		t.Fatalf("complete: %v", err)
	}
	done, err := GetJob(ctx, database, "j1")
	if err != nil || done == nil {
		t.Fatalf("get: %v, %v", done, err)
	}
	if done.State != JobCompleted || done.Progress != 100 || done.CompletedAt == nil {
		t.Errorf("completed job = %+v", done)
	}

	n, err := PruneFinishedJobs(ctx, database, time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Errorf("prune = %d, %v; want 1", n, err)
	}
}

func TestDueWebhookDeliveries(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	for _, d := range []*model.WebhookDelivery{
		{ID: "d1", URL: "http://h", EventType: "e", EventID: "1", PayloadJSON: "{}", AttemptNumber: 1, State: "failed", NextRetryAt: &past},
		{ID: "d2", URL: "http://h", EventType: "e", EventID: "2", PayloadJSON: "{}", AttemptNumber: 1, State: "failed", NextRetryAt: &future},
	} {
		if err := CreateWebhookDelivery(ctx, database, d); err != nil {
			t.Fatalf("create %s: %v", d.ID, err)
		}
	}
	due, err := ListDueWebhookDeliveries(ctx, database, time.Now())
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].ID != "d1" {
		t.Errorf("due = %+v, want only d1", due)
	}
}
