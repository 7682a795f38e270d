package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adimport "github.com/YannKr/adimport"
	"github.com/YannKr/adimport/internal/db"
	"github.com/YannKr/adimport/internal/importer"
	"github.com/YannKr/adimport/internal/model"
	"github.com/YannKr/adimport/internal/sse"
)

type fakeImporter struct {
	got importer.Request
	err error
}

func (f *fakeImporter) Run(ctx context.Context, req importer.Request, progress importer.ProgressFunc) (*model.ImportResult, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	progress(1, 2)
	progress(2, 2)
	return &model.ImportResult{
		Ads:     []model.ProcessedAdRow{{AdID: "a", Status: model.RowSuccess}, {AdID: "b", Status: model.RowError}},
		Summary: model.Summary{TotalAds: 2, SuccessfulAds: 1, FailedAds: 1},
	}, nil
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database, adimport.MigrationFS))
	return database
}

func drain(ch <-chan sse.Event) []sse.Event {
	var out []sse.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestProcessNextCompletesImportJob(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	hub := sse.New()
	events, unsub := hub.Subscribe(sse.CollectionTopic("c1"))
	defer unsub()

	fake := &fakeImporter{}
	pool := NewPool(database, fake, &Notifier{Hub: hub}, 1)
	require.NoError(t, Enqueue(ctx, database, "j1", ImportInput{CollectionID: "c1", MaxAds: 50}))

	ok, err := pool.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, importer.Request{CollectionID: "c1", MaxAds: 50}, fake.got)

	job, err := db.GetJob(ctx, database, "j1")
	require.NoError(t, err)
	assert.Equal(t, db.JobCompleted, job.State)
	var counts model.ImportCounts
	require.NoError(t, json.Unmarshal([]byte(job.ResultData), &counts))
	assert.Equal(t, model.ImportCounts{Imported: 1, Failed: 1, Total: 2, Summary: model.Summary{TotalAds: 2, SuccessfulAds: 1, FailedAds: 1}}, counts)

	var types []string
	for _, ev := range drain(events) {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{EventProgress, EventProgress, EventCompleted}, types)

	ok, err = pool.ProcessNext(ctx)
	assert.NoError(t, err)
	assert.False(t, ok, "queue should be empty")
}

func TestProcessNextRecordsFailure(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	hub := sse.New()
	events, unsub := hub.Subscribe(sse.CollectionTopic("c9"))
	defer unsub()

	pool := NewPool(database, &fakeImporter{err: errors.New("brand credentials: no integration")}, &Notifier{Hub: hub}, 1)
	require.NoError(t, Enqueue(ctx, database, "j2", ImportInput{CollectionID: "c9"}))

	ok, err := pool.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	job, err := db.GetJob(ctx, database, "j2")
	require.NoError(t, err)
	assert.Equal(t, db.JobFailed, job.State)
	assert.Contains(t, job.ErrorMessage, "no integration")

	got := drain(events)
	require.Len(t, got, 1)
	assert.Equal(t, EventFailed, got[0].Type)
	assert.Contains(t, got[0].Data, `"job_id":"j2"`)
}

func TestRunImportWithoutNotifier(t *testing.T) {
	res, err := RunImport(context.Background(), &fakeImporter{}, nil, "", importer.Request{CollectionID: "c1"}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Ads, 2)
}
