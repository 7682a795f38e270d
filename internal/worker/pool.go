// Package worker runs queued background jobs.
package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/YannKr/adimport/internal/db"
	"github.com/YannKr/adimport/internal/importer"
	"github.com/YannKr/adimport/internal/model"
)

const (
	JobTypeAdImport = "ad_import"

	idlePoll = 2 * time.Second
)

// ImportInput is the payload of an ad_import job.
type ImportInput struct {
	CollectionID string           `json:"collection_id"`
	DateRange    *model.DateRange `json:"date_range,omitempty"`
	MaxAds       int              `json:"max_ads,omitempty"`
}

func (in ImportInput) Request() importer.Request {
	return importer.Request{CollectionID: in.CollectionID, DateRange: in.DateRange, MaxAds: in.MaxAds}
}

type Pool struct {
	database *sql.DB
	importer Importer
	notifier *Notifier
	workers  int
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewPool(database *sql.DB, im Importer, n *Notifier, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{database: database, importer: im, notifier: n, workers: workers}
}

func (p *Pool) Start(ctx context.Context) {
	if n, err := db.RequeueRunningJobs(ctx, p.database); err != nil {
		slog.Error("requeue interrupted jobs", "error", err)
	} else if n > 0 {
		slog.Info("requeued interrupted jobs", "count", n)
	}

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	slog.Info("worker pool started", "workers", p.workers)
}

func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	slog.Info("worker pool stopped")
}

// Enqueue stores a pending ad_import job under jobID.
func Enqueue(ctx context.Context, database *sql.DB, jobID string, in ImportInput) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return db.EnqueueJob(ctx, database, &model.Job{
		ID:           jobID,
		JobType:      JobTypeAdImport,
		CollectionID: in.CollectionID,
		InputData:    string(b),
	})
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ok, err := p.ProcessNext(ctx)
		if err != nil {
			slog.Error("claim job", "worker", id, "error", err)
		}
		if !ok {
			sleep(ctx, idlePoll)
		}
	}
}

// ProcessNext claims and runs one job. It reports false when the queue was
// empty or the claim failed.
func (p *Pool) ProcessNext(ctx context.Context) (bool, error) {
	job, err := db.ClaimNextJob(ctx, p.database, []string{JobTypeAdImport})
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	slog.Info("processing job", "job", job.ID, "type", job.JobType, "collection_id", job.CollectionID)
	result, err := p.processImport(ctx, job)
	if err != nil {
		slog.Error("job failed", "job", job.ID, "error", err)
		if ferr := db.FailJob(ctx, p.database, job.ID, err.Error()); ferr != nil {
			slog.Error("record job failure", "job", job.ID, "error", ferr)
		}
		return true, nil
	}
	if cerr := db.CompleteJob(ctx, p.database, job.ID, result); cerr != nil {
		slog.Error("record job completion", "job", job.ID, "error", cerr)
	}
	slog.Info("job completed", "job", job.ID)
	return true, nil
}

func (p *Pool) processImport(ctx context.Context, job *model.Job) (string, error) {
	var in ImportInput
	if err := json.Unmarshal([]byte(job.InputData), &in); err != nil {
		return "", fmt.Errorf("decode job input: %w", err)
	}
	if in.CollectionID == "" {
		in.CollectionID = job.CollectionID
	}

	res, err := RunImport(ctx, p.importer, p.notifier, job.ID, in.Request(), func(done, total int) {
		if total == 0 {
			return
		}
		// the final 1% is reserved for writing the result
		pct := done * 99 / total
		if err := db.UpdateJobProgress(ctx, p.database, job.ID, pct); err != nil {
			slog.Warn("update job progress", "job", job.ID, "error", err)
		}
	})
	if err != nil {
		return "", err
	}

	b, err := json.Marshal(res.Counts())
	if err != nil {
		return "", fmt.Errorf("encode job result: %w", err)
	}
	return string(b), nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
