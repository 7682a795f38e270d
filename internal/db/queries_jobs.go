package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/YannKr/adimport/internal/model"
)

const (
	JobPending   = "PENDING"
	JobRunning   = "RUNNING"
	JobCompleted = "COMPLETED"
	JobFailed    = "FAILED"
)

func EnqueueJob(ctx context.Context, database *sql.DB, j *model.Job) error {
	_, err := database.ExecContext(ctx,
		`INSERT INTO jobs (id, job_type, collection_id, state, input_data) VALUES (?, ?, ?, 'PENDING', ?)`,
		j.ID, j.JobType, j.CollectionID, j.InputData,
	)
	return err
}

// ClaimNextJob atomically moves the oldest pending job of the given types to
// RUNNING and returns it; nil when the queue is empty.
func ClaimNextJob(ctx context.Context, database *sql.DB, jobTypes []string) (*model.Job, error) {
	if len(jobTypes) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(jobTypes)), ",")
	args := make([]interface{}, len(jobTypes))
	for i, jt := range jobTypes {
		args[i] = jt
	}

	query := `
		UPDATE jobs
		SET state = 'RUNNING', started_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE id = (
			SELECT id FROM jobs
			WHERE state = 'PENDING' AND job_type IN (` + placeholders + `)
			ORDER BY created_at ASC LIMIT 1
		)
		RETURNING id, job_type, collection_id, state, progress,
		          COALESCE(input_data, ''), created_at, started_at`

	j := &model.Job{}
	var createdAt, startedAt SQLiteTime
	err := database.QueryRowContext(ctx, query, args...).Scan(
		&j.ID, &j.JobType, &j.CollectionID, &j.State, &j.Progress,
		&j.InputData, &createdAt, &startedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	j.CreatedAt = createdAt.Time
	j.StartedAt = startedAt.Ptr()
	return j, nil
}

func CompleteJob(ctx context.Context, database *sql.DB, id, resultJSON string) error {
	_, err := database.ExecContext(ctx,
		`UPDATE jobs SET state = 'COMPLETED', progress = 100, result_data = ?,
		  completed_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE id = ?`, resultJSON, id,
	)
	return err
}

func FailJob(ctx context.Context, database *sql.DB, id, errorMsg string) error {
	_, err := database.ExecContext(ctx,
		`UPDATE jobs SET state = 'FAILED', error_message = ?, completed_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE id = ?`, errorMsg, id,
	)
	return err
}

func UpdateJobProgress(ctx context.Context, database *sql.DB, id string, progress int) error {
	_, err := database.ExecContext(ctx, `UPDATE jobs SET progress = ? WHERE id = ?`, progress, id)
	return err
}

func GetJob(ctx context.Context, database *sql.DB, id string) (*model.Job, error) {
	j := &model.Job{}
	var createdAt, startedAt, completedAt SQLiteTime
	err := database.QueryRowContext(ctx, `
		SELECT id, job_type, collection_id, state, progress,
		       COALESCE(error_message, ''), COALESCE(input_data, ''), COALESCE(result_data, ''),
		       created_at, started_at, completed_at
		FROM jobs WHERE id = ?`, id,
	).Scan(
		&j.ID, &j.JobType, &j.CollectionID, &j.State, &j.Progress,
		&j.ErrorMessage, &j.InputData, &j.ResultData,
		&createdAt, &startedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	j.CreatedAt = createdAt.Time
	j.StartedAt = startedAt.Ptr()
	j.CompletedAt = completedAt.Ptr()
	return j, nil
}

// RequeueRunningJobs returns jobs left RUNNING by a previous process to PENDING.
func RequeueRunningJobs(ctx context.Context, database *sql.DB) (int64, error) {
	res, err := database.ExecContext(ctx,
		`UPDATE jobs SET state = 'PENDING', started_at = NULL, progress = 0 WHERE state = 'RUNNING'`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneFinishedJobs deletes completed or failed jobs that finished before cutoff.
func PruneFinishedJobs(ctx context.Context, database *sql.DB, cutoff time.Time) (int64, error) {
	res, err := database.ExecContext(ctx,
		`DELETE FROM jobs WHERE state IN ('COMPLETED', 'FAILED') AND completed_at < ?`,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
