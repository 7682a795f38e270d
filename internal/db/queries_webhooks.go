package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/YannKr/adimport/internal/model"
)

func CreateWebhookDelivery(ctx context.Context, database *sql.DB, d *model.WebhookDelivery) error {
	_, err := database.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (id, url, event_type, event_id, payload_json,
		  attempt_number, state, next_retry_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.URL, d.EventType, d.EventID, d.PayloadJSON,
		d.AttemptNumber, d.State, formatTimePtr(d.NextRetryAt),
	)
	return err
}

func UpdateWebhookDelivery(ctx context.Context, database *sql.DB, d *model.WebhookDelivery) error {
	_, err := database.ExecContext(ctx,
		`UPDATE webhook_deliveries SET attempt_number = ?, response_status = ?,
		  response_body_preview = ?, error_message = ?, state = ?, next_retry_at = ?, delivered_at = ?
		 WHERE id = ?`,
		d.AttemptNumber, d.ResponseStatus, d.ResponseBodyPreview, d.ErrorMessage, d.State,
		formatTimePtr(d.NextRetryAt), formatTimePtr(d.DeliveredAt), d.ID,
	)
	return err
}

// ListDueWebhookDeliveries returns failed deliveries whose retry time has passed.
func ListDueWebhookDeliveries(ctx context.Context, database *sql.DB, now time.Time) ([]model.WebhookDelivery, error) {
	rows, err := database.QueryContext(ctx,
		`SELECT id, url, event_type, event_id, payload_json, attempt_number, state, next_retry_at, created_at
		 FROM webhook_deliveries
		 WHERE state = 'failed' AND next_retry_at IS NOT NULL AND next_retry_at <= ?
		 ORDER BY next_retry_at ASC`, formatTime(now),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WebhookDelivery
	for rows.Next() {
		var d model.WebhookDelivery
		var nextRetry, createdAt SQLiteTime
		if err := rows.Scan(&d.ID, &d.URL, &d.EventType, &d.EventID, &d.PayloadJSON,
			&d.AttemptNumber, &d.State, &nextRetry, &createdAt); err != nil {
			return nil, err
		}
		d.NextRetryAt = nextRetry.Ptr()
		d.CreatedAt = createdAt.Time
		out = append(out, d)
	}
	return out, rows.Err()
}

func GetWebhookDelivery(ctx context.Context, database *sql.DB, id string) (*model.WebhookDelivery, error) {
	d := &model.WebhookDelivery{}
	var status sql.NullInt64
	var nextRetry, deliveredAt, createdAt SQLiteTime
	err := database.QueryRowContext(ctx,
		`SELECT id, url, event_type, event_id, payload_json, attempt_number, response_status,
		  response_body_preview, error_message, state, next_retry_at, delivered_at, created_at
		 FROM webhook_deliveries WHERE id = ?`, id,
	).Scan(&d.ID, &d.URL, &d.EventType, &d.EventID, &d.PayloadJSON, &d.AttemptNumber, &status,
		&d.ResponseBodyPreview, &d.ErrorMessage, &d.State, &nextRetry, &deliveredAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if status.Valid {
		code := int(status.Int64)
		d.ResponseStatus = &code
	}
	d.NextRetryAt = nextRetry.Ptr()
	d.DeliveredAt = deliveredAt.Ptr()
	d.CreatedAt = createdAt.Time
	return d, nil
}

func PruneOldWebhookDeliveries(ctx context.Context, database *sql.DB, cutoff time.Time) (int64, error) {
	res, err := database.ExecContext(ctx,
		`DELETE FROM webhook_deliveries WHERE created_at < ? AND state IN ('delivered', 'exhausted')`,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
