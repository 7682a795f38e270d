// Package webhook notifies configured endpoints when imports finish.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/YannKr/adimport/internal/db"
	"github.com/YannKr/adimport/internal/model"
)

const (
	EventImportCompleted = "ad_import.completed"
	EventImportFailed    = "ad_import.failed"

	SignatureHeader = "X-AdImport-Signature"

	StatePending   = "pending"
	StateDelivered = "delivered"
	StateFailed    = "failed"
	StateExhausted = "exhausted"
)

var backoffSchedule = []time.Duration{
	30 * time.Second,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
}

// nextRetryAt returns nil once the schedule is used up.
func nextRetryAt(now time.Time, attemptNumber int) *time.Time {
	idx := attemptNumber - 1
	if idx < 0 || idx >= len(backoffSchedule) {
		return nil
	}
	t := now.Add(backoffSchedule[idx])
	return &t
}

type Event struct {
	EventType string      `json:"event_type"`
	EventID   string      `json:"event_id"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type Dispatcher struct {
	DB     *sql.DB
	URLs   []string
	Secret string
	Client *http.Client

	// Sync attempts deliveries inline instead of in a goroutine.
	Sync bool
}

// Dispatch records one delivery per configured URL and attempts each.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, data interface{}) {
	if d == nil || d.DB == nil || len(d.URLs) == 0 {
		return
	}

	event := Event{
		EventType: eventType,
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("webhook marshal", "event", eventType, "error", err)
		return
	}

	now := time.Now()
	for _, u := range d.URLs {
		delivery := &model.WebhookDelivery{
			ID:            uuid.NewString(),
			URL:           u,
			EventType:     eventType,
			EventID:       event.EventID,
			PayloadJSON:   string(payload),
			AttemptNumber: 1,
			State:         StatePending,
			NextRetryAt:   &now,
		}
		if err := db.CreateWebhookDelivery(ctx, d.DB, delivery); err != nil {
			slog.Error("webhook: create delivery record", "url", u, "error", err)
			continue
		}
		if d.Sync {
			d.attempt(context.Background(), delivery)
		} else {
			go d.attempt(context.Background(), delivery)
		}
	}
}

func (d *Dispatcher) attempt(ctx context.Context, delivery *model.WebhookDelivery) {
	status, preview, err := d.post(ctx, delivery.URL, []byte(delivery.PayloadJSON))
	delivery.ResponseStatus = status
	delivery.ResponseBodyPreview = preview

	if err == nil {
		now := time.Now()
		delivery.State = StateDelivered
		delivery.NextRetryAt = nil
		delivery.DeliveredAt = &now
		delivery.ErrorMessage = ""
		slog.Info("webhook delivered", "url", delivery.URL, "event", delivery.EventType)
	} else {
		delivery.ErrorMessage = err.Error()
		if next := nextRetryAt(time.Now(), delivery.AttemptNumber); next != nil {
			delivery.State = StateFailed
			delivery.NextRetryAt = next
			slog.Warn("webhook failed, will retry", "url", delivery.URL, "event", delivery.EventType,
				"attempt", delivery.AttemptNumber, "next_retry", next)
		} else {
			delivery.State = StateExhausted
			delivery.NextRetryAt = nil
			slog.Warn("webhook exhausted", "url", delivery.URL, "event", delivery.EventType,
				"attempts", delivery.AttemptNumber)
		}
	}

	if err := db.UpdateWebhookDelivery(ctx, d.DB, delivery); err != nil {
		slog.Error("webhook: update delivery record", "id", delivery.ID, "error", err)
	}
}

// Sign returns the hex HMAC-SHA256 of payload, as sent in SignatureHeader.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (d *Dispatcher) post(ctx context.Context, url string, payload []byte) (*int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, "sha256="+Sign(d.Secret, payload))

	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
	code := resp.StatusCode
	if code >= 400 {
		return &code, string(body), fmt.Errorf("webhook returned status %d", code)
	}
	return &code, string(body), nil
}
