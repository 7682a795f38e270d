package worker

import (
	"context"
	"log/slog"

	"github.com/YannKr/adimport/internal/importer"
	"github.com/YannKr/adimport/internal/model"
	"github.com/YannKr/adimport/internal/sse"
	"github.com/YannKr/adimport/internal/webhook"
)

const (
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

type Importer interface {
	Run(ctx context.Context, req importer.Request, progress importer.ProgressFunc) (*model.ImportResult, error)
}

// Notifier announces import progress and outcomes to SSE subscribers and
// webhook endpoints. Either may be nil.
type Notifier struct {
	Hub      *sse.Hub
	Webhooks *webhook.Dispatcher
}

type progressEvent struct {
	CollectionID string `json:"collection_id"`
	JobID        string `json:"job_id,omitempty"`
	Done         int    `json:"done"`
	Total        int    `json:"total"`
}

type completedEvent struct {
	CollectionID string `json:"collection_id"`
	JobID        string `json:"job_id,omitempty"`
	model.ImportCounts
}

type failedEvent struct {
	CollectionID string `json:"collection_id"`
	JobID        string `json:"job_id,omitempty"`
	Error        string `json:"error"`
}

// RunImport runs one import and announces it. onProgress, if set, is called
// after the event is published.
func RunImport(ctx context.Context, im Importer, n *Notifier, jobID string, req importer.Request, onProgress importer.ProgressFunc) (*model.ImportResult, error) {
	topic := sse.CollectionTopic(req.CollectionID)
	res, err := im.Run(ctx, req, func(done, total int) {
		n.hub().PublishJSON(topic, EventProgress, progressEvent{
			CollectionID: req.CollectionID, JobID: jobID, Done: done, Total: total,
		})
		if onProgress != nil {
			onProgress(done, total)
		}
	})
	if err != nil {
		ev := failedEvent{CollectionID: req.CollectionID, JobID: jobID, Error: err.Error()}
		n.hub().PublishJSON(topic, EventFailed, ev)
		n.dispatch(ctx, webhook.EventImportFailed, ev)
		return nil, err
	}

	ev := completedEvent{CollectionID: req.CollectionID, JobID: jobID, ImportCounts: res.Counts()}
	n.hub().PublishJSON(topic, EventCompleted, ev)
	n.dispatch(ctx, webhook.EventImportCompleted, ev)
	return res, nil
}

func (n *Notifier) hub() *sse.Hub {
	if n == nil {
		return nil
	}
	return n.Hub
}

// dispatch records deliveries even when the run's context was cancelled.
func (n *Notifier) dispatch(ctx context.Context, eventType string, data interface{}) {
	if n == nil || n.Webhooks == nil {
		return
	}
	slog.Debug("dispatching webhook", "event", eventType)
	n.Webhooks.Dispatch(context.WithoutCancel(ctx), eventType, data)
}
