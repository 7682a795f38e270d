package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/YannKr/adimport/internal/db"
)

type jobJSON struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	CollectionID string          `json:"collection_id"`
	State        string          `json:"state"`
	Progress     int             `json:"progress"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

func (h *Handler) APIJobGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := db.GetJob(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("get job", "job", id, "error", err)
		renderJSONError(w, http.StatusInternalServerError, "internal", "Failed to load job.")
		return
	}
	if job == nil {
		renderJSONError(w, http.StatusNotFound, "not_found", "Job not found.")
		return
	}
	out := jobJSON{
		ID:           job.ID,
		Type:         job.JobType,
		CollectionID: job.CollectionID,
		State:        job.State,
		Progress:     job.Progress,
		Error:        job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
	if job.ResultData != "" && json.Valid([]byte(job.ResultData)) {
		out.Result = json.RawMessage(job.ResultData)
	}
	renderJSON(w, http.StatusOK, out)
}
