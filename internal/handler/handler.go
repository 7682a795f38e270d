// Package handler serves the JSON API for ad imports.
package handler

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/YannKr/adimport/internal/config"
	"github.com/YannKr/adimport/internal/diskstat"
	"github.com/YannKr/adimport/internal/metric"
	"github.com/YannKr/adimport/internal/sse"
	"github.com/YannKr/adimport/internal/worker"
)

type Handler struct {
	DB        *sql.DB
	Cfg       *config.Config
	Importer  worker.Importer
	Notifier  *worker.Notifier
	SSE       *sse.Hub
	Metrics   *metric.Metrics
	DiskCache *diskstat.Cache
}

func New(database *sql.DB, cfg *config.Config, im worker.Importer, n *worker.Notifier, m *metric.Metrics) *Handler {
	h := &Handler{
		DB:       database,
		Cfg:      cfg,
		Importer: im,
		Notifier: n,
		Metrics:  m,
	}
	if n != nil {
		h.SSE = n.Hub
	}
	return h
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func renderJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func renderJSONError(w http.ResponseWriter, status int, code, message string) {
	renderJSON(w, status, map[string]apiError{"error": {Code: code, Message: message}})
}
