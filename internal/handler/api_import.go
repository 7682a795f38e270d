package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/YannKr/adimport/internal/credentials"
	"github.com/YannKr/adimport/internal/db"
	"github.com/YannKr/adimport/internal/diskstat"
	"github.com/YannKr/adimport/internal/graph"
	"github.com/YannKr/adimport/internal/importer"
	"github.com/YannKr/adimport/internal/model"
	"github.com/YannKr/adimport/internal/worker"
)

type adImportRequest struct {
	DateRange *model.DateRange `json:"date_range"`
	MaxAds    int              `json:"max_ads"`
	Async     bool             `json:"async"`
}

// APIAdImportStart runs an import for the collection. With async set the
// import is queued and the job id returned.
func (h *Handler) APIAdImportStart(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "id")

	var req adImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		renderJSONError(w, http.StatusBadRequest, "invalid_body", "Request body must be JSON.")
		return
	}
	if dr := req.DateRange; dr != nil {
		if !importer.ValidDate(dr.Since) || !importer.ValidDate(dr.Until) {
			renderJSONError(w, http.StatusBadRequest, "invalid_date_range", "Dates must be YYYY-MM-DD.")
			return
		}
		if dr.Since > dr.Until {
			renderJSONError(w, http.StatusBadRequest, "invalid_date_range", "since must not be after until.")
			return
		}
	}
	if req.MaxAds < 0 {
		renderJSONError(w, http.StatusBadRequest, "invalid_max_ads", "max_ads must be positive.")
		return
	}

	if h.DiskCache != nil {
		level := h.DiskCache.Get().WarningLevel(h.Cfg.DiskWarnYellowPct, h.Cfg.DiskWarnRedPct, h.Cfg.DiskWarnBlockPct)
		if level >= diskstat.WarnBlock {
			renderJSONError(w, http.StatusInsufficientStorage, "storage_full", "Not enough free disk space to import media.")
			return
		}
	}

	input := worker.ImportInput{CollectionID: collectionID, DateRange: req.DateRange, MaxAds: req.MaxAds}

	if req.Async {
		c, err := db.GetCollection(r.Context(), h.DB, collectionID)
		if err != nil {
			slog.Error("get collection", "collection", collectionID, "error", err)
			renderJSONError(w, http.StatusInternalServerError, "internal", "Failed to load collection.")
			return
		}
		if c == nil {
			renderJSONError(w, http.StatusNotFound, "not_found", "Collection not found.")
			return
		}
		jobID := uuid.New().String()
		if err := worker.Enqueue(r.Context(), h.DB, jobID, input); err != nil {
			slog.Error("enqueue ad import", "collection", collectionID, "error", err)
			renderJSONError(w, http.StatusInternalServerError, "internal", "Failed to queue import.")
			return
		}
		renderJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
		return
	}

	res, err := worker.RunImport(r.Context(), h.Importer, h.Notifier, "", input.Request(), nil)
	if err != nil {
		status, code := importErrorStatus(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			slog.Error("ad import", "collection", collectionID, "error", err)
			msg = "Import failed."
		}
		renderJSONError(w, status, code, msg)
		return
	}
	renderJSON(w, http.StatusOK, res.Counts())
}

func importErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, importer.ErrCollectionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, credentials.ErrNoIntegration), errors.Is(err, credentials.ErrNoAdAccount):
		return http.StatusBadRequest, "integration_missing"
	case errors.Is(err, credentials.ErrDecrypt):
		return http.StatusBadRequest, "integration_invalid"
	case graph.IsAuthError(err):
		return http.StatusUnauthorized, "meta_auth"
	case graph.IsPermissionError(err):
		return http.StatusForbidden, "meta_permission"
	default:
		return http.StatusInternalServerError, "import_failed"
	}
}

// APIAdImportGet returns the last stored import for the collection.
func (h *Handler) APIAdImportGet(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "id")
	c, err := db.GetCollection(r.Context(), h.DB, collectionID)
	if err != nil {
		slog.Error("get collection", "collection", collectionID, "error", err)
		renderJSONError(w, http.StatusInternalServerError, "internal", "Failed to load collection.")
		return
	}
	if c == nil {
		renderJSONError(w, http.StatusNotFound, "not_found", "Collection not found.")
		return
	}
	if c.AdImportJSON == "" {
		renderJSONError(w, http.StatusNotFound, "no_import", "Collection has no ad import yet.")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(c.AdImportJSON))
}

type adAssetJSON struct {
	AdID        string    `json:"ad_id"`
	AssetID     string    `json:"asset_id"`
	AssetType   string    `json:"asset_type"`
	OriginalURL string    `json:"original_url"`
	PublicURL   string    `json:"public_url"`
	FileSize    int64     `json:"file_size"`
	MimeType    string    `json:"mime_type"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *Handler) APIAdAssetList(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "id")
	assets, err := db.ListAdAssets(r.Context(), h.DB, collectionID)
	if err != nil {
		slog.Error("list ad assets", "collection", collectionID, "error", err)
		renderJSONError(w, http.StatusInternalServerError, "internal", "Failed to list assets.")
		return
	}
	out := make([]adAssetJSON, 0, len(assets))
	for _, a := range assets {
		out = append(out, adAssetJSON{
			AdID:        a.AdID,
			AssetID:     a.AssetID,
			AssetType:   string(a.AssetType),
			OriginalURL: a.OriginalURL,
			PublicURL:   a.PublicURL,
			FileSize:    a.FileSize,
			MimeType:    a.MimeType,
			CreatedAt:   a.CreatedAt,
		})
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{"data": out})
}
