package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(apiRL *RateLimiter) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", h.Health)
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics.Handler())
	}
	r.Handle("/files/*", http.StripPrefix("/files/",
		http.FileServer(http.Dir(h.Cfg.FilesDir()))))

	r.Route("/api/v1", func(r chi.Router) {
		if apiRL != nil {
			r.Use(apiRL.Middleware)
		}

		r.Post("/collections/{id}/ad-import", h.APIAdImportStart)
		r.Get("/collections/{id}/ad-import", h.APIAdImportGet)
		r.Get("/collections/{id}/events", h.CollectionSSE)
		r.Get("/collections/{id}/assets", h.APIAdAssetList)

		r.Get("/jobs/{id}", h.APIJobGet)
		r.Get("/storage", h.APIStorage)
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.PingContext(r.Context()); err != nil {
		renderJSONError(w, http.StatusServiceUnavailable, "db_unavailable", err.Error())
		return
	}
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
