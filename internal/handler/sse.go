package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/YannKr/adimport/internal/sse"
)

// CollectionSSE streams import events for one collection.
func (h *Handler) CollectionSSE(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.SSE == nil {
		renderJSONError(w, http.StatusServiceUnavailable, "events_unavailable", "event stream not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsub := h.SSE.Subscribe(sse.CollectionTopic(id))
	defer unsub()

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data)
			flusher.Flush()
		}
	}
}
