package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/adityawiguna/jobscout-api/internal/session"
)

// streamSession pushes status snapshots over server-sent events until the
// session reaches a terminal state, the client disconnects, or the stream
// lifetime cap is hit. Clients past the cap fall back to polling.
func (h *handler) streamSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	req := session.GetRequest{ID: r.PathValue("id"), UserID: uid}

	// Fail fast on a bad id before committing to the stream content type.
	view, err := h.sessionSvc.Get(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if done := writeEvent(w, flusher, view); done {
		return
	}

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(h.streamMax)
	defer deadline.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-deadline.C:
			_, _ = fmt.Fprint(w, "event: timeout\ndata: {}\n\n")
			flusher.Flush()
			return
		case <-ticker.C:
			view, err := h.sessionSvc.Get(r.Context(), req)
			if err != nil {
				_, _ = fmt.Fprintf(w, "event: error\ndata: %q\n\n", err.Error())
				flusher.Flush()
				return
			}
			if done := writeEvent(w, flusher, view); done {
				return
			}
		}
	}
}

// writeEvent pushes one status event; reports whether the session is
// terminal and the stream should close.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, view *session.StatusView) bool {
	data, err := json.Marshal(view)
	if err != nil {
		return true
	}
	_, _ = fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
	flusher.Flush()
	return view.Status.Terminal()
}
