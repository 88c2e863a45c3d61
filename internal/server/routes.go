package server

import (
	"net/http"
	"time"

	"github.com/adityawiguna/jobscout-api/internal/job"
	"github.com/adityawiguna/jobscout-api/internal/session"
)

// HandlerOption configures the HTTP handler.
type HandlerOption func(*handler)

// WithExportDir points the download route at the directory workbooks are
// written to. Without it the route responds 404.
func WithExportDir(dir string) HandlerOption {
	return func(h *handler) { h.exportDir = dir }
}

// WithStreamTiming overrides the event-stream push interval and lifetime cap,
// mainly for tests.
func WithStreamTiming(interval, maxDuration time.Duration) HandlerOption {
	return func(h *handler) {
		if interval > 0 {
			h.streamInterval = interval
		}
		if maxDuration > 0 {
			h.streamMax = maxDuration
		}
	}
}

// NewHandler creates the full HTTP handler with routes and middleware.
// Exported for use in tests (e.g., httptest.NewServer).
func NewHandler(sessionSvc *session.Service, jobSvc *job.Service, opts ...HandlerOption) http.Handler {
	return newMux(sessionSvc, jobSvc, opts...)
}

func newMux(sessionSvc *session.Service, jobSvc *job.Service, opts ...HandlerOption) http.Handler {
	h := &handler{
		sessionSvc:     sessionSvc,
		jobSvc:         jobSvc,
		streamInterval: 2 * time.Second,
		streamMax:      5 * time.Minute,
	}
	for _, o := range opts {
		o(h)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /api/v1/scrape", h.startScrape)
	mux.HandleFunc("GET /api/v1/sessions", h.listSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", h.getSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/pause", h.pauseSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/resume", h.resumeSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/cancel", h.cancelSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/retry", h.retrySession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.deleteSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/progress", h.reportProgress)
	mux.HandleFunc("GET /api/v1/sessions/{id}/events", h.streamSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/export", h.downloadExport)
	mux.HandleFunc("GET /api/v1/sessions/{id}/jobs", h.listSessionJobs)
	mux.HandleFunc("PATCH /api/v1/jobs/{id}", h.updateJobStatus)

	// Apply middleware stack: recovery -> requestID -> logging
	var handler http.Handler = mux
	handler = logging(handler)
	handler = requestID(handler)
	handler = recovery(handler)

	return handler
}
