package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/adityawiguna/jobscout-api/internal/job"
	"github.com/adityawiguna/jobscout-api/internal/session"
)

// userHeader carries the caller identity. Authentication proper lives at the
// gateway; this service only scopes data by the forwarded user id.
const userHeader = "X-User-ID"

type handler struct {
	sessionSvc *session.Service
	jobSvc     *job.Service

	exportDir      string
	streamInterval time.Duration
	streamMax      time.Duration
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userID extracts the caller identity, writing an error if absent.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(userHeader)
	if id == "" {
		writeError(w, http.StatusUnauthorized, fmt.Sprintf("%s header is required", userHeader))
		return "", false
	}
	return id, true
}

type startScrapeBody struct {
	CVID         string               `json:"cvId"`
	SearchParams session.SearchParams `json:"searchParams"`
}

func (h *handler) startScrape(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var body startScrapeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.sessionSvc.Start(r.Context(), session.StartRequest{
		UserID: uid,
		CVID:   body.CVID,
		Params: body.SearchParams,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, sess)
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	views, err := h.sessionSvc.List(r.Context(), session.ListRequest{UserID: uid})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	view, err := h.sessionSvc.Get(r.Context(), session.GetRequest{ID: r.PathValue("id"), UserID: uid})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) pauseSession(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.sessionSvc.Pause, http.StatusOK)
}

func (h *handler) resumeSession(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.sessionSvc.Resume, http.StatusOK)
}

func (h *handler) cancelSession(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.sessionSvc.Cancel, http.StatusOK)
}

func (h *handler) retrySession(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.sessionSvc.Retry, http.StatusAccepted)
}

type commandFunc func(ctx context.Context, req session.CommandRequest) (*session.Session, error)

func (h *handler) command(w http.ResponseWriter, r *http.Request, fn commandFunc, okStatus int) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	sess, err := fn(r.Context(), session.CommandRequest{ID: r.PathValue("id"), UserID: uid})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, okStatus, sess)
}

// reportProgress lets a scraper running out-of-band push its progress
// snapshot; a completed stage finalizes the session.
func (h *handler) reportProgress(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var progress session.Progress
	if err := json.NewDecoder(r.Body).Decode(&progress); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.sessionSvc.ReportProgress(r.Context(), session.ReportProgressRequest{
		ID:       r.PathValue("id"),
		UserID:   uid,
		Progress: progress,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	err := h.sessionSvc.Delete(r.Context(), session.CommandRequest{ID: r.PathValue("id"), UserID: uid})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listSessionJobs(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	jobs, err := h.jobSvc.ListBySession(r.Context(), job.ListBySessionRequest{
		SessionID: r.PathValue("id"),
		UserID:    uid,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if jobs == nil {
		jobs = []job.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

type updateJobBody struct {
	ApplicationStatus string `json:"applicationStatus"`
}

func (h *handler) updateJobStatus(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var body updateJobBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.jobSvc.UpdateApplicationStatus(r.Context(), job.UpdateStatusRequest{
		JobID:  r.PathValue("id"),
		UserID: uid,
		Status: job.ApplicationStatus(body.ApplicationStatus),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"applicationStatus": body.ApplicationStatus})
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// downloadExport serves the session's workbook. Ownership is checked through
// the session lookup before touching the filesystem.
func (h *handler) downloadExport(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	view, err := h.sessionSvc.Get(r.Context(), session.GetRequest{ID: r.PathValue("id"), UserID: uid})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if h.exportDir == "" || view.SheetURL == "" {
		writeError(w, http.StatusNotFound, "no export available for this session")
		return
	}

	name := fmt.Sprintf("jobs-%s.xlsx", view.ID)
	path := filepath.Join(h.exportDir, name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "export file not found")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	http.ServeFile(w, r, path)
}
