package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adityawiguna/jobscout-api/internal/apperror"
)

// Service is the status/command surface external callers use against a
// session. It only touches persisted state, never the orchestrator's
// in-process loop; commands are serialized through atomic repository
// transitions.
type Service struct {
	repo   Repository
	notify func() // optional: wake worker pool
	now    func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// SetNotify sets a callback invoked when a new pending session is created.
func (s *Service) SetNotify(fn func()) { s.notify = fn }

// Start validates the search parameters and creates a pending session. No
// record is created for invalid input.
func (s *Service) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sess := New(req.UserID, req.CVID, req.Params)
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if s.notify != nil {
		s.notify()
	}

	slog.Info("session created", "session", sess.ID, "user", sess.UserID,
		"keywords", sess.SearchParams.Keywords, "locations", sess.SearchParams.Locations)
	return sess, nil
}

func (s *Service) Get(ctx context.Context, req GetRequest) (*StatusView, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	sess, err := s.repo.Get(ctx, req.ID, req.UserID)
	if err != nil {
		return nil, err
	}
	view := sess.View(s.now())
	return &view, nil
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]StatusView, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	sessions, err := s.repo.ListForUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]StatusView, len(sessions))
	for i := range sessions {
		views[i] = sessions[i].View(now)
	}
	return views, nil
}

// Pause suspends a running session. The orchestrator observes the paused
// status at its next page boundary.
func (s *Service) Pause(ctx context.Context, req CommandRequest) (*Session, error) {
	return s.command(ctx, req, []Status{StatusRunning}, StatusPaused, "",
		"can only pause running sessions")
}

// Resume restarts a paused session.
func (s *Service) Resume(ctx context.Context, req CommandRequest) (*Session, error) {
	return s.command(ctx, req, []Status{StatusPaused}, StatusRunning, "",
		"can only resume paused sessions")
}

// Cancel stops a pending, running or paused session. Cooperative: an
// in-flight page fetch may still complete before the orchestrator observes
// the cancellation.
func (s *Service) Cancel(ctx context.Context, req CommandRequest) (*Session, error) {
	return s.command(ctx, req, []Status{StatusPending, StatusRunning, StatusPaused}, StatusFailed,
		"cancelled by user", "cannot cancel a finished session")
}

func (s *Service) command(ctx context.Context, req CommandRequest, from []Status, to Status, errMsg, rejection string) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ok, err := s.repo.Transition(ctx, req.ID, req.UserID, from, to, errMsg)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Distinguish a missing session from an illegal transition.
		if _, getErr := s.repo.Get(ctx, req.ID, req.UserID); getErr != nil {
			return nil, getErr
		}
		return nil, apperror.New(apperror.Conflict, rejection)
	}

	slog.Info("session transition", "session", req.ID, "to", to)
	return s.repo.Get(ctx, req.ID, req.UserID)
}

// Retry creates a fresh pending session from a failed one, carrying over the
// immutable search parameters and incrementing the retry counter. The failed
// session itself is left untouched.
func (s *Service) Retry(ctx context.Context, req CommandRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	prev, err := s.repo.Get(ctx, req.ID, req.UserID)
	if err != nil {
		return nil, err
	}
	if prev.Status != StatusFailed {
		return nil, apperror.New(apperror.Conflict, "can only retry failed sessions")
	}

	next := New(prev.UserID, prev.CVID, prev.SearchParams)
	next.RetryCount = prev.RetryCount + 1
	if err := s.repo.Create(ctx, next); err != nil {
		return nil, fmt.Errorf("create retry session: %w", err)
	}
	if s.notify != nil {
		s.notify()
	}

	slog.Info("session retried", "previous", prev.ID, "session", next.ID, "attempt", next.RetryCount)
	return next, nil
}

// ReportProgress overwrites the session's progress snapshot on behalf of an
// orchestrator running out-of-band. Progress never moves backwards; a
// completed stage finalizes the session.
func (s *Service) ReportProgress(ctx context.Context, req ReportProgressRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sess, err := s.repo.Get(ctx, req.ID, req.UserID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, apperror.New(apperror.Conflict, "session already finalized")
	}
	if req.Progress.CurrentPage < sess.Progress.CurrentPage {
		return nil, apperror.Newf(apperror.Conflict, "progress cannot move backwards (page %d -> %d)",
			sess.Progress.CurrentPage, req.Progress.CurrentPage)
	}

	sess.Progress = req.Progress
	if req.Progress.Stage == StageCompleted {
		sess.Status = StatusCompleted
		sess.TotalJobsFound = req.Progress.JobsFound
		now := s.now().UTC()
		sess.CompletedAt = &now
	} else {
		sess.Status = StatusRunning
		if sess.StartedAt == nil {
			now := s.now().UTC()
			sess.StartedAt = &now
		}
	}

	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return sess, nil
}

// Delete removes a session and, through the storage cascade, its scraped
// jobs. Running sessions must be cancelled first.
func (s *Service) Delete(ctx context.Context, req CommandRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	sess, err := s.repo.Get(ctx, req.ID, req.UserID)
	if err != nil {
		return err
	}
	if sess.Status == StatusRunning || sess.Status == StatusPaused {
		return apperror.New(apperror.Conflict, "cancel the session before deleting it")
	}

	if err := s.repo.Delete(ctx, req.ID, req.UserID); err != nil {
		return err
	}
	slog.Info("session deleted", "session", req.ID, "user", req.UserID)
	return nil
}

// RecoverInterrupted fails sessions a previous process left running. Scrapes
// are not resumable mid-page, so interrupted runs surface as failures the
// caller can retry.
func (s *Service) RecoverInterrupted(ctx context.Context) error {
	n, err := s.repo.RecoverInterrupted(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("failed interrupted sessions", "count", n)
	}
	return nil
}
