// Package session defines the scraping-session domain: the session record,
// its search-parameter snapshot, the status state machine, and the
// read/command surface external callers poll against a running session.
package session

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/adityawiguna/jobscout-api/internal/apperror"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// validTransitions lists every allowed (from -> to) pair.
// completed and failed are terminal.
var validTransitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusFailed},
	StatusRunning: {StatusPaused, StatusCompleted, StatusFailed},
	StatusPaused:  {StatusRunning, StatusFailed},
}

// Terminal reports whether no transitions leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from -> to is permitted.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type SalaryRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// SearchParams is the immutable query snapshot captured at session creation.
// A changed search requires a new session.
type SearchParams struct {
	Keywords        []string     `json:"keywords"`
	Locations       []string     `json:"locations"`
	ExperienceLevel string       `json:"experienceLevel,omitempty"`
	JobTypes        []string     `json:"jobTypes,omitempty"`
	DatePosted      string       `json:"datePosted,omitempty"`
	SalaryRange     *SalaryRange `json:"salaryRange,omitempty"`
	RemoteOnly      bool         `json:"remoteOnly,omitempty"`
	EasyApplyOnly   bool         `json:"easyApplyOnly,omitempty"`
}

func (p SearchParams) Validate() *apperror.AppError {
	if len(p.Keywords) == 0 {
		return apperror.New(apperror.BadRequest, "at least one keyword is required")
	}
	if len(p.Locations) == 0 {
		return apperror.New(apperror.BadRequest, "at least one location is required")
	}
	if p.SalaryRange != nil && p.SalaryRange.Min > p.SalaryRange.Max {
		return apperror.New(apperror.BadRequest, "salary range min cannot exceed max")
	}
	return nil
}

// Progress stage values reported while a session runs.
const (
	StageSearching  = "searching"
	StageExtracting = "extracting"
	StageExporting  = "exporting"
	StageCompleted  = "completed"
)

// MaxProgressErrors bounds the per-session error list; only the most recent
// entries are retained.
const MaxProgressErrors = 10

// Progress is the mutable snapshot the orchestrator persists while running.
// Derived fields (percentage, time remaining) are computed by readers, not
// stored.
type Progress struct {
	CurrentPage   int       `json:"currentPage"`
	TotalPages    int       `json:"totalPages"`
	JobsFound     int       `json:"jobsFound"`
	JobsProcessed int       `json:"jobsProcessed"`
	Stage         string    `json:"stage,omitempty"`
	Message       string    `json:"message,omitempty"`
	StartedAt     time.Time `json:"startedAt,omitempty"`
	Errors        []string  `json:"errors,omitempty"`
}

// RecordError appends msg, dropping the oldest entry once the bound is hit.
func (p *Progress) RecordError(msg string) {
	p.Errors = append(p.Errors, msg)
	if len(p.Errors) > MaxProgressErrors {
		p.Errors = p.Errors[len(p.Errors)-MaxProgressErrors:]
	}
}

type Session struct {
	ID           string       `json:"id"`
	UserID       string       `json:"userId"`
	CVID         string       `json:"cvId,omitempty"`
	SearchParams SearchParams `json:"searchParams"`
	Status       Status       `json:"status"`
	Progress     Progress     `json:"progress"`

	TotalJobsFound int    `json:"totalJobsFound"`
	SheetURL       string `json:"sheetUrl,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
	RetryCount     int    `json:"retryCount"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// New creates a pending session with a fresh opaque id and the given
// immutable search-parameter snapshot.
func New(userID, cvID string, params SearchParams) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		CVID:         cvID,
		SearchParams: params,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// StatusView is a session with the read-time derived fields attached.
type StatusView struct {
	Session
	ProgressPercentage        int    `json:"progressPercentage"`
	EstimatedSecondsRemaining *int64 `json:"estimatedSecondsRemaining,omitempty"`
}

// View computes the derived fields at read time. The time-remaining estimate
// is only defined for a running session that has completed at least one page.
func (s *Session) View(now time.Time) StatusView {
	v := StatusView{Session: *s}

	if s.Progress.TotalPages > 0 {
		pct := float64(s.Progress.CurrentPage) / float64(s.Progress.TotalPages) * 100
		v.ProgressPercentage = int(math.Round(pct))
	}

	if s.Status == StatusRunning && s.Progress.CurrentPage > 0 && s.Progress.TotalPages > 0 {
		started := s.Progress.StartedAt
		if started.IsZero() && s.StartedAt != nil {
			started = *s.StartedAt
		}
		if !started.IsZero() {
			elapsed := now.Sub(started)
			perPage := elapsed / time.Duration(s.Progress.CurrentPage)
			remaining := perPage * time.Duration(s.Progress.TotalPages-s.Progress.CurrentPage)
			secs := int64(remaining.Seconds())
			v.EstimatedSecondsRemaining = &secs
		}
	}

	return v
}
