package session

import "context"

// Repository is the durable session store. Every read and mutation that
// carries a userID must be owner-scoped.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id, userID string) (*Session, error)
	ListForUser(ctx context.Context, userID string) ([]Session, error)
	// Update persists the mutable fields of s (status, progress, totals,
	// export URL, error message, timestamps).
	Update(ctx context.Context, s *Session) error
	// UpdateProgress overwrites just the progress snapshot.
	UpdateProgress(ctx context.Context, id string, p Progress) error
	// Transition atomically moves the session to status `to` only when its
	// current status is one of `from`; reports whether a row changed.
	// errorMessage is stored when to == failed.
	Transition(ctx context.Context, id, userID string, from []Status, to Status, errorMessage string) (bool, error)
	// ClaimPending atomically claims the oldest pending session, marking it
	// running. Returns nil when none are pending.
	ClaimPending(ctx context.Context) (*Session, error)
	// RecoverInterrupted fails sessions left running by a previous process.
	RecoverInterrupted(ctx context.Context) (int64, error)
	// Delete removes the session and, by cascade, its scraped jobs.
	Delete(ctx context.Context, id, userID string) error
}
