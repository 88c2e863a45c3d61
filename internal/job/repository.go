package job

import "context"

type Repository interface {
	// BulkInsert writes all jobs in one transaction. Happens once per
	// session, at finalization or after a completed page; duplicate source
	// URLs within a session are skipped. Returns the number inserted.
	BulkInsert(ctx context.Context, jobs []Job) (int64, error)
	ListBySession(ctx context.Context, sessionID, userID string) ([]Job, error)
	// UpdateApplicationStatus mutates the one user-editable field,
	// owner-scoped.
	UpdateApplicationStatus(ctx context.Context, jobID, userID string, status ApplicationStatus) error
	DeleteBySession(ctx context.Context, sessionID string) error
}
