package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adityawiguna/jobscout-api/internal/apperror"
	domain "github.com/adityawiguna/jobscout-api/internal/session"
)

const sessionColumns = `id, user_id, cv_id, search_params, status, progress,
	total_jobs_found, sheet_url, error_message, retry_count,
	created_at, started_at, completed_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, s *domain.Session) error {
	params, err := json.Marshal(s.SearchParams)
	if err != nil {
		return fmt.Errorf("encode search params: %w", err)
	}
	progress, err := json.Marshal(s.Progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	const query = `INSERT INTO sessions
		(id, user_id, cv_id, search_params, status, progress, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.CVID, string(params), string(s.Status), string(progress),
		s.RetryCount, s.CreatedAt.Format(time.RFC3339), s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id, userID string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ? AND user_id = ?`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, id, userID))
	if err == sql.ErrNoRows {
		return nil, apperror.New(apperror.NotFound, "session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *Repository) ListForUser(ctx context.Context, userID string) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE user_id = ? ORDER BY created_at DESC LIMIT 100`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (r *Repository) Update(ctx context.Context, s *domain.Session) error {
	progress, err := json.Marshal(s.Progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	const query = `UPDATE sessions SET status = ?, progress = ?,
		total_jobs_found = ?, sheet_url = ?, error_message = ?,
		started_at = ?, completed_at = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`

	_, err = r.db.ExecContext(ctx, query,
		string(s.Status), string(progress),
		s.TotalJobsFound, s.SheetURL, s.ErrorMessage,
		nullTime(s.StartedAt), nullTime(s.CompletedAt),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) UpdateProgress(ctx context.Context, id string, p domain.Progress) error {
	progress, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	const query = `UPDATE sessions SET progress = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`

	_, err = r.db.ExecContext(ctx, query, string(progress), id)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

func (r *Repository) Transition(ctx context.Context, id, userID string, from []domain.Status, to domain.Status, errorMessage string) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	query := `UPDATE sessions SET status = ?, error_message = ?,
		completed_at = CASE WHEN ? IN ('completed', 'failed')
			THEN strftime('%Y-%m-%dT%H:%M:%SZ', 'now') ELSE completed_at END,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ? AND user_id = ? AND status IN (` + placeholders + `)`

	args := []any{string(to), errorMessage, string(to), id, userID}
	for _, f := range from {
		args = append(args, string(f))
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition session: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) ClaimPending(ctx context.Context) (*domain.Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim pending: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id, userID string
	err = tx.QueryRowContext(ctx,
		`SELECT id, user_id FROM sessions WHERE status = 'pending' ORDER BY created_at ASC LIMIT 1`,
	).Scan(&id, &userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending: select: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET status = 'running',
			started_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
			WHERE id = ?`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("claim pending: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim pending: commit: %w", err)
	}

	return r.Get(ctx, id, userID)
}

func (r *Repository) RecoverInterrupted(ctx context.Context) (int64, error) {
	const query = `UPDATE sessions SET status = 'failed',
		error_message = 'interrupted by service restart',
		completed_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE status = 'running'`

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("recover interrupted sessions: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) Delete(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return apperror.New(apperror.NotFound, "session not found")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	s := &domain.Session{}
	var paramsStr, status, progressStr, createdStr, updatedStr string
	var startedStr, completedStr sql.NullString

	err := row.Scan(
		&s.ID, &s.UserID, &s.CVID, &paramsStr, &status, &progressStr,
		&s.TotalJobsFound, &s.SheetURL, &s.ErrorMessage, &s.RetryCount,
		&createdStr, &startedStr, &completedStr, &updatedStr,
	)
	if err != nil {
		return nil, err
	}

	s.Status = domain.Status(status)
	if err := json.Unmarshal([]byte(paramsStr), &s.SearchParams); err != nil {
		return nil, fmt.Errorf("decode search params: %w", err)
	}
	if err := json.Unmarshal([]byte(progressStr), &s.Progress); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	s.StartedAt = parseNullTime(startedStr)
	s.CompletedAt = parseNullTime(completedStr)
	return s, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
