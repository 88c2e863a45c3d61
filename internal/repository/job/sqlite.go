package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adityawiguna/jobscout-api/internal/apperror"
	domain "github.com/adityawiguna/jobscout-api/internal/job"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// BulkInsert writes the batch in one transaction. A duplicate source URL
// within the same session hits the unique index and is silently skipped.
func (r *Repository) BulkInsert(ctx context.Context, jobs []domain.Job) (int64, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("bulk insert: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `INSERT OR IGNORE INTO jobs
		(id, session_id, user_id, source_url, title, company, location,
		 salary_text, posted_text, match_score, easy_apply, application_status,
		 insights, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("bulk insert: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var inserted int64
	for _, j := range jobs {
		insights, err := json.Marshal(j.Insights)
		if err != nil {
			return 0, fmt.Errorf("encode insights: %w", err)
		}
		res, err := stmt.ExecContext(ctx,
			j.ID, j.SessionID, j.UserID, j.SourceURL, j.Title, j.Company, j.Location,
			j.SalaryText, j.PostedText, j.MatchScore, boolToInt(j.EasyApply),
			string(j.ApplicationStatus), string(insights),
			j.ScrapedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return 0, fmt.Errorf("bulk insert %s: %w", j.SourceURL, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("bulk insert %s: %w", j.SourceURL, err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("bulk insert: commit: %w", err)
	}
	return inserted, nil
}

func (r *Repository) ListBySession(ctx context.Context, sessionID, userID string) ([]domain.Job, error) {
	const query = `SELECT id, session_id, user_id, source_url, title, company,
		location, salary_text, posted_text, match_score, easy_apply,
		application_status, insights, scraped_at
		FROM jobs WHERE session_id = ? AND user_id = ?
		ORDER BY match_score DESC, scraped_at ASC`

	rows, err := r.db.QueryContext(ctx, query, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []domain.Job
	for rows.Next() {
		var j domain.Job
		var easyApply int
		var status, insightsStr, scrapedStr string

		if err := rows.Scan(
			&j.ID, &j.SessionID, &j.UserID, &j.SourceURL, &j.Title, &j.Company,
			&j.Location, &j.SalaryText, &j.PostedText, &j.MatchScore, &easyApply,
			&status, &insightsStr, &scrapedStr,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}

		j.EasyApply = easyApply != 0
		j.ApplicationStatus = domain.ApplicationStatus(status)
		if err := json.Unmarshal([]byte(insightsStr), &j.Insights); err != nil {
			return nil, fmt.Errorf("decode insights: %w", err)
		}
		j.ScrapedAt, _ = time.Parse(time.RFC3339, scrapedStr)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *Repository) UpdateApplicationStatus(ctx context.Context, jobID, userID string, status domain.ApplicationStatus) error {
	const query = `UPDATE jobs SET application_status = ?
		WHERE id = ? AND user_id = ?`

	res, err := r.db.ExecContext(ctx, query, string(status), jobID, userID)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	if n == 0 {
		return apperror.New(apperror.NotFound, "job not found")
	}
	return nil
}

func (r *Repository) DeleteBySession(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete jobs for session: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
