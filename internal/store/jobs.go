package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mediadesk/scout/internal/domain"
)

// ErrJobNotFound is returned when a job ID has no row.
var ErrJobNotFound = errors.New("job not found")

// ErrInvalidTransition is returned when a status update would violate the
// job lifecycle (e.g. COMPLETED back to PROCESSING).
var ErrInvalidTransition = errors.New("invalid job status transition")

// validTransitions is the job state machine. Terminal states have no exits.
var validTransitions = map[domain.JobStatus][]domain.JobStatus{
	domain.JobPending:    {domain.JobProcessing, domain.JobCancelled, domain.JobFailed},
	domain.JobProcessing: {domain.JobCompleted, domain.JobFailed, domain.JobCancelled},
}

func transitionAllowed(from, to domain.JobStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreateJob inserts a new job in PENDING state.
func (s *SQLiteStore) CreateJob(ctx context.Context, job *Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if job.Status == "" {
		job.Status = domain.JobPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extraction_jobs (id, search_id, user_id, status, sources_total, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.SearchID, job.UserID, string(job.Status), job.SourcesTotal, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, search_id, user_id, status, sources_total, sources_processed,
		       contacts_found, COALESCE(error_text, ''), created_at, started_at, finished_at
		FROM extraction_jobs WHERE id = ?`, id)
	return scanJob(row)
}

func scanJob(row *sql.Row) (*Job, error) {
	var job Job
	var status string
	var startedAt, finishedAt sql.NullTime
	err := row.Scan(&job.ID, &job.SearchID, &job.UserID, &status,
		&job.SourcesTotal, &job.SourcesProcessed, &job.ContactsFound,
		&job.ErrorText, &job.CreatedAt, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning job: %w", err)
	}
	job.Status = domain.JobStatus(status)
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	return &job, nil
}

// ListJobs returns jobs newest-first, optionally filtered by user and status.
func (s *SQLiteStore) ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	query := `
		SELECT id, search_id, user_id, status, sources_total, sources_processed,
		       contacts_found, COALESCE(error_text, ''), created_at, started_at, finished_at
		FROM extraction_jobs WHERE 1=1`
	args := []any{}
	if opts.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, opts.UserID)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var job Job
		var status string
		var startedAt, finishedAt sql.NullTime
		if err := rows.Scan(&job.ID, &job.SearchID, &job.UserID, &status,
			&job.SourcesTotal, &job.SourcesProcessed, &job.ContactsFound,
			&job.ErrorText, &job.CreatedAt, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		job.Status = domain.JobStatus(status)
		if startedAt.Valid {
			job.StartedAt = &startedAt.Time
		}
		if finishedAt.Valid {
			job.FinishedAt = &finishedAt.Time
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// UpdateJobStatus moves a job through its lifecycle, enforcing valid
// transitions. PROCESSING stamps started_at; terminal states stamp
// finished_at.
func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus, errorText string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM extraction_jobs WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("reading job status: %w", err)
	}

	from := domain.JobStatus(current)
	if from == status {
		return nil // idempotent
	}
	if !transitionAllowed(from, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}

	now := time.Now().UTC()
	switch status {
	case domain.JobProcessing:
		_, err = tx.ExecContext(ctx,
			"UPDATE extraction_jobs SET status = ?, started_at = ? WHERE id = ?",
			string(status), now, id)
	case domain.JobCompleted, domain.JobFailed, domain.JobCancelled:
		_, err = tx.ExecContext(ctx,
			"UPDATE extraction_jobs SET status = ?, error_text = ?, finished_at = ? WHERE id = ?",
			string(status), errorText, now, id)
	default:
		_, err = tx.ExecContext(ctx,
			"UPDATE extraction_jobs SET status = ? WHERE id = ?", string(status), id)
	}
	if err != nil {
		return fmt.Errorf("updating job status: %w", err)
	}
	return tx.Commit()
}

// FinishJob records the aggregate counters of a completed result.
// The status transition itself goes through UpdateJobStatus.
func (s *SQLiteStore) FinishJob(ctx context.Context, result *domain.Result) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE extraction_jobs
		SET sources_processed = ?, contacts_found = ?
		WHERE id = ?`,
		result.SourcesProcessed, result.ContactsFound, result.JobID)
	if err != nil {
		return fmt.Errorf("recording job result: %w", err)
	}
	return nil
}
