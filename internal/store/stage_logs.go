package store

import (
	"context"
	"fmt"
	"time"
)

// AddStageLog appends one pipeline stage record for a source of a job.
func (s *SQLiteStore) AddStageLog(ctx context.Context, row *StageLogRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stage_logs (job_id, source_url, stage, detail, duration_ms)
		VALUES (?, ?, ?, ?, ?)`,
		row.JobID, row.SourceURL, row.Stage, row.Detail, row.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("inserting stage log: %w", err)
	}
	return nil
}

// ListStageLogs returns a job's stage records in insertion order.
func (s *SQLiteStore) ListStageLogs(ctx context.Context, jobID string) ([]*StageLogRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, source_url, stage, COALESCE(detail, ''), duration_ms, created_at
		FROM stage_logs WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing stage logs: %w", err)
	}
	defer rows.Close()

	var logs []*StageLogRow
	for rows.Next() {
		var row StageLogRow
		var durationMS int64
		if err := rows.Scan(&row.ID, &row.JobID, &row.SourceURL, &row.Stage,
			&row.Detail, &durationMS, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning stage log: %w", err)
		}
		row.Duration = time.Duration(durationMS) * time.Millisecond
		logs = append(logs, &row)
	}
	return logs, rows.Err()
}
