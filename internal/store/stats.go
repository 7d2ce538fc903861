package store

import (
	"context"
	"fmt"
)

// Stats returns aggregate counters, optionally scoped to one user's jobs.
func (s *SQLiteStore) Stats(ctx context.Context, userID string) (*Stats, error) {
	stats := &Stats{}

	jobFilter := ""
	args := []any{}
	if userID != "" {
		jobFilter = " WHERE user_id = ?"
		args = append(args, userID)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM extraction_jobs"+jobFilter, args...).Scan(&stats.JobCount); err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}

	contactWhere := ""
	if userID != "" {
		contactWhere = " WHERE job_id IN (SELECT id FROM extraction_jobs WHERE user_id = ?)"
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(is_duplicate), 0),
		       COALESCE(AVG(confidence_score), 0),
		       COALESCE(AVG(quality_score), 0)
		FROM contacts`+contactWhere, args...)
	if err := row.Scan(&stats.ContactCount, &stats.DuplicateCount,
		&stats.AvgConfidence, &stats.AvgQuality); err != nil {
		return nil, fmt.Errorf("aggregating contacts: %w", err)
	}

	groupWhere := ""
	if userID != "" {
		groupWhere = " WHERE job_id IN (SELECT id FROM extraction_jobs WHERE user_id = ?)"
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM duplicate_groups"+groupWhere, args...).Scan(&stats.GroupCount); err != nil {
		return nil, fmt.Errorf("counting groups: %w", err)
	}

	// In-memory databases have no page-backed size.
	if s.dbPath != ":memory:" {
		var pageCount, pageSize int64
		if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
			if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
				stats.DBSizeBytes = pageCount * pageSize
			}
		}
	}
	return stats, nil
}
