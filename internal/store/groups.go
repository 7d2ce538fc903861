package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mediadesk/scout/internal/domain"
)

// AddDuplicateGroups persists the duplicate clusters found for a job.
func (s *SQLiteStore) AddDuplicateGroups(ctx context.Context, jobID string, groups []domain.DuplicateGroup) error {
	if len(groups) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO duplicate_groups (id, job_id, contact_ids, similarity, dup_type, confidence, canonical_id, reasoning)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing group insert: %w", err)
	}
	defer stmt.Close()

	for _, g := range groups {
		ids, err := json.Marshal(g.ContactIDs)
		if err != nil {
			return fmt.Errorf("marshaling contact ids: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			g.ID, jobID, string(ids), g.Similarity, string(g.Type),
			g.Confidence, g.CanonicalID, g.Reasoning,
		); err != nil {
			return fmt.Errorf("inserting group %s: %w", g.ID, err)
		}
	}
	return tx.Commit()
}

// ListDuplicateGroups returns a job's duplicate clusters.
func (s *SQLiteStore) ListDuplicateGroups(ctx context.Context, jobID string) ([]domain.DuplicateGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contact_ids, similarity, dup_type, confidence, canonical_id, COALESCE(reasoning, '')
		FROM duplicate_groups WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing duplicate groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.DuplicateGroup
	for rows.Next() {
		var g domain.DuplicateGroup
		var idsJSON, dtype string
		if err := rows.Scan(&g.ID, &idsJSON, &g.Similarity, &dtype,
			&g.Confidence, &g.CanonicalID, &g.Reasoning); err != nil {
			return nil, fmt.Errorf("scanning group: %w", err)
		}
		g.Type = domain.DuplicateType(dtype)
		if err := json.Unmarshal([]byte(idsJSON), &g.ContactIDs); err != nil {
			return nil, fmt.Errorf("decoding contact ids: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
