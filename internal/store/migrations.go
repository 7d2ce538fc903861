package store

import "fmt"

// migrate creates all tables if they don't exist.
// DDL is idempotent so reopening an existing database is a no-op.
func (s *SQLiteStore) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS extraction_jobs (
			id                TEXT PRIMARY KEY,
			search_id         TEXT,
			user_id           TEXT,
			status            TEXT NOT NULL DEFAULT 'PENDING',
			sources_total     INTEGER NOT NULL DEFAULT 0,
			sources_processed INTEGER NOT NULL DEFAULT 0,
			contacts_found    INTEGER NOT NULL DEFAULT 0,
			error_text        TEXT,
			created_at        DATETIME DEFAULT CURRENT_TIMESTAMP,
			started_at        DATETIME,
			finished_at       DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS contacts (
			id                      TEXT PRIMARY KEY,
			job_id                  TEXT NOT NULL REFERENCES extraction_jobs(id) ON DELETE CASCADE,
			search_id               TEXT,
			source_url              TEXT NOT NULL,
			name                    TEXT NOT NULL,
			title                   TEXT,
			bio                     TEXT,
			email                   TEXT,
			email_type              TEXT,
			email_validation_status TEXT,
			confidence_score        REAL NOT NULL DEFAULT 0,
			relevance_score         REAL NOT NULL DEFAULT 0,
			quality_score           REAL NOT NULL DEFAULT 0,
			extraction_method       TEXT,
			verification_status     TEXT NOT NULL DEFAULT 'PENDING',
			is_duplicate            INTEGER NOT NULL DEFAULT 0,
			duplicate_of            TEXT,
			social_profiles         TEXT,
			contact_info            TEXT,
			metadata                TEXT,
			created_at              DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS duplicate_groups (
			id           TEXT PRIMARY KEY,
			job_id       TEXT NOT NULL REFERENCES extraction_jobs(id) ON DELETE CASCADE,
			contact_ids  TEXT NOT NULL,
			similarity   REAL NOT NULL,
			dup_type     TEXT NOT NULL,
			confidence   REAL NOT NULL,
			canonical_id TEXT NOT NULL,
			reasoning    TEXT,
			created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS stage_logs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id      TEXT NOT NULL REFERENCES extraction_jobs(id) ON DELETE CASCADE,
			source_url  TEXT NOT NULL,
			stage       TEXT NOT NULL,
			detail      TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_jobs_user ON extraction_jobs(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON extraction_jobs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_job ON contacts(job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts(email) WHERE email IS NOT NULL AND email != ''`,
		`CREATE INDEX IF NOT EXISTS idx_groups_job ON duplicate_groups(job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_stage_logs_job ON stage_logs(job_id, id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}
