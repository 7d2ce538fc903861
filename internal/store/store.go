// Package store provides the SQLite persistence layer for Scout.
//
// All extraction data lives in a single SQLite database file:
// - Extraction jobs and their lifecycle status
// - Contact records with scores and validation outcomes
// - Duplicate groups
// - Per-source stage logs for auditability
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mediadesk/scout/internal/domain"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.scout/scout.db"

// DefaultBatchSize is the default batch size for bulk inserts.
const DefaultBatchSize = 200

// Job is a persisted extraction job row.
type Job struct {
	ID               string
	SearchID         string
	UserID           string
	Status           domain.JobStatus
	SourcesTotal     int
	SourcesProcessed int
	ContactsFound    int
	ErrorText        string
	CreatedAt        time.Time
	StartedAt        *time.Time
	FinishedAt       *time.Time
}

// StageLogRow records one pipeline stage applied to one source of a job.
type StageLogRow struct {
	ID        int64
	JobID     string
	SourceURL string
	Stage     string
	Detail    string
	Duration  time.Duration
	CreatedAt time.Time
}

// ListOpts controls pagination and filtering for list operations.
type ListOpts struct {
	Limit  int
	Offset int
	UserID string
	Status domain.JobStatus
}

// Stats holds observability counters about the store.
type Stats struct {
	JobCount       int64
	ContactCount   int64
	DuplicateCount int64
	GroupCount     int64
	AvgConfidence  float64
	AvgQuality     float64
	DBSizeBytes    int64
}

// Config holds configuration for NewStore.
type Config struct {
	DBPath    string
	BatchSize int
}

// Store defines the persistence interface the orchestrator and server use.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus, errorText string) error
	FinishJob(ctx context.Context, result *domain.Result) error

	// Contacts
	AddContacts(ctx context.Context, jobID string, contacts []domain.Contact) error
	ListContacts(ctx context.Context, jobID string) ([]domain.Contact, error)
	GetContact(ctx context.Context, id string) (*domain.Contact, error)

	// Duplicate groups
	AddDuplicateGroups(ctx context.Context, jobID string, groups []domain.DuplicateGroup) error
	ListDuplicateGroups(ctx context.Context, jobID string) ([]domain.DuplicateGroup, error)

	// Stage logs
	AddStageLog(ctx context.Context, row *StageLogRow) error
	ListStageLogs(ctx context.Context, jobID string) ([]*StageLogRow, error)

	// Observability
	Stats(ctx context.Context, userID string) (*Stats, error)

	// Maintenance
	Vacuum(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	dbPath    string
	batchSize int
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg Config) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:        db,
		dbPath:    cfg.DBPath,
		batchSize: cfg.BatchSize,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vacuum runs VACUUM on the database. Manual only, never auto-vacuum.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
