package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mediadesk/scout/internal/domain"
)

// ErrContactNotFound is returned when a contact ID has no row.
var ErrContactNotFound = errors.New("contact not found")

// AddContacts inserts contacts in batches inside one transaction per batch.
// Social profiles, contact info, and metadata are stored as JSON columns;
// scores and identity fields stay relational for querying.
func (s *SQLiteStore) AddContacts(ctx context.Context, jobID string, contacts []domain.Contact) error {
	for start := 0; start < len(contacts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(contacts) {
			end = len(contacts)
		}
		if err := s.addContactBatch(ctx, jobID, contacts[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) addContactBatch(ctx context.Context, jobID string, contacts []domain.Contact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO contacts (
			id, job_id, search_id, source_url, name, title, bio, email,
			email_type, email_validation_status,
			confidence_score, relevance_score, quality_score,
			extraction_method, verification_status,
			is_duplicate, duplicate_of,
			social_profiles, contact_info, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing contact insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range contacts {
		social, err := json.Marshal(c.SocialProfiles)
		if err != nil {
			return fmt.Errorf("marshaling social profiles: %w", err)
		}
		info, err := json.Marshal(c.ContactInfo)
		if err != nil {
			return fmt.Errorf("marshaling contact info: %w", err)
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, jobID, c.SearchID, c.SourceURL, c.Name, c.Title, c.Bio, c.Email,
			string(c.EmailType), string(c.EmailValidationStatus),
			c.ConfidenceScore, c.RelevanceScore, c.QualityScore,
			string(c.ExtractionMethod), string(c.VerificationStatus),
			boolToInt(c.IsDuplicate), c.DuplicateOf,
			string(social), string(info), string(meta), createdAt,
		); err != nil {
			return fmt.Errorf("inserting contact %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

const contactColumns = `
	id, job_id, COALESCE(search_id, ''), source_url, name,
	COALESCE(title, ''), COALESCE(bio, ''), COALESCE(email, ''),
	COALESCE(email_type, ''), COALESCE(email_validation_status, ''),
	confidence_score, relevance_score, quality_score,
	COALESCE(extraction_method, ''), verification_status,
	is_duplicate, COALESCE(duplicate_of, ''),
	COALESCE(social_profiles, '[]'), COALESCE(contact_info, '{}'),
	COALESCE(metadata, '{}'), created_at`

// ListContacts returns a job's contacts ordered by confidence descending,
// ties broken by ID for a stable ordering.
func (s *SQLiteStore) ListContacts(ctx context.Context, jobID string) ([]domain.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+contactColumns+" FROM contacts WHERE job_id = ? ORDER BY confidence_score DESC, id ASC",
		jobID)
	if err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}
	defer rows.Close()

	var contacts []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

// GetContact fetches one contact by ID.
func (s *SQLiteStore) GetContact(ctx context.Context, id string) (*domain.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+contactColumns+" FROM contacts WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("getting contact: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrContactNotFound
	}
	return scanContact(rows)
}

func scanContact(rows *sql.Rows) (*domain.Contact, error) {
	var (
		c                              domain.Contact
		jobID, emailType, valStatus    string
		method, verStatus              string
		isDup                          int
		socialJSON, infoJSON, metaJSON string
	)
	if err := rows.Scan(
		&c.ID, &jobID, &c.SearchID, &c.SourceURL, &c.Name,
		&c.Title, &c.Bio, &c.Email,
		&emailType, &valStatus,
		&c.ConfidenceScore, &c.RelevanceScore, &c.QualityScore,
		&method, &verStatus,
		&isDup, &c.DuplicateOf,
		&socialJSON, &infoJSON, &metaJSON, &c.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scanning contact: %w", err)
	}
	c.ExtractionID = jobID
	c.EmailType = domain.EmailType(emailType)
	c.EmailValidationStatus = domain.EmailValidationStatus(valStatus)
	c.ExtractionMethod = domain.ExtractionMethod(method)
	c.VerificationStatus = domain.VerificationStatus(verStatus)
	c.IsDuplicate = isDup != 0

	if err := json.Unmarshal([]byte(socialJSON), &c.SocialProfiles); err != nil {
		return nil, fmt.Errorf("decoding social profiles: %w", err)
	}
	if err := json.Unmarshal([]byte(infoJSON), &c.ContactInfo); err != nil {
		return nil, fmt.Errorf("decoding contact info: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
