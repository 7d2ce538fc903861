// Package domain holds the shared data model for the Scout extraction pipeline.
//
// Everything that crosses a package boundary lives here: extraction requests
// and options, parsed candidates, scored contacts, duplicate groups, and the
// final extraction result. Packages accept these types and return them;
// behavior stays in the component packages.
package domain

import (
	"strings"
	"time"
)

// SourceType classifies where a source URL points.
type SourceType string

const (
	SourceTypeArticle   SourceType = "article"
	SourceTypeStaffPage SourceType = "staff_page"
	SourceTypeProfile   SourceType = "profile"
	SourceTypeOther     SourceType = "other"
)

// Source is one URL to be mined for contacts.
type Source struct {
	URL      string     `json:"url"`
	Type     SourceType `json:"type"`
	Priority int        `json:"priority"`
}

// ExtractionOptions controls which pipeline stages run and how aggressively
// results are filtered. Zero values are replaced by Normalize.
type ExtractionOptions struct {
	EnableAI              bool    `json:"enable_ai"`
	EnableEmailValidation bool    `json:"enable_email_validation"`
	EnableSocialDetection bool    `json:"enable_social_detection"`
	EnableDeduplication   bool    `json:"enable_deduplication"`
	EnableQualityCheck    bool    `json:"enable_quality_check"`
	EnableCaching         bool    `json:"enable_caching"`

	ConfidenceThreshold  float64       `json:"confidence_threshold"`
	MaxContactsPerSource int           `json:"max_contacts_per_source"`
	ProcessingTimeout    time.Duration `json:"processing_timeout"`
	BatchSize            int           `json:"batch_size"`
	MaxConcurrent        int           `json:"max_concurrent"`

	IncludeBio    bool `json:"include_bio"`
	IncludeSocial bool `json:"include_social"`

	StrictValidation bool `json:"strict_validation"`
}

// DefaultOptions returns the options used when a request supplies none.
func DefaultOptions() ExtractionOptions {
	return ExtractionOptions{
		EnableAI:              true,
		EnableEmailValidation: true,
		EnableSocialDetection: true,
		EnableDeduplication:   true,
		EnableQualityCheck:    true,
		EnableCaching:         true,
		ConfidenceThreshold:   0.3,
		MaxContactsPerSource:  20,
		ProcessingTimeout:     60 * time.Second,
		BatchSize:             5,
		MaxConcurrent:         1,
		IncludeBio:            true,
		IncludeSocial:         true,
	}
}

// Normalize fills in zero values with defaults and clamps out-of-range fields.
func (o *ExtractionOptions) Normalize() {
	if o.ConfidenceThreshold < 0 {
		o.ConfidenceThreshold = 0
	}
	if o.ConfidenceThreshold > 1 {
		o.ConfidenceThreshold = 1
	}
	if o.MaxContactsPerSource <= 0 {
		o.MaxContactsPerSource = 20
	}
	if o.ProcessingTimeout <= 0 {
		o.ProcessingTimeout = 60 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 1
	}
}

// ExtractionRequest is an immutable extraction job submission.
type ExtractionRequest struct {
	JobID    string            `json:"job_id"`
	SearchID string            `json:"search_id"`
	UserID   string            `json:"user_id"`
	Sources  []Source          `json:"sources"`
	Options  ExtractionOptions `json:"options"`
}

// JobStatus is the orchestrator state machine for one extraction job.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
	JobCancelled  JobStatus = "CANCELLED"
)

// EmailType classifies an address by its local part.
type EmailType string

const (
	EmailPersonal EmailType = "PERSONAL"
	EmailAlias    EmailType = "ALIAS"
	EmailGeneric  EmailType = "GENERIC"
	EmailUnknown  EmailType = "UNKNOWN"
)

// EmailValidationStatus records the outcome of email validation.
type EmailValidationStatus string

const (
	EmailUnvalidated EmailValidationStatus = "UNVALIDATED"
	EmailValid       EmailValidationStatus = "VALID"
	EmailInvalid     EmailValidationStatus = "INVALID"
	EmailRisky       EmailValidationStatus = "RISKY"
)

// ExtractionMethod records how a contact was produced.
type ExtractionMethod string

const (
	MethodAI     ExtractionMethod = "AI_BASED"
	MethodRules  ExtractionMethod = "RULE_BASED"
	MethodHybrid ExtractionMethod = "HYBRID"
	MethodManual ExtractionMethod = "MANUAL"
)

// VerificationStatus tracks human review of a contact. Contacts are born
// PENDING and never self-promote past it without external confirmation.
type VerificationStatus string

const (
	VerificationPending      VerificationStatus = "PENDING"
	VerificationConfirmed    VerificationStatus = "CONFIRMED"
	VerificationRejected     VerificationStatus = "REJECTED"
	VerificationManualReview VerificationStatus = "MANUAL_REVIEW"
)

// SocialProfile is a detected social media presence.
type SocialProfile struct {
	Platform  string `json:"platform"`
	Handle    string `json:"handle"`
	URL       string `json:"url"`
	Verified  bool   `json:"verified,omitempty"`
	Followers int    `json:"followers,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

// Key returns the platform:handle deduplication key.
func (p SocialProfile) Key() string {
	return strings.ToLower(p.Platform) + ":" + strings.ToLower(p.Handle)
}

// ContactInfo carries auxiliary contact channels found alongside a candidate.
type ContactInfo struct {
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
	Handles string `json:"handles,omitempty"`
}

// StepLog records one pipeline stage applied to a contact or source.
type StepLog struct {
	Stage    string        `json:"stage"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// ContactMetadata holds the score factor breakdowns and the processing trail.
type ContactMetadata struct {
	ConfidenceFactors map[string]float64 `json:"confidence_factors,omitempty"`
	QualityFactors    map[string]float64 `json:"quality_factors,omitempty"`
	RelevanceFactors  map[string]float64 `json:"relevance_factors,omitempty"`
	Steps             []StepLog          `json:"steps,omitempty"`
	AIReasoning       string             `json:"ai_reasoning,omitempty"`
}

// Contact is a structured, scored contact record produced by the pipeline.
// A contact always belongs to exactly one extraction job and one source URL.
type Contact struct {
	ID           string `json:"id"`
	ExtractionID string `json:"extraction_id"`
	SearchID     string `json:"search_id,omitempty"`
	SourceURL    string `json:"source_url"`

	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
	Bio   string `json:"bio,omitempty"`
	Email string `json:"email,omitempty"`

	EmailType             EmailType             `json:"email_type,omitempty"`
	EmailValidationStatus EmailValidationStatus `json:"email_validation_status,omitempty"`

	ConfidenceScore float64 `json:"confidence_score"`
	RelevanceScore  float64 `json:"relevance_score"`
	QualityScore    float64 `json:"quality_score"`

	ExtractionMethod ExtractionMethod `json:"extraction_method"`

	SocialProfiles []SocialProfile `json:"social_profiles,omitempty"`
	ContactInfo    ContactInfo     `json:"contact_info,omitempty"`

	VerificationStatus VerificationStatus `json:"verification_status"`

	IsDuplicate bool   `json:"is_duplicate"`
	DuplicateOf string `json:"duplicate_of,omitempty"`

	Metadata  ContactMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// DuplicateType tags the dominant signal behind a duplicate group.
type DuplicateType string

const (
	DupEmail       DuplicateType = "email"
	DupNameOutlet  DuplicateType = "name_outlet"
	DupNameTitle   DuplicateType = "name_title"
	DupSocial      DuplicateType = "social"
	DupMultiSignal DuplicateType = "multi_signal"
)

// DuplicateGroup is a cluster of contact records believed to be one person.
type DuplicateGroup struct {
	ID          string        `json:"id"`
	ContactIDs  []string      `json:"contact_ids"`
	Similarity  float64       `json:"similarity"`
	Type        DuplicateType `json:"type"`
	Confidence  float64       `json:"confidence"`
	CanonicalID string        `json:"canonical_id"`
	Reasoning   string        `json:"reasoning"`
}

// ScoreDistribution buckets scores at >0.8, 0.5-0.8, and <0.5.
type ScoreDistribution struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Metrics is the batch-level performance block of a result.
type Metrics struct {
	ContactsPerSecond      float64           `json:"contacts_per_second"`
	ConfidenceDistribution ScoreDistribution `json:"confidence_distribution"`
	QualityDistribution    ScoreDistribution `json:"quality_distribution"`
	EmailValidationRate    float64           `json:"email_validation_rate"`
	SocialDetectionRate    float64           `json:"social_detection_rate"`
	CacheHits              int               `json:"cache_hits"`
	CacheMisses            int               `json:"cache_misses"`
}

// Result is the outcome of one extraction job. A job always returns a result
// object, even when individual sources failed.
type Result struct {
	JobID            string           `json:"job_id"`
	Status           JobStatus        `json:"status"`
	SourcesProcessed int              `json:"sources_processed"`
	ContactsFound    int              `json:"contacts_found"`
	ContactsImported int              `json:"contacts_imported"`
	AvgConfidence    float64          `json:"avg_confidence"`
	AvgQuality       float64          `json:"avg_quality"`
	Elapsed          time.Duration    `json:"elapsed"`
	Contacts         []Contact        `json:"contacts"`
	DuplicateGroups  []DuplicateGroup `json:"duplicate_groups,omitempty"`
	Errors           []string         `json:"errors,omitempty"`
	Metrics          Metrics          `json:"metrics"`
}

// Bucket assigns a score to the distribution bucket it belongs in.
func (d *ScoreDistribution) Bucket(score float64) {
	switch {
	case score > 0.8:
		d.High++
	case score >= 0.5:
		d.Medium++
	default:
		d.Low++
	}
}
