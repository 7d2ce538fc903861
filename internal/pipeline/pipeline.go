// Package pipeline orchestrates contact extraction end to end.
//
// A job moves PENDING -> PROCESSING -> COMPLETED | FAILED | CANCELLED. Each
// source runs the per-source chain independently: cache lookup, content
// parsing, quality gate, AI identification, email validation, social
// enrichment, scoring, and cache write-back. A failed source becomes a
// warning on the result; only aggregation-level faults fail the job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mediadesk/scout/internal/cache"
	"github.com/mediadesk/scout/internal/content"
	"github.com/mediadesk/scout/internal/dedup"
	"github.com/mediadesk/scout/internal/domain"
	"github.com/mediadesk/scout/internal/identify"
	"github.com/mediadesk/scout/internal/score"
	"github.com/mediadesk/scout/internal/social"
	"github.com/mediadesk/scout/internal/store"
	"github.com/mediadesk/scout/internal/validate"
)

// ExtractionError is an aggregation-level fault. Per-source failures never
// produce one; they surface as warnings on the result.
type ExtractionError struct {
	JobID string
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction job %s failed at %s: %v", e.JobID, e.Stage, e.Err)
}
func (e *ExtractionError) Unwrap() error { return e.Err }

// Config wires the extractor's collaborators. Store and Cache may be nil;
// the corresponding stages are skipped.
type Config struct {
	Parser     *content.Parser
	Identifier *identify.Identifier
	Validator  *validate.EmailValidator
	Enricher   social.Enricher
	Cache      *cache.Cache
	Store      store.Store
	Logger     *slog.Logger
}

// Extractor runs extraction jobs.
type Extractor struct {
	parser     *content.Parser
	identifier *identify.Identifier
	validator  *validate.EmailValidator
	enricher   social.Enricher
	cache      *cache.Cache
	store      store.Store
	logger     *slog.Logger
}

// New builds an extractor.
func New(cfg Config) *Extractor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Enricher == nil {
		cfg.Enricher = social.HeuristicEnricher{}
	}
	return &Extractor{
		parser:     cfg.Parser,
		identifier: cfg.Identifier,
		validator:  cfg.Validator,
		enricher:   cfg.Enricher,
		cache:      cfg.Cache,
		store:      cfg.Store,
		logger:     cfg.Logger,
	}
}

type sourceOutcome struct {
	contacts []domain.Contact
	cacheHit bool
	err      error
}

// Run executes one extraction job and always returns a Result. The error is
// non-nil only for aggregation faults, in which case the result carries
// status FAILED.
func (e *Extractor) Run(ctx context.Context, req domain.ExtractionRequest) (*domain.Result, error) {
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	req.Options.Normalize()
	start := time.Now()

	result := &domain.Result{
		JobID:    req.JobID,
		Status:   domain.JobProcessing,
		Contacts: []domain.Contact{},
	}

	if e.store != nil {
		job := &store.Job{
			ID:           req.JobID,
			SearchID:     req.SearchID,
			UserID:       req.UserID,
			SourcesTotal: len(req.Sources),
		}
		if err := e.store.CreateJob(ctx, job); err != nil {
			return e.fail(ctx, result, start, "create_job", err)
		}
		if err := e.store.UpdateJobStatus(ctx, req.JobID, domain.JobProcessing, ""); err != nil {
			return e.fail(ctx, result, start, "start_job", err)
		}
	}

	e.logger.Info("extraction started",
		"job_id", req.JobID,
		"sources", len(req.Sources),
		"strict", req.Options.StrictValidation,
		"ai", req.Options.EnableAI)

	outcomes := e.processSources(ctx, req)

	// Cancellation observed mid-run ends the job in CANCELLED with whatever
	// sources completed.
	cancelled := ctx.Err() != nil

	var all []domain.Contact
	for i, out := range outcomes {
		if out.err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: %v", req.Sources[i].URL, out.err))
			continue
		}
		result.SourcesProcessed++
		if out.cacheHit {
			result.Metrics.CacheHits++
		} else if req.Options.EnableCaching {
			result.Metrics.CacheMisses++
		}
		all = append(all, out.contacts...)
	}

	final, groups, err := e.aggregate(all, req.Options)
	if err != nil {
		return e.fail(ctx, result, start, "aggregate", err)
	}

	result.Contacts = final
	result.DuplicateGroups = groups
	result.ContactsFound = len(all)
	result.ContactsImported = 0
	for _, c := range final {
		if !c.IsDuplicate {
			result.ContactsImported++
		}
	}
	result.Elapsed = time.Since(start)
	fillMetrics(result)

	if e.store != nil {
		for i := range result.Contacts {
			result.Contacts[i].ExtractionID = req.JobID
			result.Contacts[i].SearchID = req.SearchID
		}
		if err := e.store.AddContacts(ctx, req.JobID, result.Contacts); err != nil {
			return e.fail(ctx, result, start, "persist_contacts", err)
		}
		if err := e.store.AddDuplicateGroups(ctx, req.JobID, result.DuplicateGroups); err != nil {
			return e.fail(ctx, result, start, "persist_groups", err)
		}
		if err := e.store.FinishJob(ctx, result); err != nil {
			return e.fail(ctx, result, start, "finish_job", err)
		}
	}

	status := domain.JobCompleted
	if cancelled {
		status = domain.JobCancelled
	}
	result.Status = status
	if e.store != nil {
		if err := e.store.UpdateJobStatus(ctx, req.JobID, status, ""); err != nil {
			e.logger.Warn("status update failed", "job_id", req.JobID, "err", err)
		}
	}

	e.logger.Info("extraction finished",
		"job_id", req.JobID,
		"status", result.Status,
		"sources_processed", result.SourcesProcessed,
		"contacts", result.ContactsImported,
		"duplicates", len(result.DuplicateGroups),
		"elapsed", result.Elapsed)
	return result, nil
}

func (e *Extractor) fail(ctx context.Context, result *domain.Result, start time.Time, stage string, err error) (*domain.Result, error) {
	result.Status = domain.JobFailed
	result.Elapsed = time.Since(start)
	extErr := &ExtractionError{JobID: result.JobID, Stage: stage, Err: err}
	result.Errors = append(result.Errors, extErr.Error())
	if e.store != nil {
		if uerr := e.store.UpdateJobStatus(ctx, result.JobID, domain.JobFailed, extErr.Error()); uerr != nil && !errors.Is(uerr, store.ErrJobNotFound) {
			e.logger.Warn("failure status update failed", "job_id", result.JobID, "err", uerr)
		}
	}
	e.logger.Error("extraction failed", "job_id", result.JobID, "stage", stage, "err", err)
	return result, extErr
}

// processSources fans sources out over at most MaxConcurrent workers.
// Outcomes are indexed by source position so concurrency never changes the
// result ordering.
func (e *Extractor) processSources(ctx context.Context, req domain.ExtractionRequest) []sourceOutcome {
	outcomes := make([]sourceOutcome, len(req.Sources))
	sem := make(chan struct{}, req.Options.MaxConcurrent)
	var wg sync.WaitGroup

	for i, src := range req.Sources {
		if ctx.Err() != nil {
			outcomes[i] = sourceOutcome{err: ctx.Err()}
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, src domain.Source) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = e.processSource(ctx, req, src)
		}(i, src)
	}
	wg.Wait()
	return outcomes
}

// processSource runs the per-source chain under the per-source timeout.
func (e *Extractor) processSource(ctx context.Context, req domain.ExtractionRequest, src domain.Source) sourceOutcome {
	ctx, cancel := context.WithTimeout(ctx, req.Options.ProcessingTimeout)
	defer cancel()

	opts := req.Options

	if opts.EnableCaching && e.cache != nil {
		if entry, ok := e.cache.Get(src.URL); ok {
			e.logStage(ctx, req.JobID, src.URL, "cache_hit",
				fmt.Sprintf("%d contacts", len(entry.Contacts)), 0)
			return sourceOutcome{contacts: cloneContacts(entry.Contacts), cacheHit: true}
		}
	}

	parseStart := time.Now()
	pc, err := e.parser.Parse(ctx, src.URL, content.Options{})
	if err != nil {
		return sourceOutcome{err: err}
	}
	e.logStage(ctx, req.JobID, src.URL, "parse",
		fmt.Sprintf("%d words", pc.WordCount), time.Since(parseStart))

	assessment := score.AssessContent(pc)
	if opts.EnableQualityCheck && opts.StrictValidation && assessment.Overall < score.MinContentQuality {
		// The gate fires before any model call is spent on junk content.
		return sourceOutcome{err: &score.LowQualityError{URL: src.URL, Score: assessment.Overall}}
	}

	var contacts []domain.Contact
	if opts.EnableAI && e.identifier != nil {
		aiStart := time.Now()
		contacts, err = e.identifier.Identify(ctx, pc, identify.Options{
			MaxContacts:   opts.MaxContactsPerSource,
			Strict:        opts.StrictValidation,
			IncludeBio:    opts.IncludeBio,
			IncludeSocial: opts.IncludeSocial,
		})
		if err != nil {
			return sourceOutcome{err: err}
		}
		e.logStage(ctx, req.JobID, src.URL, "identify",
			fmt.Sprintf("%d candidates", len(contacts)), time.Since(aiStart))
	} else {
		contacts = rulesBasedCandidates(pc)
		e.logStage(ctx, req.JobID, src.URL, "identify_rules",
			fmt.Sprintf("%d candidates", len(contacts)), 0)
	}

	contacts = e.validateEmails(ctx, contacts, opts)
	if opts.EnableSocialDetection {
		contacts = e.enrichSocial(ctx, contacts, pc)
	}

	// Re-score after validation and enrichment changed the evidence.
	kept := contacts[:0]
	for _, c := range contacts {
		c.ConfidenceScore, c.Metadata.ConfidenceFactors = score.Confidence(c)
		c.RelevanceScore, c.Metadata.RelevanceFactors = score.Relevance(c)
		c.QualityScore, c.Metadata.QualityFactors = score.Quality(c)
		if c.ConfidenceScore < opts.ConfidenceThreshold {
			continue
		}
		kept = append(kept, c)
	}
	contacts = kept

	if opts.EnableCaching && e.cache != nil {
		e.cache.Set(pc, cloneContacts(contacts), assessment.Overall)
	}
	return sourceOutcome{contacts: contacts}
}

// validateEmails stamps type and validation status on every contact that
// carries an address. Under strict validation, disposable addresses drop
// the contact entirely.
func (e *Extractor) validateEmails(ctx context.Context, contacts []domain.Contact, opts domain.ExtractionOptions) []domain.Contact {
	out := contacts[:0]
	for _, c := range contacts {
		if c.Email == "" || !opts.EnableEmailValidation || e.validator == nil {
			if c.Email != "" {
				c.EmailValidationStatus = domain.EmailUnvalidated
				c.EmailType = domain.EmailUnknown
			}
			out = append(out, c)
			continue
		}
		stepStart := time.Now()
		report, err := e.validator.ValidateEmail(ctx, c.Email, validate.Options{CheckDomain: true})
		if err != nil {
			c.EmailValidationStatus = domain.EmailUnvalidated
			c.EmailType = domain.EmailUnknown
			out = append(out, c)
			continue
		}
		if opts.StrictValidation && report.IsDisposable {
			continue
		}
		c.EmailType = report.Type
		c.EmailValidationStatus = report.Status
		c.Metadata.Steps = append(c.Metadata.Steps, domain.StepLog{
			Stage:    "email_validation",
			Detail:   string(report.Status),
			Duration: time.Since(stepStart),
			At:       time.Now().UTC(),
		})
		out = append(out, c)
	}
	return out
}

// enrichSocial merges profiles detected in the contact's own text with the
// candidates the identifier attached, then validates and enriches each one.
func (e *Extractor) enrichSocial(ctx context.Context, contacts []domain.Contact, pc *content.ParsedContent) []domain.Contact {
	for i := range contacts {
		c := &contacts[i]

		seen := make(map[string]struct{}, len(c.SocialProfiles))
		for _, p := range c.SocialProfiles {
			seen[p.Key()] = struct{}{}
		}
		for _, p := range social.Detect(c.Bio + " " + c.ContactInfo.Handles) {
			if _, dup := seen[p.Key()]; dup {
				continue
			}
			seen[p.Key()] = struct{}{}
			c.SocialProfiles = append(c.SocialProfiles, p)
		}

		stepStart := time.Now()
		valid := c.SocialProfiles[:0]
		for _, p := range c.SocialProfiles {
			if enriched, err := e.enricher.Enrich(ctx, p); err == nil {
				p = enriched
			}
			if check := social.ValidateProfile(p); !check.Valid {
				continue
			}
			valid = append(valid, p)
		}
		c.SocialProfiles = valid
		if len(valid) > 0 {
			c.Metadata.Steps = append(c.Metadata.Steps, domain.StepLog{
				Stage:    "social_enrichment",
				Detail:   fmt.Sprintf("%d profiles", len(valid)),
				Duration: time.Since(stepStart),
				At:       time.Now().UTC(),
			})
		}
	}
	return contacts
}

// rulesBasedCandidates is the no-AI fallback: emails found by regex become
// skeleton contacts attributed to the page.
func rulesBasedCandidates(pc *content.ParsedContent) []domain.Contact {
	emails := content.ExtractEmails(pc.Text)
	phones := content.ExtractPhones(pc.Text)
	contacts := make([]domain.Contact, 0, len(emails))
	for i, email := range emails {
		name := "Unknown"
		if pc.Author != "" {
			name = pc.Author
		}
		c := domain.Contact{
			ID:                 uuid.NewString(),
			SourceURL:          pc.URL,
			Name:               name,
			Email:              email,
			ExtractionMethod:   domain.MethodRules,
			ConfidenceScore:    0.4,
			VerificationStatus: domain.VerificationPending,
			CreatedAt:          time.Now().UTC(),
		}
		// Phones cannot be attributed to a person by regex alone; attach
		// them only when the page yields a single contact.
		if i == 0 && len(emails) == 1 && len(phones) > 0 {
			c.ContactInfo.Phone = phones[0]
		}
		contacts = append(contacts, c)
	}
	return contacts
}

// aggregate applies the batch-level filters, the per-source cap, and
// deduplication, and returns the final ordered contact set.
func (e *Extractor) aggregate(all []domain.Contact, opts domain.ExtractionOptions) ([]domain.Contact, []domain.DuplicateGroup, error) {
	filtered := make([]domain.Contact, 0, len(all))
	for _, c := range all {
		if c.ConfidenceScore < opts.ConfidenceThreshold {
			continue
		}
		if opts.EnableQualityCheck && c.QualityScore < 0.3 {
			continue
		}
		filtered = append(filtered, c)
	}

	filtered = capPerSource(filtered, opts.MaxContactsPerSource)

	var groups []domain.DuplicateGroup
	if opts.EnableDeduplication {
		dres := dedup.Detect(filtered)
		groups = dres.Groups
	}

	// Deterministic order: confidence descending, ID ascending on ties.
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].ConfidenceScore != filtered[j].ConfidenceScore {
			return filtered[i].ConfidenceScore > filtered[j].ConfidenceScore
		}
		return filtered[i].ID < filtered[j].ID
	})
	return filtered, groups, nil
}

// capPerSource keeps the top-N contacts per source URL by confidence.
func capPerSource(contacts []domain.Contact, max int) []domain.Contact {
	if max <= 0 {
		return contacts
	}
	bySource := make(map[string][]int)
	for i, c := range contacts {
		bySource[c.SourceURL] = append(bySource[c.SourceURL], i)
	}
	drop := make(map[int]struct{})
	for _, idxs := range bySource {
		if len(idxs) <= max {
			continue
		}
		sorted := append([]int(nil), idxs...)
		sort.SliceStable(sorted, func(a, b int) bool {
			return contacts[sorted[a]].ConfidenceScore > contacts[sorted[b]].ConfidenceScore
		})
		for _, idx := range sorted[max:] {
			drop[idx] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return contacts
	}
	out := make([]domain.Contact, 0, len(contacts)-len(drop))
	for i, c := range contacts {
		if _, gone := drop[i]; gone {
			continue
		}
		out = append(out, c)
	}
	return out
}

func fillMetrics(result *domain.Result) {
	m := &result.Metrics
	if secs := result.Elapsed.Seconds(); secs > 0 {
		m.ContactsPerSecond = float64(result.ContactsFound) / secs
	}

	var confSum, qualSum float64
	withEmail, validEmail, withSocial := 0, 0, 0
	for _, c := range result.Contacts {
		m.ConfidenceDistribution.Bucket(c.ConfidenceScore)
		m.QualityDistribution.Bucket(c.QualityScore)
		confSum += c.ConfidenceScore
		qualSum += c.QualityScore
		if c.Email != "" {
			withEmail++
			if c.EmailValidationStatus == domain.EmailValid {
				validEmail++
			}
		}
		if len(c.SocialProfiles) > 0 {
			withSocial++
		}
	}
	if n := len(result.Contacts); n > 0 {
		result.AvgConfidence = confSum / float64(n)
		result.AvgQuality = qualSum / float64(n)
		m.SocialDetectionRate = float64(withSocial) / float64(n)
	}
	if withEmail > 0 {
		m.EmailValidationRate = float64(validEmail) / float64(withEmail)
	}
}

func (e *Extractor) logStage(ctx context.Context, jobID, sourceURL, stage, detail string, elapsed time.Duration) {
	e.logger.Debug("stage", "job_id", jobID, "url", sourceURL, "stage", stage, "detail", detail, "elapsed", elapsed)
	if e.store == nil || jobID == "" {
		return
	}
	row := &store.StageLogRow{
		JobID:     jobID,
		SourceURL: sourceURL,
		Stage:     stage,
		Detail:    detail,
		Duration:  elapsed,
	}
	if err := e.store.AddStageLog(ctx, row); err != nil && !strings.Contains(err.Error(), "FOREIGN KEY") {
		e.logger.Warn("stage log failed", "job_id", jobID, "err", err)
	}
}

func cloneContacts(in []domain.Contact) []domain.Contact {
	out := make([]domain.Contact, len(in))
	copy(out, in)
	return out
}

// Statistics reports store-level aggregates for a user, or globally when
// userID is empty.
func (e *Extractor) Statistics(ctx context.Context, userID string) (*store.Stats, error) {
	if e.store == nil {
		return &store.Stats{}, nil
	}
	return e.store.Stats(ctx, userID)
}
