package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mediadesk/scout/internal/cache"
	"github.com/mediadesk/scout/internal/content"
	"github.com/mediadesk/scout/internal/domain"
	"github.com/mediadesk/scout/internal/identify"
	"github.com/mediadesk/scout/internal/llm"
	"github.com/mediadesk/scout/internal/store"
	"github.com/mediadesk/scout/internal/validate"
)

const articleHTML = `<!DOCTYPE html>
<html lang="en">
<head><title>Climate Desk Expands</title>
<meta name="author" content="Jane Doe">
</head>
<body>
<article>
<h1>Climate Desk Expands</h1>
<p>The newspaper announced a bigger climate desk this week. Jane Doe is a senior
climate reporter who covers energy policy and the grid for the outlet. She has
spent a decade on the beat interviewing scientists, editors, and regulators
about the transition.</p>
<p>Readers can reach the desk by email at jane.doe@outlet.com with tips and
story ideas. Follow the desk on social media at https://twitter.com/realjourno
for daily coverage of the newsroom and its journalism.</p>
<p>The editor said the expansion reflects growing reader interest in climate
reporting, and that the team will keep publishing investigations, features,
and explainers about energy and the environment every week.</p>
</article>
</body></html>`

const spamHTML = `<!DOCTYPE html>
<html><head><title>WINNER!!!</title></head>
<body><p>BUY NOW!!! CLICK HERE!!! LIMITED TIME CASINO WINNER CONGRATULATIONS
ACT NOW 100% FREE CRYPTO GIVEAWAY CLICK HERE BUY NOW WINNER</p></body></html>`

// stubProvider is an llm.Provider with canned output and a call counter.
type stubProvider struct {
	response string
	err      error
	calls    atomic.Int64
}

func (s *stubProvider) Complete(_ context.Context, _ string, _ llm.CompletionOpts) (string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubProvider) Name() string { return "stub/model" }

// mxResolver resolves every domain to one MX host.
type mxResolver struct{}

func (mxResolver) LookupMX(_ context.Context, _ string) ([]*net.MX, error) {
	return []*net.MX{{Host: "mx.outlet.com", Pref: 10}}, nil
}

func (mxResolver) LookupHost(_ context.Context, _ string) ([]string, error) {
	return []string{"192.0.2.1"}, nil
}

func newArticleServer(t *testing.T, html string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func providerResponse(email string) string {
	return fmt.Sprintf(`[
	  {"name": "Jane Doe", "title": "Senior Climate Reporter", "email": %q,
	   "bio": "Covers climate policy and energy.", "confidence": 0.9,
	   "reasoning": "named with beat and contact email",
	   "social_handles": ["@realjourno"]}
	]`, email)
}

type testRig struct {
	extractor *Extractor
	provider  *stubProvider
	store     store.Store
	cache     *cache.Cache
}

func newRig(t *testing.T, provider *stubProvider, withStore, withCache bool) *testRig {
	t.Helper()
	rig := &testRig{provider: provider}

	if withStore {
		s, err := store.NewStore(store.Config{DBPath: ":memory:"})
		if err != nil {
			t.Fatalf("NewStore() error: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		rig.store = s
	}
	if withCache {
		rig.cache = cache.New(cache.Config{})
		t.Cleanup(rig.cache.Destroy)
	}

	rig.extractor = New(Config{
		Parser:     content.NewParser(content.ParserConfig{RateLimit: 1000}),
		Identifier: identify.New(provider, nil),
		Validator:  validate.NewEmailValidator(mxResolver{}, nil),
		Cache:      rig.cache,
		Store:      rig.store,
	})
	return rig
}

func defaultRequest(url string) domain.ExtractionRequest {
	opts := domain.DefaultOptions()
	opts.EnableCaching = false
	return domain.ExtractionRequest{
		UserID:  "tester",
		Sources: []domain.Source{{URL: url, Type: domain.SourceTypeArticle}},
		Options: opts,
	}
}

func TestRunHappyPath(t *testing.T) {
	srv := newArticleServer(t, articleHTML)
	provider := &stubProvider{response: providerResponse("jane.doe@outlet.com")}
	rig := newRig(t, provider, true, false)

	result, err := rig.extractor.Run(context.Background(), defaultRequest(srv.URL))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Status != domain.JobCompleted {
		t.Fatalf("status = %s, want COMPLETED (errors: %v)", result.Status, result.Errors)
	}
	if result.SourcesProcessed != 1 {
		t.Errorf("sources processed = %d, want 1", result.SourcesProcessed)
	}
	if len(result.Contacts) != 1 {
		t.Fatalf("contacts = %d, want 1 (errors: %v)", len(result.Contacts), result.Errors)
	}

	c := result.Contacts[0]
	if c.Name != "Jane Doe" || c.Email != "jane.doe@outlet.com" {
		t.Errorf("contact = %+v", c)
	}
	if c.EmailValidationStatus != domain.EmailValid || c.EmailType != domain.EmailPersonal {
		t.Errorf("email validation = %s/%s", c.EmailValidationStatus, c.EmailType)
	}
	if len(c.SocialProfiles) == 0 {
		t.Error("social profiles not attached")
	}
	if c.QualityScore <= 0.5 {
		t.Errorf("quality = %f, want > 0.5 for a complete record", c.QualityScore)
	}
	if c.ExtractionID != result.JobID {
		t.Errorf("ExtractionID = %s, want job %s", c.ExtractionID, result.JobID)
	}
	if result.Metrics.EmailValidationRate != 1 {
		t.Errorf("email validation rate = %f, want 1", result.Metrics.EmailValidationRate)
	}

	// The job and its contacts are persisted.
	job, err := rig.store.GetJob(context.Background(), result.JobID)
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if job.Status != domain.JobCompleted || job.ContactsFound != 1 {
		t.Errorf("persisted job = %+v", job)
	}
	stored, err := rig.store.ListContacts(context.Background(), result.JobID)
	if err != nil || len(stored) != 1 {
		t.Errorf("stored contacts = %d (err %v), want 1", len(stored), err)
	}
	logs, err := rig.store.ListStageLogs(context.Background(), result.JobID)
	if err != nil || len(logs) == 0 {
		t.Errorf("stage logs = %d (err %v), want some", len(logs), err)
	}
}

func TestRunSourceFailureIsWarning(t *testing.T) {
	srv := newArticleServer(t, articleHTML)
	provider := &stubProvider{err: &llm.HTTPError{StatusCode: 500, Message: "down"}}
	rig := newRig(t, provider, true, false)

	req := defaultRequest(srv.URL)
	result, err := rig.extractor.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error: %v, AI failure must not fail the job", err)
	}
	if result.Status != domain.JobCompleted {
		t.Errorf("status = %s, want COMPLETED", result.Status)
	}
	if len(result.Contacts) != 0 {
		t.Errorf("contacts = %d, want 0", len(result.Contacts))
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], srv.URL) {
		t.Errorf("errors = %v, want one warning naming the source", result.Errors)
	}
	if result.SourcesProcessed != 0 {
		t.Errorf("sources processed = %d, want 0", result.SourcesProcessed)
	}
}

func TestRunStrictQualityGateSkipsModel(t *testing.T) {
	srv := newArticleServer(t, spamHTML)
	provider := &stubProvider{response: "[]"}
	rig := newRig(t, provider, false, false)

	req := defaultRequest(srv.URL)
	req.Options.StrictValidation = true

	result, err := rig.extractor.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if provider.calls.Load() != 0 {
		t.Errorf("provider calls = %d, want 0 (gate fires before the model)", provider.calls.Load())
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "quality") {
		t.Errorf("errors = %v, want low-quality warning", result.Errors)
	}
	if result.Status != domain.JobCompleted {
		t.Errorf("status = %s, want COMPLETED", result.Status)
	}
}

func TestRunRulesModeWithoutAI(t *testing.T) {
	srv := newArticleServer(t, articleHTML)
	provider := &stubProvider{response: "[]"}
	rig := newRig(t, provider, false, false)

	req := defaultRequest(srv.URL)
	req.Options.EnableAI = false

	result, err := rig.extractor.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if provider.calls.Load() != 0 {
		t.Errorf("provider calls = %d, want 0", provider.calls.Load())
	}
	if len(result.Contacts) != 1 {
		t.Fatalf("contacts = %d, want 1 from page emails (errors: %v)", len(result.Contacts), result.Errors)
	}
	c := result.Contacts[0]
	if c.ExtractionMethod != domain.MethodRules {
		t.Errorf("method = %s, want RULE_BASED", c.ExtractionMethod)
	}
	if c.Email != "jane.doe@outlet.com" {
		t.Errorf("email = %q", c.Email)
	}
	if c.Name != "Jane Doe" {
		t.Errorf("name = %q, want page author", c.Name)
	}
}

func TestRunCacheHitSkipsReprocessing(t *testing.T) {
	srv := newArticleServer(t, articleHTML)
	provider := &stubProvider{response: providerResponse("jane.doe@outlet.com")}
	rig := newRig(t, provider, false, true)

	req := defaultRequest(srv.URL)
	req.Options.EnableCaching = true

	first, err := rig.extractor.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	if first.Metrics.CacheHits != 0 || first.Metrics.CacheMisses != 1 {
		t.Errorf("first run cache = %d hits / %d misses",
			first.Metrics.CacheHits, first.Metrics.CacheMisses)
	}

	req.JobID = "" // fresh job, same source
	second, err := rig.extractor.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if provider.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1 (second run served from cache)", provider.calls.Load())
	}
	if second.Metrics.CacheHits != 1 {
		t.Errorf("second run cache hits = %d, want 1", second.Metrics.CacheHits)
	}
	if len(second.Contacts) != len(first.Contacts) {
		t.Errorf("cached contacts = %d, want %d", len(second.Contacts), len(first.Contacts))
	}
}

func TestRunCancelledContext(t *testing.T) {
	provider := &stubProvider{response: "[]"}
	rig := newRig(t, provider, false, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := defaultRequest("https://outlet.com/never-fetched")
	result, err := rig.extractor.Run(ctx, req)
	if err != nil {
		t.Fatalf("Run() error: %v, cancellation is not an aggregation fault", err)
	}
	if result.Status != domain.JobCancelled {
		t.Errorf("status = %s, want CANCELLED", result.Status)
	}
	if len(result.Errors) != 1 {
		t.Errorf("errors = %v, want the skipped source", result.Errors)
	}
	if provider.calls.Load() != 0 {
		t.Errorf("provider calls = %d, want 0", provider.calls.Load())
	}
}

func TestRunDeduplicatesAcrossSources(t *testing.T) {
	srv := newArticleServer(t, articleHTML)
	provider := &stubProvider{response: providerResponse("jane.doe@outlet.com")}
	rig := newRig(t, provider, false, false)

	// Two paths on the same host produce the same person twice.
	req := defaultRequest(srv.URL + "/a")
	req.Options.MaxConcurrent = 2
	req.Sources = append(req.Sources, domain.Source{URL: srv.URL + "/b", Type: domain.SourceTypeArticle})

	result, err := rig.extractor.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.ContactsFound != 2 {
		t.Fatalf("contacts found = %d, want 2 (errors: %v)", result.ContactsFound, result.Errors)
	}
	if len(result.DuplicateGroups) != 1 {
		t.Fatalf("duplicate groups = %d, want 1", len(result.DuplicateGroups))
	}
	if result.ContactsImported != 1 {
		t.Errorf("imported = %d, want only the canonical", result.ContactsImported)
	}
	dups := 0
	for _, c := range result.Contacts {
		if c.IsDuplicate {
			dups++
		}
	}
	if dups != 1 {
		t.Errorf("duplicate-marked contacts = %d, want 1", dups)
	}
}

func TestRunInvalidSourceAmongValid(t *testing.T) {
	srv := newArticleServer(t, articleHTML)
	provider := &stubProvider{response: providerResponse("jane.doe@outlet.com")}
	rig := newRig(t, provider, false, false)

	req := defaultRequest("http://127.0.0.1:1/unreachable")
	req.Sources = append(req.Sources, domain.Source{URL: srv.URL, Type: domain.SourceTypeArticle})

	result, err := rig.extractor.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.SourcesProcessed != 1 {
		t.Errorf("sources processed = %d, want 1", result.SourcesProcessed)
	}
	if len(result.Errors) != 1 {
		t.Errorf("errors = %v, want one for the unreachable source", result.Errors)
	}
	if len(result.Contacts) != 1 {
		t.Errorf("contacts = %d, want 1 from the good source", len(result.Contacts))
	}
}

func TestRunResultOrderingDeterministic(t *testing.T) {
	srv := newArticleServer(t, articleHTML)
	response := `[
	  {"name": "Jane Doe", "title": "Reporter", "email": "jane.doe@outlet.com",
	   "confidence": 0.9, "bio": "Covers climate policy for the outlet and beyond."},
	  {"name": "Bob Smith", "title": "Editor", "email": "bob.smith@outlet.com", "confidence": 0.6}
	]`
	provider := &stubProvider{response: response}
	rig := newRig(t, provider, false, false)

	req := defaultRequest(srv.URL)
	req.Options.EnableDeduplication = false

	result, err := rig.extractor.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(result.Contacts) != 2 {
		t.Fatalf("contacts = %d, want 2 (errors: %v)", len(result.Contacts), result.Errors)
	}
	if result.Contacts[0].ConfidenceScore < result.Contacts[1].ConfidenceScore {
		t.Errorf("contacts not ordered by confidence: %f then %f",
			result.Contacts[0].ConfidenceScore, result.Contacts[1].ConfidenceScore)
	}
	if result.Contacts[0].Name != "Jane Doe" {
		t.Errorf("first contact = %s, want highest confidence", result.Contacts[0].Name)
	}
}

func TestRunFailsOnDoubleJobID(t *testing.T) {
	srv := newArticleServer(t, articleHTML)
	provider := &stubProvider{response: providerResponse("jane.doe@outlet.com")}
	rig := newRig(t, provider, true, false)

	req := defaultRequest(srv.URL)
	req.JobID = "fixed-job"
	if _, err := rig.extractor.Run(context.Background(), req); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}

	// Reusing a job ID collides in the store; that is an aggregation fault.
	result, err := rig.extractor.Run(context.Background(), req)
	if err == nil {
		t.Fatal("duplicate job id accepted")
	}
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("err = %T, want *ExtractionError", err)
	}
	if extErr.Stage != "create_job" {
		t.Errorf("stage = %s, want create_job", extErr.Stage)
	}
	if result.Status != domain.JobFailed {
		t.Errorf("status = %s, want FAILED", result.Status)
	}
}

func TestStatisticsWithoutStore(t *testing.T) {
	provider := &stubProvider{response: "[]"}
	rig := newRig(t, provider, false, false)
	stats, err := rig.extractor.Statistics(context.Background(), "")
	if err != nil {
		t.Fatalf("Statistics() error: %v", err)
	}
	if stats.JobCount != 0 {
		t.Errorf("stats = %+v, want zeros", stats)
	}
}

func TestCapPerSource(t *testing.T) {
	contacts := []domain.Contact{
		{ID: "a", SourceURL: "u1", ConfidenceScore: 0.9},
		{ID: "b", SourceURL: "u1", ConfidenceScore: 0.5},
		{ID: "c", SourceURL: "u1", ConfidenceScore: 0.7},
		{ID: "d", SourceURL: "u2", ConfidenceScore: 0.4},
	}
	out := capPerSource(contacts, 2)
	if len(out) != 3 {
		t.Fatalf("kept = %d, want 3", len(out))
	}
	for _, c := range out {
		if c.ID == "b" {
			t.Error("lowest-confidence contact survived the cap")
		}
	}
	if got := capPerSource(contacts, 0); len(got) != 4 {
		t.Errorf("cap 0 dropped contacts: %d", len(got))
	}
}
