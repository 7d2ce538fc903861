// Package identify turns parsed page content into contact candidates using a
// generative text model.
//
// The identifier owns the prompt contract, the retry policy for transient
// provider failures, and the boundary validation of whatever JSON comes back.
// Model output is never trusted: every field is checked, clamped, or dropped
// before a candidate becomes a Contact.
package identify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mediadesk/scout/internal/content"
	"github.com/mediadesk/scout/internal/domain"
	"github.com/mediadesk/scout/internal/llm"
	"github.com/mediadesk/scout/internal/retry"
	"github.com/mediadesk/scout/internal/score"
	"github.com/mediadesk/scout/internal/social"
)

// maxPromptContent bounds how much page text goes into one prompt.
const maxPromptContent = 4000

// minCandidateConfidence drops candidates the model itself barely believes in.
const minCandidateConfidence = 0.3

const systemPrompt = `You are a contact researcher. You identify real, individual people (journalists, editors, experts, spokespeople) mentioned in web content, together with their professional contact details. You respond only with a JSON array. Never invent people or contact details that are not supported by the text.`

// AICallError reports that the provider could not be reached after retries.
// It is a per-source failure, not a job failure.
type AICallError struct {
	URL string
	Err error
}

func (e *AICallError) Error() string {
	return fmt.Sprintf("ai identification failed for %s: %v", e.URL, e.Err)
}
func (e *AICallError) Unwrap() error { return e.Err }

// AIParseError reports that the provider answered but the answer held no
// usable JSON array.
type AIParseError struct {
	URL     string
	Snippet string
	Err     error
}

func (e *AIParseError) Error() string {
	return fmt.Sprintf("unparseable ai response for %s: %v", e.URL, e.Err)
}
func (e *AIParseError) Unwrap() error { return e.Err }

// candidate is the wire shape the model is asked to produce.
type candidate struct {
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	Email      string   `json:"email"`
	Bio        string   `json:"bio"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Social     []string `json:"social_handles"`
	Phone      string   `json:"phone"`
	Website    string   `json:"website"`
}

// Options tunes one identification call.
type Options struct {
	MaxContacts   int
	MinConfidence float64
	Strict        bool
	IncludeBio    bool
	IncludeSocial bool
}

// Identifier runs AI candidate identification against an llm.Provider.
type Identifier struct {
	provider llm.Provider
	policy   retry.Policy
	logger   *slog.Logger
}

// New builds an identifier with the default retry policy.
func New(provider llm.Provider, logger *slog.Logger) *Identifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Identifier{provider: provider, policy: retry.DefaultPolicy(), logger: logger}
}

// Identify asks the model for contact candidates in pc and returns validated,
// scored contacts in the model's original order.
func (id *Identifier) Identify(ctx context.Context, pc *content.ParsedContent, opts Options) ([]domain.Contact, error) {
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = minCandidateConfidence
	}
	prompt := BuildPrompt(pc, opts)

	var raw string
	err := id.policy.Do(ctx, func(ctx context.Context) error {
		start := time.Now()
		out, err := id.provider.Complete(ctx, prompt, llm.CompletionOpts{
			System:      systemPrompt,
			Temperature: 0.1,
			MaxTokens:   2000,
		})
		if err != nil {
			var httpErr *llm.HTTPError
			if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
				return retry.After(httpErr.RetryAfter, err)
			}
			return err
		}
		id.logger.Debug("llm completion",
			"provider", id.provider.Name(),
			"elapsed", time.Since(start),
			"chars", len(out))
		raw = out
		return nil
	})
	if err != nil {
		return nil, &AICallError{URL: pc.URL, Err: err}
	}

	candidates, err := parseCandidates(raw)
	if err != nil {
		return nil, &AIParseError{URL: pc.URL, Snippet: snippet(raw), Err: err}
	}

	contacts := make([]domain.Contact, 0, len(candidates))
	for _, cand := range candidates {
		contact, ok := id.validate(cand, pc, opts)
		if !ok {
			continue
		}
		contacts = append(contacts, contact)
		if opts.MaxContacts > 0 && len(contacts) >= opts.MaxContacts {
			break
		}
	}
	return contacts, nil
}

// BuildPrompt assembles the bounded identification prompt: page metadata,
// truncated body text, then the sentences most likely to carry contact
// details (bios and social mentions), which survive truncation even when
// they sit deep in the page.
func BuildPrompt(pc *content.ParsedContent, opts Options) string {
	var b strings.Builder

	b.WriteString("Identify every real person with professional contact relevance in the following web content.\n\n")
	fmt.Fprintf(&b, "URL: %s\n", pc.URL)
	if pc.Title != "" {
		fmt.Fprintf(&b, "Page title: %s\n", pc.Title)
	}
	if pc.Author != "" {
		fmt.Fprintf(&b, "Byline author: %s\n", pc.Author)
	}
	if pc.PublishedAt != nil {
		fmt.Fprintf(&b, "Published: %s\n", pc.PublishedAt.Format("2006-01-02"))
	}
	b.WriteString("\n--- CONTENT ---\n")

	// The bio and social sections share the content budget with the body
	// excerpt, each taking at most a quarter of it, so the total page text in
	// one prompt stays near maxPromptContent.
	bios, biosLen := capSentences(bioSentences(pc.Text), maxPromptContent/4)
	mentions, mentionsLen := capSentences(socialSentences(pc.Text), maxPromptContent/4)

	text := content.NormalizeWhitespace(pc.Text)
	if budget := maxPromptContent - biosLen - mentionsLen; len(text) > budget {
		text = text[:budget]
	}
	b.WriteString(text)
	b.WriteString("\n--- END CONTENT ---\n")

	if len(bios) > 0 {
		b.WriteString("\nBio-like sentences found on the page:\n")
		for _, s := range bios {
			b.WriteString("- " + s + "\n")
		}
	}
	if len(mentions) > 0 {
		b.WriteString("\nSentences mentioning social media handles:\n")
		for _, s := range mentions {
			b.WriteString("- " + s + "\n")
		}
	}

	b.WriteString("\nReturn a JSON array. Each element:\n")
	b.WriteString(`{"name": "Full Name", "title": "Job title or empty", "email": "address or empty", `)
	if opts.IncludeBio {
		b.WriteString(`"bio": "one-sentence professional bio or empty", `)
	}
	if opts.IncludeSocial {
		b.WriteString(`"social_handles": ["@handle or profile URL"], `)
	}
	b.WriteString(`"phone": "phone or empty", "website": "personal site or empty", `)
	b.WriteString(`"confidence": 0.0-1.0, "reasoning": "one sentence on the evidence"}` + "\n")
	b.WriteString("Only include people supported by the text. Return [] if none are found.\n")
	return b.String()
}

// capSentences keeps leading sentences until the byte budget is spent and
// returns the bytes they will occupy as prompt bullet lines.
func capSentences(list []string, budget int) ([]string, int) {
	used := 0
	out := make([]string, 0, len(list))
	for _, s := range list {
		cost := len(s) + 3 // "- " prefix and newline
		if used+cost > budget {
			break
		}
		used += cost
		out = append(out, s)
	}
	return out, used
}

var bioKeywords = []string{
	"covers", "writes about", "reports on", "is a ", "is an ", "is the ",
	"specializes", "based in", "previously", "award", "author of", "years of experience",
}

var contactKeywords = []string{
	"email", "contact", "reach", "@", "tip", "twitter", "linkedin", "follow",
}

// bioSentences returns sentences that read like author bios: they combine a
// bio-style phrase with a contact signal.
func bioSentences(text string) []string {
	var out []string
	for _, s := range splitSentences(text) {
		lower := strings.ToLower(s)
		if containsAny(lower, bioKeywords) && containsAny(lower, contactKeywords) {
			out = append(out, s)
			if len(out) >= 8 {
				break
			}
		}
	}
	return out
}

func socialSentences(text string) []string {
	var out []string
	for _, s := range splitSentences(text) {
		if len(social.Detect(s)) > 0 {
			out = append(out, s)
			if len(out) >= 8 {
				break
			}
		}
	}
	return out
}

func splitSentences(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if len(f) < 20 || len(f) > 400 {
			continue
		}
		out = append(out, f)
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// parseCandidates extracts the first JSON array from the model response.
// Models wrap arrays in prose and code fences often enough that a strict
// json.Unmarshal of the whole body would reject valid answers.
func parseCandidates(raw string) ([]candidate, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in response")
	}
	var candidates []candidate
	if err := json.Unmarshal([]byte(raw[start:end+1]), &candidates); err != nil {
		return nil, fmt.Errorf("decoding candidate array: %w", err)
	}
	return candidates, nil
}

// validate applies boundary rules to one model candidate. Bad optional fields
// are dropped; only a missing identity rejects the whole candidate.
func (id *Identifier) validate(cand candidate, pc *content.ParsedContent, opts Options) (domain.Contact, bool) {
	name := strings.TrimSpace(cand.Name)
	if name == "" {
		name = "Unknown"
	}

	conf := cand.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	if conf < opts.MinConfidence {
		return domain.Contact{}, false
	}

	email := strings.ToLower(strings.TrimSpace(cand.Email))
	if email != "" && !looksLikeEmail(email) {
		email = ""
	}

	if opts.Strict {
		if email == "" && strings.TrimSpace(cand.Title) == "" {
			return domain.Contact{}, false
		}
		if !score.RealisticName(name) {
			return domain.Contact{}, false
		}
	}

	contact := domain.Contact{
		ID:                 uuid.NewString(),
		SourceURL:          pc.URL,
		Name:               name,
		Title:              strings.TrimSpace(cand.Title),
		Email:              email,
		ExtractionMethod:   domain.MethodAI,
		ConfidenceScore:    conf,
		VerificationStatus: domain.VerificationPending,
		CreatedAt:          time.Now().UTC(),
		ContactInfo: domain.ContactInfo{
			Phone:   strings.TrimSpace(cand.Phone),
			Website: strings.TrimSpace(cand.Website),
		},
		Metadata: domain.ContactMetadata{AIReasoning: strings.TrimSpace(cand.Reasoning)},
	}
	if opts.IncludeBio {
		contact.Bio = strings.TrimSpace(cand.Bio)
	}
	if opts.IncludeSocial {
		for _, h := range cand.Social {
			for _, p := range social.Detect(h) {
				contact.SocialProfiles = append(contact.SocialProfiles, p)
			}
		}
		contact.ContactInfo.Handles = strings.Join(cand.Social, " ")
	}

	contact.ConfidenceScore, contact.Metadata.ConfidenceFactors = score.Confidence(contact)
	contact.RelevanceScore, contact.Metadata.RelevanceFactors = score.Relevance(contact)
	contact.QualityScore, contact.Metadata.QualityFactors = score.Quality(contact)
	return contact, true
}

func looksLikeEmail(s string) bool {
	at := strings.Index(s, "@")
	if at <= 0 || at == len(s)-1 {
		return false
	}
	return strings.Contains(s[at+1:], ".") && !strings.ContainsAny(s, " \t\n")
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
