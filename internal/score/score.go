// Package score computes the three independent contact scores and assesses
// source content quality.
//
// Confidence (is this a real person), quality (how complete/credible the
// record is), and relevance (fit to the search intent) are deliberately kept
// as separate numbers; nothing in the pipeline may collapse them into one.
package score

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/mediadesk/scout/internal/content"
	"github.com/mediadesk/scout/internal/domain"
)

// journalismKeywords mark roles that match the media-relations search intent.
var journalismKeywords = []string{
	"journalist", "reporter", "editor", "correspondent", "columnist",
	"writer", "producer", "anchor", "critic", "bureau chief", "contributor",
	"newsroom", "press", "publication", "magazine", "newspaper",
}

// professionalTitleKeywords mark titles that look like real job roles.
var professionalTitleKeywords = []string{
	"editor", "reporter", "journalist", "correspondent", "director",
	"manager", "head of", "chief", "producer", "analyst", "columnist",
	"writer", "lead", "senior", "officer", "specialist",
}

// freeMailDomains are consumer providers; addresses there score lower on the
// professional-email factor.
var freeMailDomains = map[string]struct{}{
	"gmail.com": {}, "yahoo.com": {}, "hotmail.com": {}, "outlook.com": {},
	"aol.com": {}, "icloud.com": {}, "proton.me": {}, "protonmail.com": {},
	"gmx.com": {}, "mail.com": {},
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Clamp bounds a raw score into [0,1].
func Clamp(v float64) float64 { return clamp01(v) }

// Relevance scores how well a candidate matches the search intent.
// Base 0.5, boosted by evidence presence; capped at 1.0.
func Relevance(c domain.Contact) (float64, map[string]float64) {
	factors := map[string]float64{"base": 0.5}
	if c.Email != "" {
		factors["email_present"] = 0.2
	}
	if c.Title != "" {
		factors["title_present"] = 0.15
	}
	if c.Bio != "" {
		factors["bio_present"] = 0.10
	}
	if len(c.SocialProfiles) > 0 {
		factors["social_present"] = 0.15
	}
	if containsAny(strings.ToLower(c.Name+" "+c.Title+" "+c.Bio), journalismKeywords) {
		factors["journalism_role"] = 0.10
	}
	return clamp01(sum(factors)), factors
}

// Quality scores how complete and credible the record is.
// Base 0.5, boosted by completeness signals; capped at 1.0.
func Quality(c domain.Contact) (float64, map[string]float64) {
	factors := map[string]float64{"base": 0.5}
	if isTwoPartName(c.Name) {
		factors["full_name"] = 0.2
	}
	if isProfessionalEmail(c.Email) {
		factors["professional_email"] = 0.15
	}
	if isProfessionalTitle(c.Title) {
		factors["professional_title"] = 0.10
	}
	if len(c.Bio) > 50 {
		factors["substantial_bio"] = 0.10
	}
	for _, p := range c.SocialProfiles {
		if p.Verified {
			factors["verified_social"] = 0.15
			break
		}
	}
	return clamp01(sum(factors)), factors
}

// Confidence scores the likelihood the candidate is a real, identifiable
// person. AI-reported confidence is the baseline where present; otherwise
// confidence is rebuilt from evidence.
func Confidence(c domain.Contact) (float64, map[string]float64) {
	factors := map[string]float64{}
	if c.ConfidenceScore > 0 {
		factors["reported"] = clamp01(c.ConfidenceScore)
	} else {
		factors["base"] = 0.3
		if c.Email != "" {
			factors["email_evidence"] = 0.2
		}
		if isTwoPartName(c.Name) {
			factors["name_shape"] = 0.2
		}
		if c.Title != "" {
			factors["title_evidence"] = 0.1
		}
		if len(c.SocialProfiles) > 0 {
			factors["social_evidence"] = 0.1
		}
	}
	if !RealisticName(c.Name) {
		factors["unrealistic_name"] = -0.25
	}
	return clamp01(sum(factors)), factors
}

// RealisticName rejects names that read as placeholders or machine noise:
// digits, all-caps, all-lowercase, test/example/sample/demo tokens,
// single-initial forms, or length outside 2-29 characters.
func RealisticName(name string) bool {
	name = strings.TrimSpace(name)
	if len(name) < 2 || len(name) > 29 {
		return false
	}
	lower := strings.ToLower(name)
	for _, token := range []string{"test", "example", "sample", "demo", "unknown", "n/a"} {
		if strings.Contains(lower, token) {
			return false
		}
	}
	hasLetter := false
	for _, r := range name {
		if unicode.IsDigit(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	if !hasLetter {
		return false
	}
	if name == strings.ToUpper(name) && strings.ToUpper(name) != strings.ToLower(name) {
		return false
	}
	if name == strings.ToLower(name) {
		return false
	}
	// Single-initial forms like "J." or "J. D." carry no identity.
	stripped := strings.NewReplacer(".", "", " ", "").Replace(name)
	if len(stripped) <= 2 {
		return false
	}
	return true
}

func isTwoPartName(name string) bool {
	parts := strings.Fields(strings.TrimSpace(name))
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts[:2] {
		if len(p) < 2 {
			return false
		}
	}
	return true
}

func isProfessionalEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return false
	}
	local, host := email[:at], email[at+1:]
	if _, free := freeMailDomains[host]; free {
		// Free-mail still counts when the local part is a first.last shape.
		return strings.Contains(local, ".")
	}
	return true
}

func isProfessionalTitle(title string) bool {
	return containsAny(strings.ToLower(title), professionalTitleKeywords)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func sum(factors map[string]float64) float64 {
	total := 0.0
	for _, v := range factors {
		total += v
	}
	return total
}

// Assessment is the per-source content quality gate input.
type Assessment struct {
	Credibility    float64 `json:"credibility"`
	Freshness      float64 `json:"freshness"`
	Authority      float64 `json:"authority"`
	SpamScore      float64 `json:"spam_score"`
	IsJournalistic bool    `json:"is_journalistic"`
	Overall        float64 `json:"overall"`
}

// LowQualityError is the expected (not transport-level) rejection of a
// source whose content quality falls below the strict-mode gate.
type LowQualityError struct {
	URL   string
	Score float64
}

func (e *LowQualityError) Error() string {
	return fmt.Sprintf("content quality %.2f below threshold for %s", e.Score, e.URL)
}

// MinContentQuality is the strict-mode gate threshold.
const MinContentQuality = 0.3

// AssessContent scores a parsed source document. The overall score gates the
// pipeline under strict validation before any AI identification runs.
func AssessContent(pc *content.ParsedContent) Assessment {
	a := Assessment{}

	// Credibility: enough substantive text, a title, and a byline.
	cred := 0.2
	if pc.WordCount >= 150 {
		cred += 0.3
	} else if pc.WordCount >= 50 {
		cred += 0.15
	}
	if pc.Title != "" {
		cred += 0.2
	}
	if pc.Author != "" {
		cred += 0.3
	}
	a.Credibility = clamp01(cred)

	// Freshness: decays over two years from publication; unknown dates sit
	// in the middle rather than penalizing unparseable sites.
	a.Freshness = 0.5
	if pc.PublishedAt != nil {
		age := time.Since(*pc.PublishedAt)
		switch {
		case age < 30*24*time.Hour:
			a.Freshness = 1.0
		case age < 180*24*time.Hour:
			a.Freshness = 0.8
		case age < 2*365*24*time.Hour:
			a.Freshness = 0.5
		default:
			a.Freshness = 0.2
		}
	}

	// Authority: language identified, reasonable link density, images present.
	auth := 0.3
	if pc.Language != "" && pc.Language != "unknown" {
		auth += 0.3
	}
	if pc.WordCount > 0 && len(pc.Links) > 0 {
		density := float64(len(pc.Links)) / float64(pc.WordCount)
		if density < 0.1 {
			auth += 0.2
		}
	}
	if len(pc.Images) > 0 {
		auth += 0.1
	}
	a.Authority = clamp01(auth)

	a.SpamScore = contentSpamScore(pc.Text)
	a.IsJournalistic = containsAny(strings.ToLower(pc.Text), journalismKeywords) ||
		containsAny(strings.ToLower(pc.Title), journalismKeywords)

	overall := 0.4*a.Credibility + 0.2*a.Freshness + 0.25*a.Authority - 0.3*a.SpamScore
	if a.IsJournalistic {
		overall += 0.15
	}
	a.Overall = clamp01(overall)
	return a
}

// spamMarkers are phrases common in junk and promotional pages.
var spamMarkers = []string{
	"click here", "buy now", "limited time", "act now", "100% free",
	"winner", "congratulations", "casino", "viagra", "crypto giveaway",
}

func contentSpamScore(text string) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, m := range spamMarkers {
		if strings.Contains(lower, m) {
			hits++
		}
	}
	if len(lower) == 0 {
		return 1
	}

	upper := 0
	letters := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	score := float64(hits) * 0.2
	if letters > 50 && float64(upper)/float64(letters) > 0.4 {
		score += 0.3
	}
	return clamp01(score)
}
