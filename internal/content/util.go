package content

import (
	"html"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	urlRE   = regexp.MustCompile(`https?://[^\s<>"'\)\]]+`)
	emailRE = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)
	phoneRE = regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?(?:\(\d{2,4}\)[\s.-]?)?\d{3}[\s.-]\d{3,4}[\s.-]?\d{0,4}`)
)

// IsValidURL reports whether s is an absolute http(s) URL with a host.
func IsValidURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ExtractURLs returns the deduplicated http(s) URLs found in text,
// preserving first-seen order.
func ExtractURLs(text string) []string {
	return dedupMatches(urlRE.FindAllString(text, -1), func(s string) string {
		return strings.TrimRight(s, ".,;:")
	})
}

// ExtractEmails returns the deduplicated email addresses found in text,
// lowercased, preserving first-seen order.
func ExtractEmails(text string) []string {
	return dedupMatches(emailRE.FindAllString(text, -1), strings.ToLower)
}

// ExtractPhones returns the deduplicated phone-number-shaped strings found in
// text. Matches with fewer than 7 digits are discarded to keep dates and
// short figures out.
func ExtractPhones(text string) []string {
	return dedupMatches(phoneRE.FindAllString(text, -1), func(s string) string {
		s = strings.TrimSpace(s)
		digits := 0
		for _, r := range s {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits < 7 || digits > 15 {
			return ""
		}
		return s
	})
}

func dedupMatches(matches []string, normalize func(string) string) []string {
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = normalize(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// NormalizeWhitespace collapses runs of whitespace to single spaces.
func NormalizeWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(text, " "))
}

// DecodeEntities resolves HTML entities in raw markup.
func DecodeEntities(markup string) string {
	return html.UnescapeString(markup)
}

// stopwords per language for the frequency-based detector. Small on purpose:
// high-frequency function words separate these languages well enough for a
// best-guess ISO code.
var stopwords = map[string][]string{
	"en": {"the", "and", "of", "to", "in", "is", "that", "for", "with", "was", "are", "this"},
	"es": {"el", "la", "de", "que", "y", "en", "los", "del", "las", "por", "una", "para"},
	"fr": {"le", "la", "les", "de", "des", "et", "est", "dans", "une", "que", "pour", "qui"},
	"de": {"der", "die", "und", "das", "ist", "von", "den", "mit", "auf", "für", "ein", "nicht"},
	"it": {"il", "di", "che", "la", "per", "non", "una", "sono", "con", "del", "gli", "nel"},
	"pt": {"de", "que", "não", "uma", "para", "com", "os", "mais", "das", "como", "mas", "foi"},
}

// DetectLanguage guesses the dominant language of text from stopword
// frequency. Returns "unknown" when the signal is ambiguous: near-equal top
// scores, no stopword hits, or input without alphabetic words.
func DetectLanguage(text string) string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return "unknown"
	}

	alphabetic := 0
	freq := make(map[string]int, len(words))
	for _, w := range words {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
		if w == "" {
			continue
		}
		alphabetic++
		freq[w]++
	}
	if alphabetic == 0 {
		return "unknown"
	}

	type langScore struct {
		lang  string
		score float64
	}
	scores := make([]langScore, 0, len(stopwords))
	for lang, list := range stopwords {
		hits := 0
		for _, sw := range list {
			hits += freq[sw]
		}
		scores = append(scores, langScore{lang: lang, score: float64(hits) / float64(alphabetic)})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].lang < scores[j].lang
	})

	best := scores[0]
	if best.score == 0 {
		return "unknown"
	}
	// Near-equal runner-up means the evidence is too thin to call.
	if len(scores) > 1 && best.score-scores[1].score < 0.01 {
		return "unknown"
	}
	return best.lang
}
