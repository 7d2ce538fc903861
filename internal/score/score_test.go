package score

import (
	"strings"
	"testing"
	"time"

	"github.com/mediadesk/scout/internal/content"
	"github.com/mediadesk/scout/internal/domain"
)

func fullContact() domain.Contact {
	return domain.Contact{
		Name:  "Jane Doe",
		Title: "Senior Climate Reporter",
		Bio:   "Jane covers climate policy and the energy transition for a national outlet, with a decade on the beat.",
		Email: "jane.doe@outlet.com",
		SocialProfiles: []domain.SocialProfile{
			{Platform: "twitter", Handle: "realjourno", Verified: true},
		},
		ConfidenceScore: 0.85,
	}
}

func TestScoresStayInRange(t *testing.T) {
	contacts := []domain.Contact{
		fullContact(),
		{},
		{Name: "X"},
		{Name: "Jane Doe", Email: "jane.doe@outlet.com", Title: "Editor", ConfidenceScore: 5.0},
	}
	for i, c := range contacts {
		rel, _ := Relevance(c)
		qual, _ := Quality(c)
		conf, _ := Confidence(c)
		for name, v := range map[string]float64{"relevance": rel, "quality": qual, "confidence": conf} {
			if v < 0 || v > 1 {
				t.Errorf("contact %d: %s = %f out of [0,1]", i, name, v)
			}
		}
	}
}

func TestRelevanceRewardsEvidence(t *testing.T) {
	full, factors := Relevance(fullContact())
	bare, _ := Relevance(domain.Contact{Name: "Jane Doe"})
	if full <= bare {
		t.Errorf("full evidence %f <= bare %f", full, bare)
	}
	if _, ok := factors["journalism_role"]; !ok {
		t.Errorf("journalism role not detected, factors = %v", factors)
	}
}

func TestQualityRewardsCompleteness(t *testing.T) {
	full, factors := Quality(fullContact())
	partial, _ := Quality(domain.Contact{Name: "Jane"})
	if full <= partial {
		t.Errorf("complete record %f <= partial %f", full, partial)
	}
	for _, want := range []string{"full_name", "professional_email", "professional_title", "substantial_bio", "verified_social"} {
		if _, ok := factors[want]; !ok {
			t.Errorf("missing quality factor %s in %v", want, factors)
		}
	}
}

func TestConfidenceUsesReportedBaseline(t *testing.T) {
	c := fullContact()
	conf, factors := Confidence(c)
	if factors["reported"] != 0.85 {
		t.Errorf("reported factor = %f, want 0.85", factors["reported"])
	}
	if conf != 0.85 {
		t.Errorf("confidence = %f, want reported 0.85", conf)
	}

	c.ConfidenceScore = 0
	rebuilt, factors := Confidence(c)
	if _, ok := factors["base"]; !ok {
		t.Errorf("evidence rebuild missing base, factors = %v", factors)
	}
	if rebuilt <= 0.3 {
		t.Errorf("rebuilt confidence = %f, want evidence above base", rebuilt)
	}
}

func TestConfidencePenalizesUnrealisticName(t *testing.T) {
	good := fullContact()
	bad := fullContact()
	bad.Name = "Test User"
	gc, _ := Confidence(good)
	bc, _ := Confidence(bad)
	if bc >= gc {
		t.Errorf("unrealistic name not penalized: %f >= %f", bc, gc)
	}
}

func TestRealisticName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Jane Doe", true},
		{"José García", true},
		{"Mary-Ann O'Brien", true},
		{"Test User", false},
		{"Example Person", false},
		{"JANE DOE", false},
		{"jane doe", false},
		{"Jane123", false},
		{"J.", false},
		{"J. D.", false},
		{"", false},
		{strings.Repeat("a", 30), false},
		{"N/A", false},
	}
	for _, tt := range tests {
		if got := RealisticName(tt.name); got != tt.want {
			t.Errorf("RealisticName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func articleContent(words int) *content.ParsedContent {
	published := time.Now().Add(-10 * 24 * time.Hour)
	return &content.ParsedContent{
		URL:         "https://outlet.com/story",
		Title:       "Climate Desk Expands",
		Author:      "Jane Doe",
		PublishedAt: &published,
		Text: strings.TrimSpace(strings.Repeat(
			"The newspaper reporter interviewed the editor about the newsroom. ", words/9)),
		Language:  "en",
		WordCount: words,
	}
}

func TestAssessContent(t *testing.T) {
	good := AssessContent(articleContent(400))
	if good.Overall < MinContentQuality {
		t.Errorf("good article overall = %f, want >= %f", good.Overall, MinContentQuality)
	}
	if !good.IsJournalistic {
		t.Error("journalistic content not flagged")
	}
	if good.Freshness != 1.0 {
		t.Errorf("fresh article freshness = %f, want 1.0", good.Freshness)
	}

	thin := AssessContent(&content.ParsedContent{
		URL:       "https://spam.example",
		Text:      "BUY NOW!!! CLICK HERE!!! LIMITED TIME CASINO WINNER CONGRATULATIONS ACT NOW 100% FREE CRYPTO GIVEAWAY CLICK HERE BUY NOW WINNER",
		WordCount: 18,
	})
	if thin.Overall >= good.Overall {
		t.Errorf("spam page scored %f >= article %f", thin.Overall, good.Overall)
	}
	if thin.SpamScore == 0 {
		t.Error("spam markers not detected")
	}
}

func TestAssessContentUnknownDateIsNeutral(t *testing.T) {
	pc := articleContent(400)
	pc.PublishedAt = nil
	a := AssessContent(pc)
	if a.Freshness != 0.5 {
		t.Errorf("unknown date freshness = %f, want 0.5", a.Freshness)
	}
}

func TestLowQualityError(t *testing.T) {
	err := &LowQualityError{URL: "https://x.example", Score: 0.12}
	if !strings.Contains(err.Error(), "0.12") || !strings.Contains(err.Error(), "x.example") {
		t.Errorf("error message missing context: %s", err.Error())
	}
}
