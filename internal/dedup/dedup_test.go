package dedup

import (
	"testing"
	"time"

	"github.com/mediadesk/scout/internal/domain"
)

func contact(id, name, email string) domain.Contact {
	return domain.Contact{
		ID:              id,
		Name:            name,
		Email:           email,
		ConfidenceScore: 0.5,
		CreatedAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestDetectEmptyInput(t *testing.T) {
	res := Detect(nil)
	if len(res.Unique) != 0 || len(res.Groups) != 0 || res.TotalDuplicates != 0 {
		t.Errorf("Detect(nil) = %+v, want empty result", res)
	}
}

func TestDetectEmailMatch(t *testing.T) {
	a := contact("a", "Jane Doe", "jane.doe@outlet.com")
	b := contact("b", "J. Doe", "JANE.DOE@OUTLET.COM")
	c := contact("c", "Bob Smith", "bob@other.com")

	res := Detect([]domain.Contact{a, b, c})

	if len(res.Groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(res.Groups))
	}
	g := res.Groups[0]
	if g.Type != domain.DupEmail {
		t.Errorf("group type = %s, want email", g.Type)
	}
	if g.Similarity != 1.0 {
		t.Errorf("similarity = %f, want 1.0", g.Similarity)
	}
	if len(res.Unique) != 2 {
		t.Errorf("unique = %d, want 2", len(res.Unique))
	}
	if res.TotalDuplicates != 1 {
		t.Errorf("duplicates = %d, want 1", res.TotalDuplicates)
	}
}

func TestDetectNameAndOutletMatch(t *testing.T) {
	a := contact("a", "Jane Doe", "jane.doe@outlet.com")
	b := contact("b", "jane doe", "j.doe@outlet.com") // different address, same outlet

	res := Detect([]domain.Contact{a, b})
	if len(res.Groups) != 1 {
		t.Fatalf("groups = %d, want 1 (name+outlet)", len(res.Groups))
	}
	if res.Groups[0].Type != domain.DupNameOutlet {
		t.Errorf("group type = %s, want name_outlet", res.Groups[0].Type)
	}
}

func TestDetectNameAndTitleFuzzyMatch(t *testing.T) {
	// Long names matching on 6 of 7 tokens land in the fuzzy band below 1.0;
	// an identical title must still link them.
	a := contact("a", "Maria Fernanda Silva Santos de Oliveira Costa", "")
	a.Title = "Climate Reporter"
	a.SourceURL = "https://outlet-one.com/article"
	b := contact("b", "Maria Fernanda Silva Santos de Oliveira Souza", "")
	b.Title = "Climate Reporter"
	b.SourceURL = "https://outlet-two.com/interview"

	if sim := NameSimilarity(a.Name, b.Name); sim < 0.85 || sim >= 1 {
		t.Fatalf("NameSimilarity = %f, want [0.85, 1)", sim)
	}

	res := Detect([]domain.Contact{a, b})
	if len(res.Groups) != 1 {
		t.Fatalf("groups = %d, want 1 (name+title)", len(res.Groups))
	}
	if res.Groups[0].Type != domain.DupNameTitle {
		t.Errorf("group type = %s, want name_title", res.Groups[0].Type)
	}

	// Without the title agreement the fuzzy names alone carry no signal.
	b.Title = "Photo Editor"
	res = Detect([]domain.Contact{a, b})
	if len(res.Groups) != 0 {
		t.Errorf("fuzzy names without title produced a group: %+v", res.Groups)
	}
}

func TestDetectFreeMailCarriesNoOutlet(t *testing.T) {
	a := contact("a", "Jane Doe", "jane.doe@gmail.com")
	b := contact("b", "Jane Doe", "janedoe99@gmail.com")

	res := Detect([]domain.Contact{a, b})
	if len(res.Groups) != 0 {
		t.Errorf("free-mail addresses produced a group: %+v", res.Groups)
	}
}

func TestDetectSharedVerifiedSocial(t *testing.T) {
	a := contact("a", "Jane Doe", "")
	a.SocialProfiles = []domain.SocialProfile{{Platform: "twitter", Handle: "realjourno", Verified: true}}
	b := contact("b", "J.D.", "")
	b.SocialProfiles = []domain.SocialProfile{{Platform: "Twitter", Handle: "RealJourno", Verified: true}}

	res := Detect([]domain.Contact{a, b})
	if len(res.Groups) != 1 {
		t.Fatalf("groups = %d, want 1 (shared verified handle)", len(res.Groups))
	}
	if res.Groups[0].Type != domain.DupSocial {
		t.Errorf("group type = %s, want social", res.Groups[0].Type)
	}
}

func TestCanonicalElection(t *testing.T) {
	low := contact("z-low", "Jane Doe", "jane.doe@outlet.com")
	low.ConfidenceScore = 0.4
	high := contact("a-high", "Jane Doe", "jane.doe@outlet.com")
	high.ConfidenceScore = 0.9

	res := Detect([]domain.Contact{low, high})
	if len(res.Groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(res.Groups))
	}
	if res.Groups[0].CanonicalID != "a-high" {
		t.Errorf("canonical = %s, want highest confidence a-high", res.Groups[0].CanonicalID)
	}
	if len(res.Unique) != 1 || res.Unique[0].ID != "a-high" {
		t.Errorf("unique = %+v, want only canonical", res.Unique)
	}
}

func TestCanonicalTieBreaks(t *testing.T) {
	early := contact("b", "Jane Doe", "jane.doe@outlet.com")
	early.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := contact("a", "Jane Doe", "jane.doe@outlet.com")
	late.CreatedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	res := Detect([]domain.Contact{late, early})
	if res.Groups[0].CanonicalID != "b" {
		t.Errorf("canonical = %s, want earliest-created b", res.Groups[0].CanonicalID)
	}

	// Equal confidence and time: lowest ID wins.
	x := contact("x", "Jane Doe", "jane.doe@outlet.com")
	w := contact("w", "Jane Doe", "jane.doe@outlet.com")
	res = Detect([]domain.Contact{x, w})
	if res.Groups[0].CanonicalID != "w" {
		t.Errorf("canonical = %s, want lowest ID w", res.Groups[0].CanonicalID)
	}
}

func TestDetectOrderIndependent(t *testing.T) {
	build := func() []domain.Contact {
		return []domain.Contact{
			contact("a", "Jane Doe", "jane.doe@outlet.com"),
			contact("b", "Jane Doe", "jane.doe@outlet.com"),
			contact("c", "Bob Smith", "bob@other.com"),
		}
	}
	forward := Detect(build())

	reversed := build()
	reversed[0], reversed[2] = reversed[2], reversed[0]
	backward := Detect(reversed)

	if forward.Groups[0].CanonicalID != backward.Groups[0].CanonicalID {
		t.Errorf("canonical depends on input order: %s vs %s",
			forward.Groups[0].CanonicalID, backward.Groups[0].CanonicalID)
	}
	if forward.TotalDuplicates != backward.TotalDuplicates {
		t.Errorf("duplicate count depends on input order")
	}
}

func TestDuplicatesMarkedAndRetained(t *testing.T) {
	a := contact("a", "Jane Doe", "jane.doe@outlet.com")
	a.ConfidenceScore = 0.9
	b := contact("b", "Jane Doe", "jane.doe@outlet.com")
	b.ConfidenceScore = 0.4

	contacts := []domain.Contact{a, b}
	Detect(contacts)

	if contacts[0].IsDuplicate {
		t.Error("canonical marked duplicate")
	}
	if !contacts[1].IsDuplicate || contacts[1].DuplicateOf != "a" {
		t.Errorf("duplicate not marked: %+v", contacts[1])
	}
}

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"Jane Doe", "Jane Doe", 1, 1},
		{"Jane Doe", "jane doe", 1, 1},
		{"Jane Doe", "Jane M. Doe", 0.9, 1},       // single initial is dropped
		{"Jane Johnson", "Jane Johnsen", 0.99, 1}, // typo tolerance in long tokens
		{"Jane Doe", "Bob Smith", 0, 0.3},
		{"", "Jane Doe", 0, 0},
	}
	for _, tt := range tests {
		got := NameSimilarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("NameSimilarity(%q, %q) = %f, want [%f, %f]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}
