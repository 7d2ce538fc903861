// Package dedup clusters contact records that represent the same person.
//
// Candidate pairs are compared on weighted signals: exact email match
// (strongest), fuzzy name + outlet, name + title, and shared verified
// social handles. Matching pairs are merged into clusters with
// union-find. Each cluster elects one canonical member; the rest are marked
// duplicates but retained for auditability.
package dedup

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/mediadesk/scout/internal/domain"
)

// Signal weights. Email identity is near-certain; the fuzzy signals leave
// room for homonyms.
const (
	weightEmail      = 1.0
	weightNameOutlet = 0.85
	weightSocial     = 0.8
	weightNameTitle  = 0.75
)

// matchThreshold is the minimum pair score that links two contacts. It sits
// below the weakest signal at its 0.85 name-similarity floor (0.75 * 0.85),
// so each signal's own guard decides what links.
const matchThreshold = 0.6

// Result is the outcome of duplicate detection over one contact batch.
type Result struct {
	Unique          []domain.Contact
	Groups          []domain.DuplicateGroup
	TotalDuplicates int
	DuplicateRate   float64
}

type pairMatch struct {
	score  float64
	dtype  domain.DuplicateType
	reason string
}

type edgeKey struct{ a, b int }

// Detect clusters contacts and elects canonical members. Input order does
// not affect the outcome; ties are broken deterministically.
func Detect(contacts []domain.Contact) Result {
	n := len(contacts)
	if n == 0 {
		return Result{Unique: []domain.Contact{}}
	}

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	// Pairwise comparison; remember the best match per cluster pair for the
	// group's similarity and reasoning.
	edges := make(map[edgeKey]pairMatch)
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			m, ok := compare(contacts[i], contacts[j])
			if !ok {
				continue
			}
			union(i, j)
			key := edgeKey{i, j}
			if prev, exists := edges[key]; !exists || m.score > prev.score {
				edges[key] = m
			}
		}
	}

	clusters := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := find(i)
		clusters[root] = append(clusters[root], i)
	}

	result := Result{}
	marked := make(map[int]string) // index -> canonical contact ID

	roots := make([]int, 0, len(clusters))
	for root := range clusters {
		roots = append(roots, root)
	}
	sort.Ints(roots)

	for _, root := range roots {
		members := clusters[root]
		if len(members) == 1 {
			continue
		}

		canonical := electCanonical(contacts, members)
		group := buildGroup(contacts, members, canonical, edges)
		result.Groups = append(result.Groups, group)

		for _, idx := range members {
			if idx != canonical {
				marked[idx] = contacts[canonical].ID
				result.TotalDuplicates++
			}
		}
	}

	for i := range contacts {
		if canonicalID, dup := marked[i]; dup {
			contacts[i].IsDuplicate = true
			contacts[i].DuplicateOf = canonicalID
			continue
		}
		result.Unique = append(result.Unique, contacts[i])
	}
	if n > 0 {
		result.DuplicateRate = float64(result.TotalDuplicates) / float64(n)
	}
	return result
}

// electCanonical picks the cluster representative: highest confidence score,
// ties broken by earliest creation time, then lowest ID.
func electCanonical(contacts []domain.Contact, members []int) int {
	best := members[0]
	for _, idx := range members[1:] {
		c, b := contacts[idx], contacts[best]
		switch {
		case c.ConfidenceScore > b.ConfidenceScore:
			best = idx
		case c.ConfidenceScore == b.ConfidenceScore && c.CreatedAt.Before(b.CreatedAt):
			best = idx
		case c.ConfidenceScore == b.ConfidenceScore && c.CreatedAt.Equal(b.CreatedAt) && c.ID < b.ID:
			best = idx
		}
	}
	return best
}

func buildGroup(contacts []domain.Contact, members []int, canonical int, edges map[edgeKey]pairMatch) domain.DuplicateGroup {
	ids := make([]string, 0, len(members))
	for _, idx := range members {
		ids = append(ids, contacts[idx].ID)
	}
	sort.Strings(ids)

	// Aggregate edge evidence within the cluster.
	var (
		maxScore float64
		reasons  []string
		types    = map[domain.DuplicateType]int{}
	)
	for key, m := range edges {
		if !contains(members, key.a) || !contains(members, key.b) {
			continue
		}
		if m.score > maxScore {
			maxScore = m.score
		}
		types[m.dtype]++
		reasons = append(reasons, m.reason)
	}
	sort.Strings(reasons)

	dtype := domain.DupMultiSignal
	if len(types) == 1 {
		for t := range types {
			dtype = t
		}
	}

	return domain.DuplicateGroup{
		ID:          uuid.NewString(),
		ContactIDs:  ids,
		Similarity:  maxScore,
		Type:        dtype,
		Confidence:  maxScore,
		CanonicalID: contacts[canonical].ID,
		Reasoning:   strings.Join(reasons, "; "),
	}
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// compare scores one contact pair across all signals and returns the
// strongest match at or above the threshold.
func compare(a, b domain.Contact) (pairMatch, bool) {
	var best pairMatch

	consider := func(m pairMatch) {
		if m.score > best.score {
			best = m
		}
	}

	if a.Email != "" && strings.EqualFold(a.Email, b.Email) {
		consider(pairMatch{
			score:  weightEmail,
			dtype:  domain.DupEmail,
			reason: fmt.Sprintf("identical email %s", strings.ToLower(a.Email)),
		})
	}

	nameSim := NameSimilarity(a.Name, b.Name)
	if nameSim >= 0.85 {
		if oa, ob := outletOf(a), outletOf(b); oa != "" && oa == ob {
			consider(pairMatch{
				score:  weightNameOutlet * nameSim,
				dtype:  domain.DupNameOutlet,
				reason: fmt.Sprintf("similar name (%.2f) at outlet %s", nameSim, oa),
			})
		}
		if a.Title != "" && strings.EqualFold(strings.TrimSpace(a.Title), strings.TrimSpace(b.Title)) {
			consider(pairMatch{
				score:  weightNameTitle * nameSim,
				dtype:  domain.DupNameTitle,
				reason: fmt.Sprintf("similar name (%.2f) with matching title %q", nameSim, a.Title),
			})
		}
	}

	if handle := sharedVerifiedHandle(a, b); handle != "" {
		consider(pairMatch{
			score:  weightSocial,
			dtype:  domain.DupSocial,
			reason: "shared verified social handle " + handle,
		})
	}

	return best, best.score >= matchThreshold
}

// outletOf derives an outlet identity from the email domain, falling back to
// the source host. Free-mail domains carry no outlet signal.
func outletOf(c domain.Contact) string {
	if at := strings.LastIndex(c.Email, "@"); at > 0 {
		host := strings.ToLower(c.Email[at+1:])
		switch host {
		case "gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "icloud.com", "aol.com":
		default:
			return host
		}
	}
	if u, err := url.Parse(c.SourceURL); err == nil && u.Host != "" {
		return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	}
	return ""
}

func sharedVerifiedHandle(a, b domain.Contact) string {
	for _, pa := range a.SocialProfiles {
		if !pa.Verified {
			continue
		}
		for _, pb := range b.SocialProfiles {
			if pb.Verified && pa.Key() == pb.Key() {
				return pa.Key()
			}
		}
	}
	return ""
}
