package dedup

import "strings"

// NameSimilarity returns a [0,1] similarity between two person names.
// Names are normalized to lowercased tokens; exact token-set equality is
// 1.0, otherwise the score blends token overlap with per-token edit
// similarity so "Jane Doe" / "jane m. doe" and minor typos still match.
func NameSimilarity(a, b string) float64 {
	ta, tb := nameTokens(a), nameTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	if strings.Join(ta, " ") == strings.Join(tb, " ") {
		return 1
	}

	// Token overlap, counting close-edit tokens as matches.
	matched := 0
	used := make([]bool, len(tb))
	for _, x := range ta {
		for j, y := range tb {
			if used[j] {
				continue
			}
			if x == y || tokenSimilarity(x, y) >= 0.85 {
				matched++
				used[j] = true
				break
			}
		}
	}

	denom := len(ta)
	if len(tb) > denom {
		denom = len(tb)
	}
	return float64(matched) / float64(denom)
}

// nameTokens lowercases, strips punctuation, and drops single-letter
// initials (they match everything and nothing).
func nameTokens(name string) []string {
	fields := strings.Fields(strings.ToLower(name))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,'\"-")
		if len(f) <= 1 {
			continue
		}
		out = append(out, f)
	}
	return out
}

// tokenSimilarity is a normalized Levenshtein similarity between two tokens.
func tokenSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	return 1 - float64(prev[lb])/float64(maxLen)
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
