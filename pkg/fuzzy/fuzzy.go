package fuzzy

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// LevenshteinDistance calculates the edit distance between two strings
// after normalization (case, whitespace and diacritics are ignored).
func LevenshteinDistance(s1, s2 string) int {
	r1 := []rune(Normalize(s1))
	r2 := []rune(Normalize(s2))

	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(r2)]
}

// FuzzyMatch checks if query fuzzy-matches text within a given threshold
// threshold is the maximum allowed edit distance
func FuzzyMatch(query, text string, threshold int) bool {
	query = Normalize(query)
	text = Normalize(text)

	if query == "" {
		return false
	}
	if strings.Contains(text, query) {
		return true
	}

	for _, word := range splitWords(text) {
		if strings.HasPrefix(word, query) || LevenshteinDistance(query, word) <= threshold {
			return true
		}
	}
	return false
}

// Threshold returns the typo tolerance for a query of the given length.
func Threshold(query string) int {
	n := len([]rune(query))
	switch {
	case n <= 3:
		return 0
	case n <= 5:
		return 1
	case n >= 10:
		return 3
	default:
		return 2
	}
}

// ClosestMatch returns the candidate nearest to name when it is within the
// typo threshold for name. Exact (normalized) matches always win.
func ClosestMatch(name string, candidates []string) (string, bool) {
	target := Normalize(name)
	best, bestDist := "", -1
	for _, c := range candidates {
		if Normalize(c) == target {
			return c, true
		}
		d := LevenshteinDistance(target, Normalize(c))
		if bestDist == -1 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist >= 0 && bestDist <= Threshold(target) {
		return best, true
	}
	return "", false
}

// Suggest ranks candidates matching query: prefix matches first, then words
// containing the query, then typo matches; ties sort alphabetically.
func Suggest(query string, candidates []string, limit int) []string {
	q := Normalize(query)
	if q == "" {
		return nil
	}

	type scored struct {
		value string
		score int
	}
	var hits []scored
	for _, c := range candidates {
		n := Normalize(c)
		switch {
		case strings.HasPrefix(n, q):
			hits = append(hits, scored{c, 0})
		case strings.Contains(n, q):
			hits = append(hits, scored{c, 1})
		case FuzzyMatch(q, n, Threshold(q)):
			hits = append(hits, scored{c, 2})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score < hits[j].score
		}
		return hits[i].value < hits[j].value
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.value
	}
	return out
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lower-cases, strips diacritics and collapses whitespace.
func Normalize(s string) string {
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_' || r == '/'
	})
}
