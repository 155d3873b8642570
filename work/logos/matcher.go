// Package logos maintains the persisted channel-name → logo-URL table and the
// fuzzy matching used to pick artwork for catalog entries. Keys are
// "{countryID}:{normalizedName}"; the table only ever grows.
package logos

import (
	"strconv"
	"strings"

	"github.com/grafana/regexp"
)

// DefaultSimilarityThreshold is the minimum Dice similarity for a fuzzy logo
// match to be accepted. Empirically chosen; override per Store when tuning.
const DefaultSimilarityThreshold = 0.85

// TrailingCodePattern matches the short dot-suffixes the backend sometimes
// appends to raw channel names ("Channel .c", "Channel.s .b"), possibly
// stacked. Empirically chosen to 1-3 alphanumeric characters per code.
var TrailingCodePattern = regexp.MustCompile(`(?i)\s*(\.[a-z0-9]{1,3})+$`)

var (
	qualifierWords = regexp.MustCompile(`\b(?:hd|uhd|4k|tv|channel|plus)\b`)
	sportsWord     = regexp.MustCompile(`\bsports\b`)
	nonAlnumRuns   = regexp.MustCompile(`[^a-z0-9]+`)
	spaceRuns      = regexp.MustCompile(`\s+`)
)

// Normalize canonicalizes a channel name for matching: lowercase, whole-word
// qualifier tokens (hd, uhd, 4k, tv, channel, plus) removed, "sports"
// canonicalized to "sport", every run of non-alphanumeric characters
// collapsed to a single space, trimmed. Idempotent.
func Normalize(name string) string {
	s := strings.ToLower(name)
	s = qualifierWords.ReplaceAllString(s, " ")
	s = sportsWord.ReplaceAllString(s, "sport")
	s = nonAlnumRuns.ReplaceAllString(s, " ")
	s = spaceRuns.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CleanupDisplayName strips one or more stacked trailing dot-codes from a raw
// backend name and trims the result ("Rai Uno .c .s" -> "Rai Uno").
func CleanupDisplayName(name string) string {
	return strings.TrimSpace(TrailingCodePattern.ReplaceAllString(name, ""))
}

// bigrams returns the character bigrams of the normalized input. Inputs
// shorter than two characters yield a single-element shingle so that
// identical short names still compare equal.
func bigrams(s string) []string {
	t := Normalize(s)
	if len(t) < 2 {
		return []string{t}
	}
	grams := make([]string, 0, len(t)-1)
	for i := 0; i < len(t)-1; i++ {
		grams = append(grams, t[i:i+2])
	}
	return grams
}

// BigramSimilarity computes the Dice coefficient over character bigrams of
// the normalized inputs: 2 x |multiset intersection| / (|A| + |B|). Two empty
// names score 1.0, exactly one empty name scores 0.0.
func BigramSimilarity(a, b string) float64 {
	ga, gb := bigrams(a), bigrams(b)

	counts := make(map[string]int, len(gb))
	for _, g := range gb {
		counts[g]++
	}

	inter := 0
	for _, g := range ga {
		if counts[g] > 0 {
			inter++
			counts[g]--
		}
	}

	return 2 * float64(inter) / float64(len(ga)+len(gb))
}

// NumberDuplicates suffixes every cleaned name that occurs more than once
// with a 1-based, first-seen-order index ("X" -> "X 1", "X 2", ...). Names
// occurring exactly once are returned untouched.
func NumberDuplicates(names []string) []string {
	totals := make(map[string]int, len(names))
	for _, n := range names {
		totals[n]++
	}

	used := make(map[string]int, len(names))
	out := make([]string, len(names))
	for i, n := range names {
		if totals[n] > 1 {
			used[n]++
			out[i] = n + " " + strconv.Itoa(used[n])
		} else {
			out[i] = n
		}
	}
	return out
}
