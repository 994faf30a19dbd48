package cache

import (
	"sort"
	"strings"
)

const (
	// minTokenLength drops short glue tokens ("is", "a", "to") that inflate
	// overlap between unrelated questions.
	minTokenLength = 3

	// lengthRatioGuard short-circuits scoring when one string is this many
	// times longer than the other. Such pairs are almost never meaningfully
	// similar and skipping them avoids tokenizing large texts.
	lengthRatioGuard = 3

	// maxTokensPerSet caps the token-set size before intersecting. Very
	// large inputs are down-sampled with an even stride, trading a small
	// accuracy loss for bounded worst-case cost.
	maxTokensPerSet = 192
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "your": {}, "all": {}, "any": {}, "can": {}, "had": {},
	"has": {}, "have": {}, "was": {}, "were": {}, "will": {}, "with": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "why": {},
	"how": {}, "does": {}, "did": {}, "this": {}, "that": {}, "these": {},
	"those": {}, "there": {}, "their": {}, "them": {}, "then": {},
	"from": {}, "into": {}, "about": {}, "would": {}, "could": {},
	"should": {}, "please": {}, "some": {}, "just": {}, "very": {},
}

// Similarity computes the Jaccard similarity of the token sets of a and b,
// in [0, 1]. Symmetric, and 1 for any non-empty string compared with
// itself. Empty or whitespace-only input on either side scores 0.
func Similarity(a, b string) float64 {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0
	}
	if len(a) > lengthRatioGuard*len(b) || len(b) > lengthRatioGuard*len(a) {
		return 0
	}

	ta := tokenize(a)
	tb := tokenize(b)
	// Both reduced to nothing (stop words and short tokens only): treat as
	// identical rather than undefined.
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	ta = sampleTokens(ta, maxTokensPerSet)
	tb = sampleTokens(tb, maxTokensPerSet)

	// Both slices are sorted and deduplicated; intersect with a merge walk.
	i, j, intersection := 0, 0, 0
	for i < len(ta) && j < len(tb) {
		switch {
		case ta[i] == tb[j]:
			intersection++
			i++
			j++
		case ta[i] < tb[j]:
			i++
		default:
			j++
		}
	}

	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

// tokenize splits on whitespace after lower-casing, drops short tokens and
// stop words, and returns a sorted, deduplicated slice.
func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < minTokenLength {
			continue
		}
		if _, skip := stopWords[f]; skip {
			continue
		}
		tokens = append(tokens, f)
	}
	if len(tokens) == 0 {
		return tokens
	}

	sort.Strings(tokens)
	n := 1
	for i := 1; i < len(tokens); i++ {
		if tokens[i] != tokens[i-1] {
			tokens[n] = tokens[i]
			n++
		}
	}
	return tokens[:n]
}

// sampleTokens deterministically down-samples a sorted token slice to at
// most max entries using an even stride. Identical inputs produce identical
// samples, preserving reflexivity of the score.
func sampleTokens(tokens []string, max int) []string {
	if len(tokens) <= max {
		return tokens
	}
	stride := float64(len(tokens)) / float64(max)
	sampled := make([]string, 0, max)
	for i := 0; i < max; i++ {
		sampled = append(sampled, tokens[int(float64(i)*stride)])
	}
	return sampled
}
