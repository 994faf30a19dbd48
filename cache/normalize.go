package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// Sentence punctuation and quotes stripped during normalization. Anything
// not listed here (hyphens, slashes, currency signs) is kept, since it can
// carry meaning inside a question.
const strippedPunctuation = ".,!?;:\"'`()[]{}“”‘’"

// Normalize canonicalizes question text so trivially different phrasings
// fingerprint identically: lower-case, trim, collapse whitespace runs, and
// strip sentence punctuation. A purely numeric result is prefixed with
// "num_" to keep bare numbers in their own fingerprint space.
//
// Returns "" when the input reduces to nothing (whitespace or punctuation
// only); Fingerprint handles that case with a stable placeholder key.
func Normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(strippedPunctuation, r) {
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")

	if s != "" && isNumeric(s) {
		return "num_" + s
	}
	return s
}

// isNumeric reports whether s consists solely of decimal digits.
func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Fingerprint derives the deterministic cache key for a question: sha256
// over the normalized UTF-8 bytes, rendered as 64 hex characters. No
// per-process salt, so the same question maps to the same key across
// restarts and hosts.
//
// When normalization yields an empty string (all-symbol input), the key is
// derived from a fixed marker plus the original trimmed length, so distinct
// symbol runs of different lengths stay apart while identical inputs
// converge.
func Fingerprint(text string) string {
	normalized := Normalize(text)
	if normalized == "" {
		normalized = fmt.Sprintf("empty_q_%d", len(strings.TrimSpace(text)))
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
