package cache

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "lowercases", input: "What Is Rust", want: "what is rust"},
		{name: "trims_outer_whitespace", input: "  hello world  ", want: "hello world"},
		{name: "collapses_inner_whitespace", input: "hello    world", want: "hello world"},
		{name: "strips_sentence_punctuation", input: "What is Rust?!", want: "what is rust"},
		{name: "strips_quotes", input: `"hello" 'world'`, want: "hello world"},
		{name: "keeps_hyphens", input: "type-safe code", want: "type-safe code"},
		{name: "numeric_gets_prefix", input: "42", want: "num_42"},
		{name: "numeric_with_whitespace", input: " 42  ", want: "num_42"},
		{name: "mixed_not_prefixed", input: "42 apples", want: "42 apples"},
		{name: "punctuation_only_reduces_to_empty", input: "?!?!", want: ""},
		{name: "whitespace_only_reduces_to_empty", input: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFingerprintDeterminism(t *testing.T) {
	inputs := []string{"What is Rust?", "how do I bake bread", "42", "?!?!", "héllo wörld"}
	for _, input := range inputs {
		first := Fingerprint(input)
		second := Fingerprint(input)
		if first != second {
			t.Errorf("Fingerprint(%q) not deterministic: %s vs %s", input, first, second)
		}
		if len(first) != 64 {
			t.Errorf("Fingerprint(%q) length = %d, want 64 hex chars", input, len(first))
		}
	}
}

func TestFingerprintInvariance(t *testing.T) {
	base := Fingerprint("What is Rust?")
	variants := []string{
		"what is rust",
		"  What is Rust?  ",
		"WHAT IS RUST",
		"What is Rust!",
		"What  is   Rust?",
	}
	for _, v := range variants {
		if got := Fingerprint(v); got != base {
			t.Errorf("Fingerprint(%q) = %s, want same as base %s", v, got, base)
		}
	}

	if Fingerprint("What is Go?") == base {
		t.Error("distinct questions should not share a fingerprint")
	}
}

func TestFingerprintEmptyAfterNormalization(t *testing.T) {
	// Symbol-only inputs still get a stable key, distinguished by length.
	a := Fingerprint("!!!")
	b := Fingerprint("????")
	if a == b {
		t.Error("symbol inputs of different lengths should not collide")
	}
	if a != Fingerprint("!!!") {
		t.Error("symbol input fingerprint should be stable")
	}
}

func TestNormalizeLongInput(t *testing.T) {
	long := strings.Repeat("word ", 500)
	got := Normalize(long)
	if strings.Contains(got, "  ") {
		t.Error("normalized text should not contain whitespace runs")
	}
	if got != strings.TrimSpace(got) {
		t.Error("normalized text should be trimmed")
	}
}
