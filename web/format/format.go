package format

import (
	"strings"

	"github.com/gomarkdown/markdown"
)

// RenderAnswerHTML converts a cached answer's markdown to HTML for the
// admin dashboard. Answers come back from the backend as markdown; the
// dashboard shows them rendered.
func RenderAnswerHTML(answer string) string {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return ""
	}
	return string(markdown.ToHTML([]byte(answer), nil, nil))
}

// TruncateForListing shortens a question for list views, cutting at a rune
// boundary.
func TruncateForListing(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
