package chat

import (
	"strings"

	"github.com/jdkato/prose/v2"
)

// ChunkMessage splits an answer into pieces no longer than limit bytes,
// breaking at sentence boundaries so no chunk ends mid-thought. The chat
// frontends this bot posts to cap message length, and a naive byte split
// reads badly. Falls back to a rune-boundary split when sentence detection
// fails or a single sentence exceeds the limit.
func ChunkMessage(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	doc, err := prose.NewDocument(text, prose.WithTagging(false), prose.WithExtraction(false))
	if err != nil {
		return splitRunes(text, limit)
	}
	sentences := doc.Sentences()
	if len(sentences) == 0 {
		return splitRunes(text, limit)
	}

	var chunks []string
	var current strings.Builder
	for _, sent := range sentences {
		piece := strings.TrimSpace(sent.Text)
		if piece == "" {
			continue
		}
		if len(piece) > limit {
			// A single run-on sentence longer than a whole message; split it
			// hard.
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, splitRunes(piece, limit)...)
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(piece) > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(piece)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitRunes splits text into limit-sized pieces without cutting a rune in
// half.
func splitRunes(text string, limit int) []string {
	var chunks []string
	var current strings.Builder
	for _, r := range text {
		if current.Len()+len(string(r)) > limit && current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
