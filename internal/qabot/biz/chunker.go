package biz

import (
	"fmt"
	"strings"
)

// Chunk is one retrieval unit cut from a document.
type Chunk struct {
	// ID is "<document id>#<sequence>"; sequence starts at 0.
	ID         string
	DocumentID string
	Seq        int
	Text       string
	Metadata   Metadata
}

// ChunkerConfig bounds chunk size in runes and sets the overlap carried
// across adjacent chunks.
type ChunkerConfig struct {
	// MaxRunes is the chunk size budget. Content at or under the budget
	// yields exactly one chunk.
	MaxRunes int
	// OverlapRunes is how many trailing runes of a chunk are repeated at the
	// start of the next one. Must be smaller than MaxRunes.
	OverlapRunes int
}

// DefaultChunkerConfig matches typical Q&A row sizes: most rows fit in one
// chunk, long answers split at word boundaries.
func DefaultChunkerConfig() *ChunkerConfig {
	return &ChunkerConfig{
		MaxRunes:     800,
		OverlapRunes: 100,
	}
}

// SplitDocument cuts a document's content into chunks. Deterministic: the
// same content and config always produce identical boundaries, so chunk ids
// stay stable across syncs. Non-empty content yields at least one chunk.
func SplitDocument(doc *Document, cfg *ChunkerConfig) []*Chunk {
	texts := splitText(doc.Content, cfg.MaxRunes, cfg.OverlapRunes)

	chunks := make([]*Chunk, 0, len(texts))
	for seq, text := range texts {
		chunks = append(chunks, &Chunk{
			ID:         fmt.Sprintf("%s#%d", doc.ID, seq),
			DocumentID: doc.ID,
			Seq:        seq,
			Text:       text,
			Metadata:   doc.Metadata,
		})
	}
	return chunks
}

// splitText windows runes with overlap. A window prefers to end at the last
// space falling in its final fifth, so words survive the cut; CJK text without
// spaces splits exactly at the budget.
func splitText(content string, maxRunes, overlap int) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if maxRunes <= 0 {
		return []string{content}
	}
	if overlap >= maxRunes {
		overlap = maxRunes / 2
	}

	runes := []rune(content)
	if len(runes) <= maxRunes {
		return []string{content}
	}

	var parts []string
	start := 0
	for start < len(runes) {
		end := start + maxRunes
		if end >= len(runes) {
			parts = append(parts, strings.TrimSpace(string(runes[start:])))
			break
		}

		cut := end
		for i := end - 1; i > end-maxRunes/5; i-- {
			if runes[i] == ' ' {
				cut = i
				break
			}
		}

		part := strings.TrimSpace(string(runes[start:cut]))
		if part != "" {
			parts = append(parts, part)
		}

		next := cut - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return parts
}
