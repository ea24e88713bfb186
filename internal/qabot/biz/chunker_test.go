package biz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitDocument_ShortContentSingleChunk(t *testing.T) {
	d := &Document{ID: "row-2", Content: "Question: q Answer: a", Metadata: Metadata{RowNumber: 2}}

	chunks := SplitDocument(d, DefaultChunkerConfig())

	require.Len(t, chunks, 1)
	assert.Equal(t, "row-2#0", chunks[0].ID)
	assert.Equal(t, d.Content, chunks[0].Text)
	assert.Equal(t, 2, chunks[0].Metadata.RowNumber)
}

func TestSplitDocument_Deterministic(t *testing.T) {
	d := &Document{ID: "row-2", Content: strings.Repeat("the quick brown fox jumps over the lazy dog ", 40)}
	cfg := &ChunkerConfig{MaxRunes: 120, OverlapRunes: 20}

	first := SplitDocument(d, cfg)
	second := SplitDocument(d, cfg)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
	assert.Greater(t, len(first), 1)
}

func TestSplitText_WordBoundary(t *testing.T) {
	content := strings.Repeat("alpha bravo charlie delta ", 20)
	parts := splitText(content, 100, 10)

	require.Greater(t, len(parts), 1)
	for _, p := range parts[:len(parts)-1] {
		// Every cut backs off to a space, so no part ends mid-word.
		last := p[strings.LastIndex(p, " ")+1:]
		assert.Contains(t, []string{"alpha", "bravo", "charlie", "delta"}, last)
	}
}

func TestSplitText_CJKWithoutSpaces(t *testing.T) {
	content := strings.Repeat("課程介紹與報名方式說明", 30)
	parts := splitText(content, 50, 10)

	require.Greater(t, len(parts), 1)
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), 50)
		assert.NotEmpty(t, p)
	}
}

func TestSplitText_Empty(t *testing.T) {
	assert.Nil(t, splitText("", 100, 10))
	assert.Nil(t, splitText("   \n\t ", 100, 10))
}

func TestSplitText_OverlapCarriesContext(t *testing.T) {
	content := strings.Repeat("0123456789", 30)
	parts := splitText(content, 100, 20)

	require.Greater(t, len(parts), 1)
	// The tail of one chunk reappears at the head of the next.
	tail := parts[0][len(parts[0])-20:]
	assert.True(t, strings.HasPrefix(parts[1], tail))
}

func TestSplitDocument_SequentialIDs(t *testing.T) {
	d := &Document{ID: "faq-1", Content: strings.Repeat("word ", 100)}
	chunks := SplitDocument(d, &ChunkerConfig{MaxRunes: 80, OverlapRunes: 10})

	for i, c := range chunks {
		assert.Equal(t, i, c.Seq)
		assert.Equal(t, "faq-1", c.DocumentID)
	}
	assert.Equal(t, "faq-1#0", chunks[0].ID)
}
