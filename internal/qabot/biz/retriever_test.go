package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/qabot/internal/qabot/store"
)

func TestRankMatches_OrderAndTieBreak(t *testing.T) {
	// Native cosine scores; 0.6 and 0.6 tie, broken by ascending chunk id.
	raw := []*store.Match{
		{ID: "row-4#0", Score: 0.2},
		{ID: "row-3#0", Score: 0.6},
		{ID: "row-2#0", Score: 0.6},
		{ID: "row-5#0", Score: 0.9},
	}

	matches := RankMatches(raw, 0)

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ChunkID
	}
	assert.Equal(t, []string{"row-5#0", "row-2#0", "row-3#0", "row-4#0"}, ids)
}

func TestRankMatches_NormalizesAndFilters(t *testing.T) {
	raw := []*store.Match{
		{ID: "a#0", Score: 0.8},  // normalized 0.9
		{ID: "b#0", Score: -0.6}, // normalized 0.2, below floor
	}

	matches := RankMatches(raw, 0.3)

	require.Len(t, matches, 1)
	assert.Equal(t, "a#0", matches[0].ChunkID)
	assert.InDelta(t, 0.9, matches[0].Score, 1e-6)
}

func TestRankMatches_Empty(t *testing.T) {
	assert.Empty(t, RankMatches(nil, 0.3))
}

// An indexed row mentioning the query phrase must come back as the top match
// above the score floor.
func TestRetrieve_CJKQueryFindsRow(t *testing.T) {
	vs := newFakeVectorStore()
	embedder := &fakeEmbedder{
		vectors: map[string][]float32{
			"Python 課程":  {1, 0.2, 0, 0},
			"什麼時候開放報名？": {0, 0, 1, 0.3},
		},
	}

	require.NoError(t, vs.Upsert(context.Background(), []*store.Record{
		{ID: "row-2#0", DocumentID: "row-2", RowNumber: 2, Question: "有 Python 課程嗎？",
			Content: "Question: 有 Python 課程嗎？ Answer: 有的，每季開班。", Embedding: []float32{1, 0.1, 0, 0}},
		{ID: "row-3#0", DocumentID: "row-3", RowNumber: 3, Question: "報名時間？",
			Content: "Question: 報名時間？ Answer: 每月一號開放。", Embedding: []float32{0, 0.1, 1, 0.2}},
	}))

	retriever := NewRetriever(vs, embedder, DefaultRetrieverConfig())

	matches, err := retriever.Retrieve(context.Background(), "Python 課程")
	require.NoError(t, err)

	require.NotEmpty(t, matches)
	assert.Equal(t, "row-2#0", matches[0].ChunkID)
	assert.Greater(t, matches[0].Score, 0.3)
	assert.Equal(t, 2, matches[0].RowNumber)
}

// A query unrelated to anything indexed yields an empty match set, not an
// error.
func TestRetrieve_UnrelatedQueryReturnsEmpty(t *testing.T) {
	vs := newFakeVectorStore()
	embedder := &fakeEmbedder{
		vectors: map[string][]float32{
			"今天天氣如何？": {-1, 0, 0, 0},
		},
	}

	require.NoError(t, vs.Upsert(context.Background(), []*store.Record{
		{ID: "row-2#0", Content: "Question: 有 Python 課程嗎？ Answer: 有的。", Embedding: []float32{1, 0, 0, 0}},
	}))

	retriever := NewRetriever(vs, embedder, DefaultRetrieverConfig())

	matches, err := retriever.Retrieve(context.Background(), "今天天氣如何？")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRetrieve_EmbedFailure(t *testing.T) {
	vs := newFakeVectorStore()
	embedder := &fakeEmbedder{}
	embedder.setFail(true)

	retriever := NewRetriever(vs, embedder, nil)

	_, err := retriever.Retrieve(context.Background(), "任何問題")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingProvider)
}
