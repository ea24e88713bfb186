package biz

import (
	"context"
	"fmt"
	"sort"

	"github.com/kart-io/qabot/internal/pkg/textutil"
	"github.com/kart-io/qabot/internal/qabot/store"
	"github.com/kart-io/qabot/pkg/llm"
)

// RetrieverConfig tunes similarity search.
type RetrieverConfig struct {
	// TopK is how many nearest chunks to request from the store.
	TopK int
	// MinScore is the normalized-score floor; matches under it are dropped.
	MinScore float64
}

// DefaultRetrieverConfig returns the default retrieval tuning.
func DefaultRetrieverConfig() *RetrieverConfig {
	return &RetrieverConfig{
		TopK:     5,
		MinScore: 0.3,
	}
}

// RetrievalMatch is one retrieved chunk with its normalized score in [0,1].
type RetrievalMatch struct {
	ChunkID    string
	DocumentID string
	RowNumber  int
	Question   string
	Answer     string
	Category   string
	Link       string
	Content    string
	Score      float64
}

// Retriever turns a free-text query into a ranked set of knowledge-base
// matches. Read-only against the vector store.
type Retriever struct {
	store  store.VectorStore
	embed  llm.EmbeddingProvider
	config *RetrieverConfig
}

// NewRetriever creates a retriever instance.
func NewRetriever(vs store.VectorStore, embed llm.EmbeddingProvider, config *RetrieverConfig) *Retriever {
	if config == nil {
		config = DefaultRetrieverConfig()
	}
	return &Retriever{
		store:  vs,
		embed:  embed,
		config: config,
	}
}

// Retrieve embeds the query, searches the vector store, and returns matches
// at or above MinScore sorted by descending score, ties broken by ascending
// chunk id. An empty result means no relevant knowledge, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]*RetrievalMatch, error) {
	vector, err := r.embed.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingProvider, err)
	}

	raw, err := r.store.Search(ctx, vector, r.config.TopK)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrVectorStore, err)
	}

	matches := RankMatches(raw, r.config.MinScore)
	return matches, nil
}

// RankMatches normalizes store-native cosine scores to [0,1], applies the
// score floor, and orders the survivors deterministically.
func RankMatches(raw []*store.Match, minScore float64) []*RetrievalMatch {
	matches := make([]*RetrievalMatch, 0, len(raw))
	for _, m := range raw {
		score := textutil.NormalizeCosineScore(float64(m.Score))
		if score < minScore {
			continue
		}
		matches = append(matches, &RetrievalMatch{
			ChunkID:    m.ID,
			DocumentID: m.DocumentID,
			RowNumber:  int(m.RowNumber),
			Question:   m.Question,
			Answer:     m.Answer,
			Category:   m.Category,
			Link:       m.Link,
			Content:    m.Content,
			Score:      score,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})
	return matches
}
