package biz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"

	"github.com/kart-io/qabot/internal/model"
	"github.com/kart-io/qabot/internal/qabot/manifest"
	"github.com/kart-io/qabot/internal/qabot/sheets"
	"github.com/kart-io/qabot/internal/qabot/store"
	"github.com/kart-io/qabot/pkg/llm"
)

// IndexerConfig tunes the sync pipeline.
type IndexerConfig struct {
	// Chunker bounds chunk size and overlap.
	Chunker *ChunkerConfig
	// EmbeddingDim is the vector dimension of the embedding model.
	EmbeddingDim int
	// EmbedBatchSize is how many chunk texts go into one embedding call.
	EmbedBatchSize int
	// EmbedConcurrency is how many embedding batches run at once.
	EmbedConcurrency int
}

// DefaultIndexerConfig returns the default sync tuning.
func DefaultIndexerConfig() *IndexerConfig {
	return &IndexerConfig{
		Chunker:          DefaultChunkerConfig(),
		EmbeddingDim:     1536,
		EmbedBatchSize:   50,
		EmbedConcurrency: 4,
	}
}

// Indexer applies the spreadsheet diff to the vector store. It owns all
// writes: the retriever and everything else only read.
type Indexer struct {
	source    sheets.Source
	store     store.VectorStore
	embed     llm.EmbeddingProvider
	manifests manifest.Store
	config    *IndexerConfig

	// syncMu guards the whole normalize→diff→embed→upsert→persist sequence.
	// Webhook and ticker triggers both funnel through it; a contender gets
	// ErrSyncInProgress instead of queueing.
	syncMu sync.Mutex
}

// NewIndexer creates an indexer instance.
func NewIndexer(source sheets.Source, vs store.VectorStore, embed llm.EmbeddingProvider, manifests manifest.Store, config *IndexerConfig) *Indexer {
	if config == nil {
		config = DefaultIndexerConfig()
	}
	return &Indexer{
		source:    source,
		store:     vs,
		embed:     embed,
		manifests: manifests,
		config:    config,
	}
}

// Sync fetches the current sheet snapshot, diffs it against the manifest, and
// applies the diff to the vector store. The manifest is persisted only after
// every store write succeeded, so a failed sync leaves the previous manifest
// intact and the next run retries the same diff. force treats every document
// as changed (full reindex).
func (i *Indexer) Sync(ctx context.Context, force bool) (*model.SyncReport, error) {
	if !i.syncMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer i.syncMu.Unlock()

	start := time.Now()
	report := &model.SyncReport{
		Status:  model.SyncStatusSuccess,
		Added:   []string{},
		Changed: []string{},
		Removed: []string{},
		Forced:  force,
	}

	rows, err := i.source.FetchRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rows: %w", err)
	}

	var docs []*Document
	for _, row := range rows {
		doc, err := Normalize(row)
		if err != nil {
			logger.Warnw("skipping malformed row", "row", row.Number, "error", err.Error())
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		docs = append(docs, doc)
	}

	prev, err := i.manifests.Load()
	if err != nil {
		if !errors.Is(err, manifest.ErrCorrupt) {
			return nil, err
		}
		logger.Errorw("manifest unreadable, forcing full reindex", "error", err.Error())
		prev = manifest.Manifest{}
	}

	// A populated index plus an empty snapshot means a mis-published or
	// broken sheet far more often than a deliberate wipe. Refuse to erase
	// the knowledge base; a wipe is still reachable through force.
	if len(docs) == 0 && len(prev) > 0 && !force {
		report.Status = model.SyncStatusSkipped
		report.Duration = time.Since(start).Seconds()
		logger.Warnw("sheet returned no usable rows, refusing to clear populated index",
			"indexed_documents", len(prev),
			"row_errors", len(report.Errors),
		)
		return report, nil
	}

	changes := Diff(docs, prev, force)
	report.Added = changes.Added
	report.Changed = changes.Changed
	report.Removed = changes.Removed
	report.Unchanged = len(changes.Unchanged)

	if changes.Empty() {
		report.Status = model.SyncStatusSkipped
		report.Duration = time.Since(start).Seconds()
		logger.Infow("sync skipped, knowledge base unchanged",
			"documents", len(docs),
			"row_errors", len(report.Errors),
		)
		return report, nil
	}

	var chunks []*Chunk
	next := manifest.Manifest{}
	for _, id := range changes.Unchanged {
		next[id] = prev[id]
	}
	for _, id := range append(append([]string{}, changes.Added...), changes.Changed...) {
		docChunks := SplitDocument(changes.Docs[id], i.config.Chunker)
		chunks = append(chunks, docChunks...)
		next[id] = manifest.Entry{
			Hash:   changes.Docs[id].ContentHash,
			Chunks: len(docChunks),
		}
	}

	// Chunk ids to delete: every chunk of a removed document, plus the
	// surplus tail of a changed document that now produces fewer chunks.
	var deleteIDs []string
	for _, id := range changes.Removed {
		deleteIDs = append(deleteIDs, chunkIDs(id, 0, prev[id].Chunks)...)
	}
	for _, id := range changes.Changed {
		if old, ok := prev[id]; ok && old.Chunks > next[id].Chunks {
			deleteIDs = append(deleteIDs, chunkIDs(id, next[id].Chunks, old.Chunks)...)
		}
	}

	embeddings, err := i.embedChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingProvider, err)
	}

	if err := i.store.EnsureCollection(ctx, i.config.EmbeddingDim); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVectorStore, err)
	}

	if len(chunks) > 0 {
		records := make([]*store.Record, len(chunks))
		for idx, chunk := range chunks {
			records[idx] = &store.Record{
				ID:         chunk.ID,
				DocumentID: chunk.DocumentID,
				RowNumber:  int64(chunk.Metadata.RowNumber),
				Question:   chunk.Metadata.Question,
				Answer:     chunk.Metadata.Answer,
				Category:   chunk.Metadata.Category,
				Link:       chunk.Metadata.Link,
				Content:    chunk.Text,
				Embedding:  embeddings[idx],
			}
		}
		if err := i.store.Upsert(ctx, records); err != nil {
			return nil, fmt.Errorf("%w: upsert: %v", ErrVectorStore, err)
		}
		report.ChunksUpsert = len(records)
	}

	if len(deleteIDs) > 0 {
		if err := i.store.Delete(ctx, deleteIDs); err != nil {
			return nil, fmt.Errorf("%w: delete: %v", ErrVectorStore, err)
		}
		report.ChunksDelete = len(deleteIDs)
	}

	if err := i.manifests.Save(next); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start).Seconds()
	logger.Infow("sync completed",
		"added", len(report.Added),
		"changed", len(report.Changed),
		"removed", len(report.Removed),
		"unchanged", report.Unchanged,
		"chunks_upserted", report.ChunksUpsert,
		"chunks_deleted", report.ChunksDelete,
		"row_errors", len(report.Errors),
		"forced", force,
		"duration_seconds", report.Duration,
	)
	return report, nil
}

// embedChunks batches chunk texts and embeds the batches concurrently on an
// ants pool. All batches are awaited before returning; the first failure wins.
func (i *Indexer) embedChunks(ctx context.Context, chunks []*Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	batchSize := i.config.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	concurrency := i.config.EmbedConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	embeddings := make([][]float32, len(chunks))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for begin := 0; begin < len(chunks); begin += batchSize {
		end := begin + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		begin, end := begin, end

		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()

			texts := make([]string, end-begin)
			for idx := begin; idx < end; idx++ {
				texts[idx-begin] = chunks[idx].Text
			}

			vectors, err := i.embed.Embed(ctx, texts)
			if err == nil && len(vectors) != len(texts) {
				err = fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			for idx := begin; idx < end; idx++ {
				embeddings[idx] = vectors[idx-begin]
			}
		}); err != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return embeddings, nil
}

func chunkIDs(docID string, from, to int) []string {
	ids := make([]string, 0, to-from)
	for seq := from; seq < to; seq++ {
		ids = append(ids, fmt.Sprintf("%s#%d", docID, seq))
	}
	return ids
}
