package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"
	"github.com/oklog/ulid/v2"

	"github.com/kart-io/qabot/internal/model"
	"github.com/kart-io/qabot/internal/qabot/metrics"
	"github.com/kart-io/qabot/internal/qabot/store"
	"github.com/kart-io/qabot/pkg/llm"
)

// Service is the surface the transport layer talks to.
type Service interface {
	// Sync reconciles the vector index with the current sheet snapshot.
	Sync(ctx context.Context, force bool) (*model.SyncReport, error)

	// Chat answers one visitor question grounded in the knowledge base.
	// history carries the prior turns of the conversation, oldest first.
	Chat(ctx context.Context, query, sessionID string, history []llm.Message) (*model.ChatResponse, error)

	// Stats reports index size, cache and runtime counters.
	Stats(ctx context.Context) (map[string]interface{}, error)
}

// QueryCacher is the query-result cache surface the service consumes.
type QueryCacher interface {
	Get(ctx context.Context, query string) (*model.QueryResult, error)
	Set(ctx context.Context, query string, result *model.QueryResult) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (map[string]interface{}, error)
}

type service struct {
	indexer   *Indexer
	retriever *Retriever
	composer  *Composer
	cache     QueryCacher
	store     store.VectorStore
	metrics   *metrics.Metrics
}

// NewService wires the pipeline components into the service surface.
func NewService(indexer *Indexer, retriever *Retriever, composer *Composer, cache QueryCacher, vs store.VectorStore) Service {
	return &service{
		indexer:   indexer,
		retriever: retriever,
		composer:  composer,
		cache:     cache,
		store:     vs,
		metrics:   metrics.Get(),
	}
}

// Sync runs one sync cycle. A sync already in flight surfaces as
// ErrSyncInProgress; the caller decides whether that is an error (admin
// reindex) or business as usual (webhook burst).
func (s *service) Sync(ctx context.Context, force bool) (*model.SyncReport, error) {
	report, err := s.indexer.Sync(ctx, force)
	if err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			s.metrics.RecordSyncSkipped()
		} else {
			s.metrics.RecordSyncError()
		}
		return nil, err
	}

	if report.Status == model.SyncStatusSkipped {
		s.metrics.RecordSyncSkipped()
		return report, nil
	}

	s.metrics.RecordSync(len(report.Added)+len(report.Changed), report.ChunksUpsert, report.ChunksDelete)

	// Index content changed: cached answers may now be stale.
	if s.cache != nil {
		if err := s.cache.Clear(ctx); err != nil {
			logger.Warnw("failed to clear query cache after sync", "error", err.Error())
		}
	}
	return report, nil
}

// Chat answers a query. The retrieval-and-compose result is cached by query
// text; session id, timestamp and latency are always fresh per request.
// History-bearing requests bypass the cache both ways, since their answers
// depend on the conversation, not just the query.
func (s *service) Chat(ctx context.Context, query, sessionID string, history []llm.Message) (*model.ChatResponse, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		err := fmt.Errorf("query is required")
		s.metrics.RecordChat(time.Since(start), false, false, err)
		return nil, err
	}
	if sessionID == "" {
		sessionID = ulid.Make().String()
	}

	cacheable := s.cache != nil && len(history) == 0
	cacheHit := false
	var backendErr error
	var result *model.QueryResult
	if cacheable {
		if cached, err := s.cache.Get(ctx, query); err == nil && cached != nil {
			result = cached
			cacheHit = true
		}
	}

	if result == nil {
		matches, err := s.retriever.Retrieve(ctx, query)
		if err != nil {
			// Degrade instead of failing: the visitor always gets an answer.
			logger.Errorw("retrieval failed, degrading to fallback answer",
				"error", err.Error(),
				"session_id", sessionID,
			)
			backendErr = err
			matches = nil
		}

		var degraded bool
		result, degraded = s.composer.Compose(ctx, query, history, matches)

		// Only answers that reflect the knowledge base are cached: a degraded
		// result came from a transient backend fault and would poison the
		// query for the full TTL. The deterministic no-knowledge fallback
		// (zero matches on a healthy pipeline) stays cacheable.
		if cacheable && backendErr == nil && !degraded {
			if err := s.cache.Set(ctx, query, result); err != nil {
				logger.Warnw("failed to cache query result", "error", err.Error())
			}
		}
	}

	latency := time.Since(start)
	s.metrics.RecordChat(latency, cacheHit, result.Confidence == 0, backendErr)

	logger.Infow("chat response generated",
		"session_id", sessionID,
		"confidence", result.Confidence,
		"matches_found", result.MatchesFound,
		"cache_hit", cacheHit,
		"latency_seconds", latency.Seconds(),
	)

	return &model.ChatResponse{
		Answer:         result.Answer,
		Sources:        result.Sources,
		Confidence:     result.Confidence,
		SessionID:      sessionID,
		Timestamp:      time.Now().UTC(),
		LatencySeconds: latency.Seconds(),
		MatchesFound:   result.MatchesFound,
	}, nil
}

// Stats merges vector-store, cache and runtime counters.
func (s *service) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := s.metrics.Stats()

	if count, err := s.store.Stats(ctx); err != nil {
		logger.Warnw("failed to read vector store stats", "error", err.Error())
	} else {
		stats["indexed_chunks"] = count
	}

	if s.cache != nil {
		if cacheStats, err := s.cache.Stats(ctx); err == nil {
			stats["query_cache"] = cacheStats
		}
	}
	return stats, nil
}
