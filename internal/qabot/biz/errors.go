package biz

import "errors"

var (
	// ErrMalformedRow reports a knowledge-base row missing a required field.
	// The row is skipped and reported; the rest of the sync proceeds.
	ErrMalformedRow = errors.New("malformed knowledge-base row")

	// ErrSyncInProgress is returned when a sync request arrives while another
	// sync holds the critical section. The caller drops the request; the
	// periodic fallback sync catches up.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrEmbeddingProvider wraps transient embedding failures. A sync hitting
	// this aborts before the manifest write, so a retry replays the same diff.
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrVectorStore wraps transient vector-store failures, with the same
	// abort-before-manifest semantics as ErrEmbeddingProvider.
	ErrVectorStore = errors.New("vector store error")
)
