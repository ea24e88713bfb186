// Package model provides data models shared by the qabot service layers.
package model

import (
	"time"
)

// Source describes one knowledge-base row that grounded an answer.
type Source struct {
	RowNumber      int     `json:"row_number"`
	Question       string  `json:"question"`
	RelevanceScore float64 `json:"relevance_score"`
	Category       string  `json:"category,omitempty"`
	Link           string  `json:"link,omitempty"`
}

// QueryResult is the cacheable part of a chat response: everything that
// depends only on the query and the current index snapshot.
type QueryResult struct {
	Answer       string   `json:"answer"`
	Sources      []Source `json:"sources"`
	Confidence   float64  `json:"confidence"`
	MatchesFound int      `json:"matches_found"`
}

// ChatResponse is returned to the visitor for one chat query.
type ChatResponse struct {
	Answer         string    `json:"answer"`
	Sources        []Source  `json:"sources"`
	Confidence     float64   `json:"confidence"`
	SessionID      string    `json:"session_id"`
	Timestamp      time.Time `json:"timestamp"`
	LatencySeconds float64   `json:"latency_seconds"`
	MatchesFound   int       `json:"matches_found"`
}

// SyncStatus enumerates the outcome of a sync run.
type SyncStatus string

const (
	// SyncStatusSuccess means the diff was applied and the manifest persisted.
	SyncStatusSuccess SyncStatus = "success"
	// SyncStatusSkipped means nothing changed, or another sync was in flight.
	SyncStatusSkipped SyncStatus = "skipped"
)

// SyncReport summarizes one sync run.
type SyncReport struct {
	Status       SyncStatus `json:"status"`
	Added        []string   `json:"added"`
	Changed      []string   `json:"changed"`
	Removed      []string   `json:"removed"`
	Unchanged    int        `json:"unchanged"`
	ChunksUpsert int        `json:"chunks_upserted"`
	ChunksDelete int        `json:"chunks_deleted"`
	Errors       []string   `json:"errors,omitempty"`
	Forced       bool       `json:"forced,omitempty"`
	Duration     float64    `json:"duration_seconds"`
}
