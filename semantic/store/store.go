// Package store defines the retrieval storage contract shared by the
// semantic memory layer and its store implementations.
package store

import "context"

// Document is one retrieval unit: text content plus string metadata
// (identity, role, event UID, calendar-bucketed timestamp fields).
type Document struct {
	Content  string
	Metadata map[string]string
}

// VectorStore is the minimal retrieval capability the memory layer
// depends on. Implementations are selected once at construction by the
// embedding availability probe — an embedding-backed persistent store
// when a backend exists, the in-memory substring fallback otherwise —
// and callers never branch on which one they got.
type VectorStore interface {
	// AddTexts indexes texts with their parallel metadata records.
	AddTexts(ctx context.Context, texts []string, metadatas []map[string]string) error

	// SimilaritySearch returns up to k documents relevant to query,
	// most relevant first.
	SimilaritySearch(ctx context.Context, query string, k int) ([]Document, error)
}
