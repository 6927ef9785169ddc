// Package fallback provides the zero-dependency VectorStore used when
// no embedding backend is available. Recall quality is crude — a
// case-insensitive substring match — but the retrieval path never
// hard-fails, which is the point.
package fallback

import (
	"context"
	"strings"
	"sync"

	"github.com/mnemoria-ai/mnemoria-go/semantic/store"
)

// Store keeps documents in an in-process list, most recent last.
type Store struct {
	mu   sync.RWMutex
	docs []store.Document
}

// New creates an empty fallback store.
func New() *Store {
	return &Store{}
}

// AddTexts appends the documents in order.
func (s *Store) AddTexts(ctx context.Context, texts []string, metadatas []map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, text := range texts {
		var meta map[string]string
		if i < len(metadatas) {
			meta = metadatas[i]
		}
		s.docs = append(s.docs, store.Document{Content: text, Metadata: meta})
	}
	return nil
}

// SimilaritySearch filters by case-insensitive substring match against
// the query. When nothing matches (or the query is empty) it returns
// the k most-recently-added documents instead of an empty result, so a
// caller always gets some recall context. Non-positive k yields an
// empty result.
func (s *Store) SimilaritySearch(ctx context.Context, query string, k int) ([]store.Document, error) {
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var matched []store.Document
	if q != "" {
		for _, doc := range s.docs {
			if strings.Contains(strings.ToLower(doc.Content), q) {
				matched = append(matched, doc)
			}
		}
	}
	if len(matched) == 0 {
		matched = s.docs
	}

	if k < len(matched) {
		matched = matched[len(matched)-k:]
	}
	out := make([]store.Document, len(matched))
	copy(out, matched)
	return out, nil
}
