// Package chromem backs the VectorStore interface with chromem-go, a
// pure Go embedded vector database with on-disk persistence.
package chromem

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"github.com/mnemoria-ai/mnemoria-go/semantic/store"
)

// DB is one identity's persistent vector database. Both of the
// identity's collections (original and compressed) live inside it.
type DB struct {
	db *chromem.DB
}

// Open opens (creating on demand) a persistent database at dir.
func Open(dir string) (*DB, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("chromem: open %s: %w", dir, err)
	}
	return &DB{db: db}, nil
}

// Collection returns the named collection as a VectorStore, creating
// it with the given embedding function when it does not exist yet.
func (d *DB) Collection(name string, embed chromem.EmbeddingFunc) (*Store, error) {
	col, err := d.db.GetOrCreateCollection(name, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("chromem: collection %s: %w", name, err)
	}
	return &Store{col: col}, nil
}

// Store is one chromem collection behind the VectorStore interface.
type Store struct {
	col *chromem.Collection
}

// AddTexts embeds and indexes the texts with their metadata.
func (s *Store) AddTexts(ctx context.Context, texts []string, metadatas []map[string]string) error {
	for i, text := range texts {
		var meta map[string]string
		if i < len(metadatas) {
			meta = metadatas[i]
		}
		doc := chromem.Document{
			ID:       uuid.New().String(),
			Content:  text,
			Metadata: meta,
		}
		if err := s.col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("chromem: add document: %w", err)
		}
	}
	return nil
}

// SimilaritySearch returns the k nearest documents by embedding
// similarity. chromem rejects nResults above the collection size, so k
// is clamped to what the collection holds.
func (s *Store) SimilaritySearch(ctx context.Context, query string, k int) ([]store.Document, error) {
	count := s.col.Count()
	if k <= 0 || count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := s.col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	log.Debug().Int("results", len(results)).Msg("chromem similarity search")

	docs := make([]store.Document, 0, len(results))
	for _, result := range results {
		docs = append(docs, store.Document{
			Content:  result.Content,
			Metadata: result.Metadata,
		})
	}
	return docs, nil
}
