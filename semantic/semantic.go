package semantic

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	chromemgo "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"github.com/mnemoria-ai/mnemoria-go/core"
	"github.com/mnemoria-ai/mnemoria-go/semantic/embedder"
	chromemstore "github.com/mnemoria-ai/mnemoria-go/semantic/store/chromem"
	"github.com/mnemoria-ai/mnemoria-go/semantic/store/fallback"
)

// SummaryRole marks compressed-summary documents in metadata.
const SummaryRole = "SYSTEM_SUMMARY"

// Compressor is the external recent-history collaborator's compression
// routine, used to produce the per-event summary document.
type Compressor interface {
	CompressHistory(ctx context.Context, messages []core.Message, identity string) (string, error)
}

// Memory maintains the per-identity pair of vector collections and
// answers hybrid recall queries over them.
type Memory struct {
	root       string
	embed      embedder.Embedder
	compressor Compressor
	reranker   Reranker
	names      map[core.Role]string
	searchK    int
	cacheTTL   time.Duration
	cache      *ristretto.Cache
	now        func() time.Time

	mu    sync.RWMutex
	pairs map[string]*collectionPair
}

// collectionPair is one identity's two stores.
type collectionPair struct {
	original   VectorStore
	compressed VectorStore
}

// Option configures the memory layer.
type Option func(*Memory)

// WithEmbedder selects the embedding backend. Without one, every
// identity gets the in-memory fallback store.
func WithEmbedder(e embedder.Embedder) Option {
	return func(m *Memory) {
		m.embed = e
	}
}

// WithReranker enables LLM re-ranking for hybrid searches that request
// it.
func WithReranker(r Reranker) Option {
	return func(m *Memory) {
		m.reranker = r
	}
}

// WithNameMapping overrides the display names used for roles in stored
// and recalled text. The ai role always renders as the identity name.
func WithNameMapping(names map[core.Role]string) Option {
	return func(m *Memory) {
		m.names = names
	}
}

// WithSearchK sets how many results each collection contributes to a
// recall query. Default 10.
func WithSearchK(k int) Option {
	return func(m *Memory) {
		if k > 0 {
			m.searchK = k
		}
	}
}

// WithRecallCacheTTL sets how long formatted recall answers are served
// from cache. Default 30s; zero disables the cache.
func WithRecallCacheTTL(ttl time.Duration) Option {
	return func(m *Memory) {
		m.cacheTTL = ttl
	}
}

// New creates the semantic memory rooted at the memory-store
// directory. compressor may be nil, in which case no compressed
// summaries are indexed.
func New(root string, compressor Compressor, opts ...Option) *Memory {
	m := &Memory{
		root:       root,
		compressor: compressor,
		searchK:    10,
		cacheTTL:   30 * time.Second,
		now:        time.Now,
		pairs:      make(map[string]*collectionPair),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.cacheTTL > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 1 << 12,
			MaxCost:     1 << 22,
			BufferItems: 64,
		})
		if err != nil {
			log.Warn().Err(err).Msg("recall cache disabled")
		} else {
			m.cache = cache
		}
	}
	return m
}

// stores returns the identity's collection pair, opening it on first
// use.
func (m *Memory) stores(identity string) (*collectionPair, error) {
	m.mu.RLock()
	pair, ok := m.pairs[identity]
	m.mu.RUnlock()
	if ok {
		return pair, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if pair, ok := m.pairs[identity]; ok {
		return pair, nil
	}

	pair = m.openPair(identity)
	m.pairs[identity] = pair
	return pair, nil
}

// openPair selects the store implementation for one identity. With no
// embedding backend, or when the persistent store cannot be opened,
// the in-memory fallback serves both collections so retrieval never
// hard-fails.
func (m *Memory) openPair(identity string) *collectionPair {
	if m.embed == nil {
		log.Info().Str("identity", identity).Msg("no embedding backend, using in-memory fallback store")
		return &collectionPair{original: fallback.New(), compressed: fallback.New()}
	}

	dir := filepath.Join(m.root, "semantic_memory_"+identity)
	db, err := chromemstore.Open(dir)
	if err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("persistent store unavailable, using in-memory fallback")
		return &collectionPair{original: fallback.New(), compressed: fallback.New()}
	}

	embed := chromemgo.EmbeddingFunc(func(ctx context.Context, text string) ([]float32, error) {
		return m.embed.Embed(ctx, text)
	})

	original, err := db.Collection(fmt.Sprintf("semantic_%s_original", identity), embed)
	if err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("original collection unavailable, using in-memory fallback")
		return &collectionPair{original: fallback.New(), compressed: fallback.New()}
	}
	compressed, err := db.Collection(fmt.Sprintf("semantic_%s_compressed", identity), embed)
	if err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("compressed collection unavailable, using in-memory fallback")
		return &collectionPair{original: original, compressed: fallback.New()}
	}
	return &collectionPair{original: original, compressed: compressed}
}

// StoreConversation indexes one event into both collections: one
// original document per message, and one compressed summary document
// for the event when the compressor produces one.
func (m *Memory) StoreConversation(ctx context.Context, uid string, messages []core.Message, identity string) error {
	pair, err := m.stores(identity)
	if err != nil {
		return err
	}
	now := m.now()

	texts := make([]string, 0, len(messages))
	metas := make([]map[string]string, 0, len(messages))
	for _, msg := range messages {
		texts = append(texts, fmt.Sprintf("%s | %s\n", m.speaker(identity, msg.Role), msg.Content.FlatText()))
		metas = append(metas, m.metadata(identity, uid, string(msg.Role), now))
	}

	var errs []error
	if len(texts) > 0 {
		if err := pair.original.AddTexts(ctx, texts, metas); err != nil {
			errs = append(errs, fmt.Errorf("semantic: store original: %w", err))
		}
	}

	if m.compressor != nil {
		summary, err := m.compressor.CompressHistory(ctx, messages, identity)
		if err != nil {
			log.Warn().Err(err).Str("identity", identity).Str("uid", uid).Msg("history compression failed, summary not indexed")
		} else if summary != "" {
			err := pair.compressed.AddTexts(ctx,
				[]string{summary},
				[]map[string]string{m.metadata(identity, uid, SummaryRole, now)},
			)
			if err != nil {
				errs = append(errs, fmt.Errorf("semantic: store compressed: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

// HybridSearch queries both collections and concatenates the results,
// original first, without dedup. With rerank requested (and a reranker
// configured) the combined set is reordered and truncated to k; a
// rerank that exhausts its retries yields an empty result by design.
func (m *Memory) HybridSearch(ctx context.Context, query, identity string, k int, withRerank bool) ([]Document, error) {
	pair, err := m.stores(identity)
	if err != nil {
		return nil, err
	}

	original, err := pair.original.SimilaritySearch(ctx, query, k)
	if err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("original collection search failed")
	}
	compressed, err := pair.compressed.SimilaritySearch(ctx, query, k)
	if err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("compressed collection search failed")
	}

	combined := make([]Document, 0, len(original)+len(compressed))
	combined = append(combined, original...)
	combined = append(combined, compressed...)

	if withRerank && m.reranker != nil {
		return m.reranker.Rerank(ctx, query, combined, k)
	}
	return combined, nil
}

// Query answers a recall query with formatted text: the query restated
// under a recall header, then the numbered memory fragments. Always
// best-effort; a failing search produces a recall with no fragments
// rather than an error.
func (m *Memory) Query(ctx context.Context, identity, query string) string {
	cacheKey := identity + "\x00" + query
	if m.cache != nil {
		if v, ok := m.cache.Get(cacheKey); ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}

	results, err := m.HybridSearch(ctx, query, identity, m.searchK, false)
	if err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("recall search failed")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "====== %s tries to recall =====\n%s\n\n====== related memories of %s =====\n", identity, query, identity)
	for i, doc := range results {
		fmt.Fprintf(&b, "memory fragment %d | \n%s\n", i, doc.Content)
	}
	out := b.String()

	if m.cache != nil {
		m.cache.SetWithTTL(cacheKey, out, int64(len(out)), m.cacheTTL)
	}
	return out
}

// speaker maps a role to its display name. The ai role renders as the
// identity itself; other roles use the configured mapping or the role
// name.
func (m *Memory) speaker(identity string, role core.Role) string {
	if role == core.RoleAI {
		return identity
	}
	if name, ok := m.names[role]; ok {
		return name
	}
	return string(role)
}

// metadata builds the shared document metadata: identity, event UID,
// role, calendar-bucketed time fields, and the ISO timestamp.
func (m *Memory) metadata(identity, uid, role string, now time.Time) map[string]string {
	return map[string]string{
		"identity":  identity,
		"event_id":  uid,
		"role":      role,
		"year":      strconv.Itoa(now.Year()),
		"month":     fmt.Sprintf("%02d", int(now.Month())),
		"day":       fmt.Sprintf("%02d", now.Day()),
		"weekday":   fmt.Sprintf("%02d", int(now.Weekday())),
		"hour":      fmt.Sprintf("%02d", now.Hour()),
		"minute":    fmt.Sprintf("%02d", now.Minute()),
		"timestamp": now.Format(time.RFC3339),
	}
}
