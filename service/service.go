// Package service assembles the memory subsystem: the ingestion
// pipeline, the semantic memory, the durable archive, and the
// background compaction scheduler, behind one facade.
package service

import (
	"context"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog/log"

	"github.com/mnemoria-ai/mnemoria-go/archive"
	"github.com/mnemoria-ai/mnemoria-go/core"
	"github.com/mnemoria-ai/mnemoria-go/pipeline"
	"github.com/mnemoria-ai/mnemoria-go/semantic"
	"github.com/mnemoria-ai/mnemoria-go/semantic/embedder"
	"github.com/mnemoria-ai/mnemoria-go/semantic/embedder/onnx"
)

// Service is the memory subsystem. The conversational engine submits
// dialogue events and asks recall queries; everything else (batching,
// indexing, archival, compaction) happens behind it.
type Service struct {
	store     *archive.Store
	cfg       *archive.ConfigStore
	compactor *archive.Compactor
	pipe      *pipeline.Pipeline
	memory    *semantic.Memory
}

type options struct {
	pipelineCfg  *pipeline.Config
	settings     pipeline.Settings
	embed        embedder.Embedder
	embedCfg     *onnx.Config
	reranker     semantic.Reranker
	semanticOpts []semantic.Option
}

// Option configures the service.
type Option func(*options)

// WithPipelineConfig overrides the ingestion queue and batching
// defaults.
func WithPipelineConfig(cfg *pipeline.Config) Option {
	return func(o *options) {
		o.pipelineCfg = cfg
	}
}

// WithSettings enables the durable-settings extractor on the ingestion
// path.
func WithSettings(s pipeline.Settings) Option {
	return func(o *options) {
		o.settings = s
	}
}

// WithEmbedder supplies an embedding backend directly.
func WithEmbedder(e embedder.Embedder) Option {
	return func(o *options) {
		o.embed = e
	}
}

// WithEmbedderConfig probes the local ONNX backend at construction.
// When the probe fails the semantic memory degrades to its in-memory
// fallback store instead of failing the service.
func WithEmbedderConfig(cfg onnx.Config) Option {
	return func(o *options) {
		o.embedCfg = &cfg
	}
}

// WithRerankClient enables LLM re-ranking of hybrid searches through
// the given Anthropic client. An empty model selects the default.
func WithRerankClient(client *anthropic.Client, model string) Option {
	return func(o *options) {
		o.reranker = semantic.NewLLMReranker(semantic.NewAnthropicCompleter(client, model))
	}
}

// WithReranker supplies a reranker directly.
func WithReranker(r semantic.Reranker) Option {
	return func(o *options) {
		o.reranker = r
	}
}

// WithSemanticOptions passes extra options through to the semantic
// memory (name mapping, search size, recall cache TTL).
func WithSemanticOptions(opts ...semantic.Option) Option {
	return func(o *options) {
		o.semanticOpts = append(o.semanticOpts, opts...)
	}
}

// New wires the subsystem under the given store root. recent is the
// external recent-history collaborator (it also provides compression
// for semantic summaries); timeIndexed is the external time-indexed
// store. Run must be started for ingestion and compaction to proceed.
func New(root string, recent pipeline.RecentHistory, timeIndexed pipeline.TimeIndexed, opts ...Option) *Service {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store := archive.NewStore(root)
	cfg := archive.LoadConfigStore(root)

	embed := o.embed
	if embed == nil && o.embedCfg != nil {
		e, err := onnx.New(*o.embedCfg)
		if err != nil {
			log.Warn().Err(err).Msg("embedding backend unavailable, semantic memory uses in-memory fallback")
		} else {
			embed = e
		}
	}

	semOpts := make([]semantic.Option, 0, len(o.semanticOpts)+2)
	if embed != nil {
		semOpts = append(semOpts, semantic.WithEmbedder(embed))
	}
	if o.reranker != nil {
		semOpts = append(semOpts, semantic.WithReranker(o.reranker))
	}
	semOpts = append(semOpts, o.semanticOpts...)
	memory := semantic.New(root, recent, semOpts...)

	pipeOpts := []pipeline.Option{}
	if o.pipelineCfg != nil {
		pipeOpts = append(pipeOpts, pipeline.WithConfig(o.pipelineCfg))
	}
	if o.settings != nil {
		pipeOpts = append(pipeOpts, pipeline.WithSettings(o.settings))
	}
	pipe := pipeline.New(recent, memory, timeIndexed, store, pipeOpts...)

	return &Service{
		store:     store,
		cfg:       cfg,
		compactor: archive.NewCompactor(store, cfg),
		pipe:      pipe,
		memory:    memory,
	}
}

// Run starts the ingestion consumer and the compaction scheduler and
// blocks until ctx is cancelled and both have stopped.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.pipe.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.compactor.Run(ctx)
	}()
	wg.Wait()
}

// Submit enqueues a dialogue event for asynchronous processing and
// returns its assigned UID. A full queue yields pipeline.ErrQueueFull.
func (s *Service) Submit(identity string, kind pipeline.Kind, messages []core.Message) (string, error) {
	return s.pipe.Submit(identity, kind, "", messages)
}

// SubmitRaw decodes a JSON message payload and enqueues it. Decoding is
// lenient about message shape but rejects a payload that is not an
// array of messages.
func (s *Service) SubmitRaw(identity string, kind pipeline.Kind, payload []byte) (string, error) {
	messages, err := core.DecodeMessages(payload)
	if err != nil {
		return "", err
	}
	return s.pipe.Submit(identity, kind, "", messages)
}

// Recall answers a memory query with formatted recall text. Always
// best-effort.
func (s *Service) Recall(ctx context.Context, identity, query string) string {
	return s.memory.Query(ctx, identity, query)
}

// Search runs a hybrid search over both semantic collections, with
// optional LLM re-ranking.
func (s *Service) Search(ctx context.Context, query, identity string, k int, withRerank bool) ([]semantic.Document, error) {
	return s.memory.HybridSearch(ctx, query, identity, k, withRerank)
}

// MergeDay merges one identity's archive day on demand, honoring the
// configured shard-deletion policy. Merged output is compressed.
func (s *Service) MergeDay(identity, date string) (*archive.MergeResult, error) {
	return s.store.MergeByDay(identity, date, archive.MergeOptions{
		Compress:     true,
		DeleteShards: s.cfg.Get().DeleteShards,
	})
}

// CompactNow runs one compaction pass immediately, outside the
// scheduler's interval and window.
func (s *Service) CompactNow() {
	s.compactor.Sweep()
}

// CompactionConfig returns the current compaction configuration.
func (s *Service) CompactionConfig() archive.Config {
	return s.cfg.Get()
}

// SetCompactionConfig applies and persists a new compaction
// configuration. The value takes effect on the scheduler's next
// iteration even when persistence fails.
func (s *Service) SetCompactionConfig(cfg archive.Config) error {
	return s.cfg.Set(cfg)
}

// Memory exposes the semantic layer for callers that need direct
// access (storage replay, diagnostics).
func (s *Service) Memory() *semantic.Memory {
	return s.memory
}

// Archive exposes the durable archive store.
func (s *Service) Archive() *archive.Store {
	return s.store
}
