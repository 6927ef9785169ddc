package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mnemoria-ai/mnemoria-go/core"
)

// Kind selects the ingestion mode for a submitted event.
type Kind int

const (
	// KindProcess is the standard path: recent-history update plus
	// review, semantic and time-indexed storage, and durable archival.
	KindProcess Kind = iota

	// KindRenew requests the high-fidelity recent-history update and
	// skips review and archival.
	KindRenew
)

func (k Kind) String() string {
	if k == KindRenew {
		return "renew"
	}
	return "process"
}

// ErrQueueFull is returned by Submit when the bounded queue is at
// capacity. Submission never blocks the conversational turn that
// produced the event.
var ErrQueueFull = errors.New("pipeline: ingestion queue full")

// Config holds the queue and batching knobs.
type Config struct {
	// QueueSize bounds the number of pending submissions.
	QueueSize int

	// BatchSize caps how many items one batch drains.
	BatchSize int

	// BatchTimeout bounds how long a batch accumulates, measured from
	// receipt of its first item. No accepted item waits longer than
	// this before processing starts.
	BatchTimeout time.Duration
}

// DefaultConfig bounds latency at half a second and keeps per-batch
// overhead small.
var DefaultConfig = &Config{
	QueueSize:    1000,
	BatchSize:    8,
	BatchTimeout: 500 * time.Millisecond,
}

// request is one accepted submission waiting for the consumer.
type request struct {
	kind  Kind
	event core.DialogueEvent
}

// Pipeline is the ingestion front of the memory subsystem: a bounded
// queue with a single batch consumer that fans each event out to the
// recent-history collaborator, the semantic index, the time-indexed
// store, and (for process events) the durable archive.
type Pipeline struct {
	cfg      *Config
	requests chan request

	recent      RecentHistory
	semantic    SemanticStore
	timeIndexed TimeIndexed
	archiver    Archiver
	settings    Settings
}

// Option configures the pipeline.
type Option func(*Pipeline)

// WithConfig overrides the queue and batching defaults.
func WithConfig(cfg *Config) Option {
	return func(p *Pipeline) {
		if cfg != nil {
			p.cfg = cfg
		}
	}
}

// WithSettings enables the durable-settings extractor.
func WithSettings(s Settings) Option {
	return func(p *Pipeline) {
		p.settings = s
	}
}

// New creates a pipeline over the given collaborators. Run must be
// started for accepted submissions to be processed.
func New(recent RecentHistory, semantic SemanticStore, timeIndexed TimeIndexed, archiver Archiver, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:         DefaultConfig,
		recent:      recent,
		semantic:    semantic,
		timeIndexed: timeIndexed,
		archiver:    archiver,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.requests = make(chan request, p.cfg.QueueSize)
	return p
}

// Submit enqueues a dialogue event without blocking and returns the
// event UID (assigned here when the caller passes none); the
// acknowledgment is decoupled from the eventual processing outcome. A
// full queue is rejected with ErrQueueFull rather than silently
// dropped.
func (p *Pipeline) Submit(identity string, kind Kind, uid string, messages []core.Message) (string, error) {
	if uid == "" {
		uid = uuid.New().String()
	}
	req := request{
		kind: kind,
		event: core.DialogueEvent{
			UID:      uid,
			Identity: identity,
			Time:     time.Now(),
			Messages: messages,
		},
	}

	select {
	case p.requests <- req:
		log.Debug().Str("identity", identity).Str("kind", kind.String()).Str("uid", req.event.UID).Msg("event accepted")
		return req.event.UID, nil
	default:
		log.Warn().Str("identity", identity).Str("kind", kind.String()).Msg("ingestion queue full, rejecting")
		return "", ErrQueueFull
	}
}

// Run is the single consumer loop. It blocks for the first item of a
// batch, keeps pulling until BatchSize items or BatchTimeout from that
// first receipt, processes the batch in dequeue order, and repeats.
// On cancellation the in-flight batch is finished before returning.
func (p *Pipeline) Run(ctx context.Context) {
	log.Info().Msg("ingestion consumer started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("ingestion consumer stopped")
			return
		case first := <-p.requests:
			batch := p.collect(first)
			// The batch was already acknowledged to its submitters;
			// finish it even when shutdown raced the dequeue.
			p.processBatch(context.WithoutCancel(ctx), batch)
		}
	}
}

// collect accumulates a batch behind its first item.
func (p *Pipeline) collect(first request) []request {
	batch := []request{first}
	timer := time.NewTimer(p.cfg.BatchTimeout)
	defer timer.Stop()

	for len(batch) < p.cfg.BatchSize {
		select {
		case req := <-p.requests:
			batch = append(batch, req)
		case <-timer.C:
			return batch
		}
	}
	return batch
}

func (p *Pipeline) processBatch(ctx context.Context, batch []request) {
	log.Debug().Int("batch", len(batch)).Msg("processing batch")
	for _, req := range batch {
		p.processOne(ctx, req)
	}
}

// processOne fans one event out to every consumer of the pipeline.
// Each step is independently best-effort: a failing collaborator is
// logged and the remaining steps (and remaining batch items) still
// run. The submitter already got its acknowledgment, so nothing here
// propagates.
func (p *Pipeline) processOne(ctx context.Context, req request) {
	event := req.event
	warn := func(step string, err error) {
		log.Warn().Err(err).
			Str("step", step).
			Str("identity", event.Identity).
			Str("uid", event.UID).
			Str("kind", req.kind.String()).
			Msg("ingestion step failed")
	}

	detailed := req.kind == KindRenew
	if err := p.recent.UpdateHistory(ctx, event.Messages, event.Identity, detailed); err != nil {
		warn("recent_history", err)
	}
	if req.kind == KindProcess {
		if err := p.recent.ReviewHistory(ctx, event.Identity); err != nil {
			warn("history_review", err)
		}
	}

	if p.settings != nil {
		if err := p.settings.ExtractAndUpdateSettings(ctx, event.Messages, event.Identity); err != nil {
			warn("settings", err)
		}
	}

	if err := p.semantic.StoreConversation(ctx, event.UID, event.Messages, event.Identity); err != nil {
		warn("semantic", err)
	}

	if err := p.timeIndexed.StoreConversation(ctx, event.UID, event.Messages, event.Identity); err != nil {
		warn("time_indexed", err)
	}

	if req.kind == KindProcess {
		if err := p.archiver.WriteShard(event.Identity, event.UID, event.Time, event.Messages); err != nil {
			warn("archive", err)
		}
	}
}
