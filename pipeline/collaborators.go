package pipeline

import (
	"context"
	"time"

	"github.com/mnemoria-ai/mnemoria-go/core"
)

// RecentHistory is the external working-set collaborator. It owns the
// bounded recent-history window and the compression routine; the
// pipeline only invokes it, once per ingested event.
type RecentHistory interface {
	// UpdateHistory folds the event's messages into the identity's
	// recent window. detailed requests the higher-fidelity update mode.
	UpdateHistory(ctx context.Context, messages []core.Message, identity string, detailed bool) error

	// ReviewHistory runs the collaborator's post-update review pass.
	ReviewHistory(ctx context.Context, identity string) error

	// CompressHistory produces a one-string summary of the messages.
	// An empty summary means there is nothing worth indexing.
	CompressHistory(ctx context.Context, messages []core.Message, identity string) (string, error)
}

// TimeIndexed is the external time-bucketed storage collaborator.
type TimeIndexed interface {
	StoreConversation(ctx context.Context, uid string, messages []core.Message, identity string) error
}

// Settings is the external durable-settings extractor. Disabled by
// default (nil): the reference deployment turned it off for cost, so
// it is opt-in via WithSettings.
type Settings interface {
	ExtractAndUpdateSettings(ctx context.Context, messages []core.Message, identity string) error
}

// SemanticStore is the retrieval-layer write path the consumer fans
// each event out to.
type SemanticStore interface {
	StoreConversation(ctx context.Context, uid string, messages []core.Message, identity string) error
}

// Archiver persists process-kind events durably.
type Archiver interface {
	WriteShard(identity, uid string, ts time.Time, messages []core.Message) error
}
