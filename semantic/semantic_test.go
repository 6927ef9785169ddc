package semantic_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mnemoria-ai/mnemoria-go/core"
	"github.com/mnemoria-ai/mnemoria-go/semantic"
)

// compressor is a scripted fake for the recent-history collaborator's
// compression routine.
type compressor struct {
	summary string
	err     error
}

func (c *compressor) CompressHistory(ctx context.Context, messages []core.Message, identity string) (string, error) {
	return c.summary, c.err
}

func dialogue() []core.Message {
	return []core.Message{
		core.NewMessage(core.RoleHuman, "I started learning the violin"),
		core.NewMessage(core.RoleAI, "That sounds wonderful"),
	}
}

func TestStoreConversationIndexesBothCollections(t *testing.T) {
	ctx := context.Background()
	m := semantic.New(t.TempDir(), &compressor{summary: "they discussed the violin"})

	if err := m.StoreConversation(ctx, "uid-1", dialogue(), "Zero"); err != nil {
		t.Fatalf("StoreConversation: %v", err)
	}

	docs, err := m.HybridSearch(ctx, "violin", "Zero", 5, false)
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2 (one original, one summary)", len(docs))
	}

	// Original results come first; the ai speaker renders as the
	// identity name.
	if !strings.HasPrefix(docs[0].Content, "human | I started learning the violin") {
		t.Errorf("original document = %q", docs[0].Content)
	}
	if docs[0].Metadata["event_id"] != "uid-1" || docs[0].Metadata["role"] != "human" {
		t.Errorf("original metadata = %v", docs[0].Metadata)
	}
	for _, key := range []string{"year", "month", "day", "weekday", "hour", "minute", "timestamp"} {
		if docs[0].Metadata[key] == "" {
			t.Errorf("metadata missing %q: %v", key, docs[0].Metadata)
		}
	}

	if docs[1].Metadata["role"] != semantic.SummaryRole {
		t.Errorf("summary metadata = %v", docs[1].Metadata)
	}
}

func TestStoreConversationAISpeaksAsIdentity(t *testing.T) {
	ctx := context.Background()
	m := semantic.New(t.TempDir(), nil)

	if err := m.StoreConversation(ctx, "uid-1", dialogue(), "Zero"); err != nil {
		t.Fatalf("StoreConversation: %v", err)
	}

	docs, err := m.HybridSearch(ctx, "wonderful", "Zero", 5, false)
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(docs) != 1 || !strings.HasPrefix(docs[0].Content, "Zero | That sounds wonderful") {
		t.Errorf("ai document = %+v", docs)
	}
}

func TestStoreConversationNameMapping(t *testing.T) {
	ctx := context.Background()
	m := semantic.New(t.TempDir(), nil,
		semantic.WithNameMapping(map[core.Role]string{core.RoleHuman: "Liz"}),
	)

	if err := m.StoreConversation(ctx, "uid-1", dialogue(), "Zero"); err != nil {
		t.Fatalf("StoreConversation: %v", err)
	}

	docs, err := m.HybridSearch(ctx, "violin", "Zero", 5, false)
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(docs) != 1 || !strings.HasPrefix(docs[0].Content, "Liz | ") {
		t.Errorf("mapped document = %+v", docs)
	}
}

func TestCompressionFailureDoesNotFailStore(t *testing.T) {
	ctx := context.Background()
	m := semantic.New(t.TempDir(), &compressor{err: errors.New("model down")})

	if err := m.StoreConversation(ctx, "uid-1", dialogue(), "Zero"); err != nil {
		t.Fatalf("StoreConversation with failing compressor: %v", err)
	}
	docs, err := m.HybridSearch(ctx, "violin", "Zero", 5, false)
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("got %d documents, want the original only", len(docs))
	}
}

func TestFallbackReturnsRecentOnNoMatch(t *testing.T) {
	ctx := context.Background()
	m := semantic.New(t.TempDir(), nil)

	for _, text := range []string{"first topic", "second topic", "third topic"} {
		msgs := []core.Message{core.NewMessage(core.RoleHuman, text)}
		if err := m.StoreConversation(ctx, "uid-"+text[:5], msgs, "Zero"); err != nil {
			t.Fatalf("StoreConversation: %v", err)
		}
	}

	docs, err := m.HybridSearch(ctx, "zzz-nothing-matches", "Zero", 1, false)
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(docs) != 1 || !strings.Contains(docs[0].Content, "third topic") {
		t.Errorf("no-match recall = %+v, want most recent document", docs)
	}
}

func TestHybridSearchNonPositiveK(t *testing.T) {
	ctx := context.Background()
	m := semantic.New(t.TempDir(), nil)

	if err := m.StoreConversation(ctx, "uid-1", dialogue(), "Zero"); err != nil {
		t.Fatalf("StoreConversation: %v", err)
	}

	// The search surface is best-effort for the host; a nonsense k must
	// come back empty, never blow up.
	for _, k := range []int{0, -5} {
		docs, err := m.HybridSearch(ctx, "violin", "Zero", k, false)
		if err != nil {
			t.Fatalf("HybridSearch with k=%d: %v", k, err)
		}
		if len(docs) != 0 {
			t.Errorf("k=%d returned %+v, want empty", k, docs)
		}
	}
}

func TestIdentitiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := semantic.New(t.TempDir(), nil)

	msgs := []core.Message{core.NewMessage(core.RoleHuman, "a secret for Zero")}
	if err := m.StoreConversation(ctx, "uid-1", msgs, "Zero"); err != nil {
		t.Fatalf("StoreConversation: %v", err)
	}

	docs, err := m.HybridSearch(ctx, "secret", "Other", 5, false)
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("identity Other sees Zero's documents: %+v", docs)
	}
}

func TestQueryFormatsRecall(t *testing.T) {
	ctx := context.Background()
	m := semantic.New(t.TempDir(), nil, semantic.WithRecallCacheTTL(0))

	if err := m.StoreConversation(ctx, "uid-1", dialogue(), "Zero"); err != nil {
		t.Fatalf("StoreConversation: %v", err)
	}

	out := m.Query(ctx, "Zero", "violin")
	if !strings.Contains(out, "Zero tries to recall") {
		t.Errorf("recall header missing: %q", out)
	}
	if !strings.Contains(out, "related memories of Zero") {
		t.Errorf("memories header missing: %q", out)
	}
	if !strings.Contains(out, "memory fragment 0 | ") {
		t.Errorf("fragment numbering missing: %q", out)
	}
	if !strings.Contains(out, "I started learning the violin") {
		t.Errorf("fragment content missing: %q", out)
	}
}

func TestQueryNeverFails(t *testing.T) {
	// No documents stored at all; recall still answers.
	m := semantic.New(t.TempDir(), nil, semantic.WithRecallCacheTTL(0))
	out := m.Query(context.Background(), "Zero", "anything")
	if !strings.Contains(out, "related memories of Zero") {
		t.Errorf("empty recall = %q", out)
	}
}
