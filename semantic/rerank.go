package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog/log"
)

// Reranker reorders hybrid search results by relevance and truncates
// them to k.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []Document, k int) ([]Document, error)
}

// Completer issues one prompt/response exchange with a language model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const defaultRerankModel = "claude-sonnet-4-20250514"

// AnthropicCompleter backs Completer with the Anthropic Messages API.
type AnthropicCompleter struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicCompleter wraps an Anthropic client. An empty model
// selects the default.
func NewAnthropicCompleter(client *anthropic.Client, model string) *AnthropicCompleter {
	if model == "" {
		model = defaultRerankModel
	}
	return &AnthropicCompleter{client: client, model: model}
}

// Complete sends the prompt as a single user message and concatenates
// the text blocks of the response.
func (c *AnthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("semantic: completion request: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// LLMReranker asks a model for the indices of the most relevant
// snippets. Call or parse failures are retried up to three times; past
// that the rerank yields an empty result rather than unranked ones.
type LLMReranker struct {
	completer Completer
	attempts  int
}

// NewLLMReranker creates a reranker over the given completer.
func NewLLMReranker(completer Completer) *LLMReranker {
	return &LLMReranker{completer: completer, attempts: 3}
}

// Rerank returns at most k of the given documents, ordered by the
// model's relevance judgement. Indices outside the input range are
// discarded after truncation, matching the prompt contract.
func (r *LLMReranker) Rerank(ctx context.Context, query string, results []Document, k int) ([]Document, error) {
	if len(results) == 0 || k <= 0 {
		return []Document{}, nil
	}

	prompt := rerankPrompt(query, results, k)
	for attempt := 1; attempt <= r.attempts; attempt++ {
		raw, err := r.completer.Complete(ctx, prompt)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("rerank completion failed")
			continue
		}
		indices, err := parseRerankIndices(raw)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("rerank response unparsable")
			continue
		}

		if len(indices) > k {
			indices = indices[:k]
		}
		out := make([]Document, 0, len(indices))
		for _, idx := range indices {
			if idx < 0 || idx >= len(results) {
				continue
			}
			out = append(out, results[idx])
		}
		return out, nil
	}

	log.Warn().Str("query", query).Msg("rerank attempts exhausted, returning no results")
	return []Document{}, nil
}

func rerankPrompt(query string, results []Document, k int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are ranking memory snippets by relevance to a query.\n\nQuery: %s\n\nSnippets:\n", query)
	for i, doc := range results {
		fmt.Fprintf(&b, "Snippet %d:\n%s\n\n", i, doc.Content)
	}
	fmt.Fprintf(&b, "Respond with a JSON array of snippet indices, most relevant first, at most %d entries. Respond with the JSON array only.", k)
	return b.String()
}

// parseRerankIndices decodes the model's answer as a JSON integer
// array, tolerating a code fence around it.
func parseRerankIndices(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
		raw = strings.TrimSpace(raw)
	}
	var indices []int
	if err := json.Unmarshal([]byte(raw), &indices); err != nil {
		return nil, fmt.Errorf("decode indices: %w", err)
	}
	return indices, nil
}
