package tools

import (
	"context"
	"fmt"
	"strings"

	"queryforge/internal/providers/llm"
)

const qaSystemPrompt = "You synthesize a final answer from research notes. " +
	"Ground every claim in the provided context, note gaps honestly, and answer the question directly."

// QATool is the synthesis step terminating every pipeline. With an LLM client
// it composes a grounded answer from the accumulated step outputs; without
// one it falls back to a deterministic extractive digest so pipelines still
// complete.
type QATool struct {
	Client    llm.Client
	MaxTokens int
}

func NewQA(client llm.Client, maxTokens int) *QATool {
	return &QATool{Client: client, MaxTokens: maxTokens}
}

func (q *QATool) Name() string { return QAEngine }

func (q *QATool) Description() string {
	return "Synthesizes gathered context into a direct answer to the question."
}

func (q *QATool) Run(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("qa_engine: empty input")
	}
	if q.Client != nil {
		answer, err := q.Client.Complete(ctx, llm.Request{
			Prompt:       input,
			SystemPrompt: qaSystemPrompt,
			MaxTokens:    q.MaxTokens,
		})
		if err == nil && strings.TrimSpace(answer) != "" {
			return strings.TrimSpace(answer), nil
		}
	}
	return extractiveDigest(input), nil
}

// extractiveDigest builds an answer from the context lines the executor
// injected, preserving their order. It is intentionally dull: correctness over
// fluency when no model is reachable.
func extractiveDigest(input string) string {
	var facts []string
	var question string
	for _, ln := range strings.Split(input, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		if strings.HasPrefix(ln, "[") && strings.Contains(ln, "]:") {
			facts = append(facts, ln)
		} else if question == "" {
			question = ln
		}
	}
	if len(facts) == 0 {
		return "No supporting context was gathered. The question was: " + question
	}
	var b strings.Builder
	b.WriteString("Based on the gathered context:\n")
	for _, f := range facts {
		fmt.Fprintf(&b, "- %s\n", truncate(f, 500))
	}
	return strings.TrimSpace(b.String())
}
