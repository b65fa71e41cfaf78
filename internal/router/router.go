// Package router decides whether a query deserves the full plan/verify/execute
// pipeline or a single direct answer. Heuristics decide the clear cases; an
// optional LLM backstop breaks ties.
package router

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"queryforge/internal/models"
	"queryforge/internal/providers/llm"
)

// Thresholds on the simplicity score. Between them the heuristic is
// inconclusive and the LLM backstop (if configured) gets one shot.
const (
	directThreshold   = 0.65
	pipelineThreshold = 0.35
)

// toolHints is vocabulary that signals the query wants multi-step work.
var toolHints = []string{
	"research", "analyze", "analyse", "report", "compare", "visualize",
	"visualise", "pipeline", "multi-step", "chart", "plot", "summarize",
	"document", "pdf", "file", "dataset", "verify", "fact-check",
}

// Router classifies queries. Client may be nil; classification then falls
// back to the pipeline route on inconclusive scores.
type Router struct {
	Client llm.Client
	Log    *zap.Logger
}

func New(client llm.Client, log *zap.Logger) *Router {
	return &Router{Client: client, Log: log}
}

// Classify scores the query and routes it. Empty input always routes to the
// pipeline with zero confidence rather than being dropped.
func (r *Router) Classify(ctx context.Context, query string) models.QueryClassification {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.QueryClassification{
			Route:      models.RoutePipeline,
			Confidence: 0,
			Rationale:  "empty query",
		}
	}

	score, signals := simplicityScore(query)
	switch {
	case score >= directThreshold:
		return models.QueryClassification{
			Route:      models.RouteDirect,
			Confidence: score,
			Rationale:  "simple single-intent query",
			Signals:    signals,
		}
	case score <= pipelineThreshold:
		return models.QueryClassification{
			Route:      models.RoutePipeline,
			Confidence: 1 - score,
			Rationale:  "query signals multi-step work",
			Signals:    signals,
		}
	}

	if c, ok := r.llmBackstop(ctx, query); ok {
		c.Signals = signals
		return c
	}
	// Inconclusive and no model reachable: pipeline is the safe path.
	return models.QueryClassification{
		Route:      models.RoutePipeline,
		Confidence: 0.5,
		Rationale:  "inconclusive heuristic, defaulting to pipeline",
		Signals:    signals,
	}
}

// simplicityScore maps a query to [0,1]; higher means a direct answer is
// likely enough.
func simplicityScore(query string) (float64, map[string]any) {
	lower := strings.ToLower(query)
	words := strings.Fields(query)
	sentences := strings.Count(query, ".") + strings.Count(query, "!") + strings.Count(query, "?")
	if sentences == 0 {
		sentences = 1
	}

	score := 0.5
	signals := map[string]any{"word_count": len(words), "sentences": sentences}

	if len(words) <= 8 && sentences == 1 {
		score += 0.2
		signals["short_single_sentence"] = true
	}
	if len(words) >= 25 {
		score -= 0.25
		signals["long_query"] = true
	}
	for _, hint := range toolHints {
		if strings.Contains(lower, hint) {
			score -= 0.25
			signals["tool_hint"] = hint
			break
		}
	}
	if questionLed(lower) && len(words) <= 12 {
		score += 0.15
		signals["question_led"] = true
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, signals
}

var questionWords = []string{"what", "who", "when", "where", "which", "is", "are", "does", "do", "can"}

func questionLed(lower string) bool {
	first := lower
	if i := strings.IndexByte(lower, ' '); i > 0 {
		first = lower[:i]
	}
	for _, w := range questionWords {
		if first == w {
			return true
		}
	}
	return strings.HasSuffix(strings.TrimSpace(lower), "?")
}

const classifyPrompt = `Decide how to route this query.
Reply with strict JSON: {"route": "direct" or "pipeline", "confidence": 0.0-1.0, "rationale": "..."}.
Use "direct" only for simple questions answerable in one response without tools.

Query: %q`

func (r *Router) llmBackstop(ctx context.Context, query string) (models.QueryClassification, bool) {
	if r.Client == nil {
		return models.QueryClassification{}, false
	}
	var reply struct {
		Route      string  `json:"route"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	}
	err := llm.CompleteJSON(ctx, r.Client, llm.Request{
		Prompt:    fmt.Sprintf(classifyPrompt, query),
		MaxTokens: 200,
	}, &reply)
	if err != nil {
		r.Log.Debug("classification backstop failed", zap.Error(err))
		return models.QueryClassification{}, false
	}
	route := models.RoutePipeline
	if reply.Route == string(models.RouteDirect) {
		route = models.RouteDirect
	}
	return models.QueryClassification{
		Route:           route,
		Confidence:      reply.Confidence,
		Rationale:       reply.Rationale,
		LLMBackstopUsed: true,
	}, true
}
