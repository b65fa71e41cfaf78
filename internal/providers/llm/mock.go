package llm

import (
	"context"
	"strings"
)

// MockClient returns deterministic canned output for development and tests.
type MockClient struct{}

func (m *MockClient) Name() string { return "mock" }

func (m *MockClient) Complete(ctx context.Context, req Request) (string, error) {
	p := strings.ToLower(req.Prompt + " " + req.SystemPrompt)
	switch {
	case strings.Contains(p, `"route"`):
		return `{"route": "pipeline", "confidence": 0.6, "rationale": "mock classification"}`, nil
	case strings.Contains(p, `"scoring_breakdown"`):
		return `{
  "final_verdict": "approve",
  "overall_score": 85,
  "scoring_breakdown": {"relevance": 17, "completeness": 17, "logical_flow": 17, "tool_suitability": 17, "redundancy_control": 17},
  "issues": [],
  "suggested_corrections": [],
  "quality_summary": "mock verification",
  "confidence": "medium",
  "risk_level": "low",
  "next_actions": []
}`, nil
	case strings.Contains(p, `"pipeline"`) && strings.Contains(p, `"analysis_summary"`):
		return `{
  "query": "mock",
  "analysis_summary": "mock plan",
  "clarifications_needed": [],
  "tool_selection_rationale": [{"tool": "wikipedia_search", "justification": "baseline facts", "confidence": "high"}],
  "pipeline": [
    {"step_id": "S1", "tool": "wikipedia_search", "purpose": "Get foundational knowledge about the topic", "input": "mock"},
    {"step_id": "S2", "tool": "qa_engine", "purpose": "Synthesize a comprehensive answer", "input": "mock"}
  ],
  "final_output_plan": "Synthesized answer",
  "metadata": {"estimated_duration": "short", "plan_confidence": "high"}
}`, nil
	default:
		return "mock response: " + truncateMock(req.Prompt), nil
	}
}

func truncateMock(s string) string {
	if len(s) > 80 {
		return s[:80]
	}
	return s
}
