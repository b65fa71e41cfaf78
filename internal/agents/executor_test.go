package agents

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"queryforge/internal/models"
	"queryforge/internal/tools"
)

// stubTool fails a fixed number of times before succeeding, counting calls.
type stubTool struct {
	name     string
	output   string
	failures int
	calls    int
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub tool for tests" }
func (s *stubTool) Run(ctx context.Context, input string) (string, error) {
	s.calls++
	if s.calls <= s.failures {
		return "", errors.New("transient failure")
	}
	if s.output != "" {
		return s.output, nil
	}
	return "output for: " + input, nil
}

type stubSubstituter struct {
	pick  string
	calls int
}

func (s *stubSubstituter) SuggestToolSubstitution(ctx context.Context, failed models.Step, available []string) string {
	s.calls++
	return s.pick
}

func newTestExecutor(reg *tools.Registry, sub Substituter) *Executor {
	e := NewExecutor(reg, sub, nil, zap.NewNop())
	e.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return e
}

func stubRegistry(ts ...tools.Tool) *tools.Registry {
	reg := tools.NewRegistry()
	for _, t := range ts {
		reg.Register(t)
	}
	return reg
}

func step(id, tool string, retries int) models.Step {
	return models.Step{StepID: id, Tool: tool, Purpose: "test step", Input: "the question", MaxRetries: retries}
}

func TestExecute_HappyPath(t *testing.T) {
	gather := &stubTool{name: tools.WikipediaSearch, output: "Fusion: confines plasma at high temperature."}
	synth := &stubTool{name: tools.QAEngine}
	e := newTestExecutor(stubRegistry(gather, synth), nil)

	plan := &models.Plan{Query: "q", Pipeline: []models.Step{
		step("S1", tools.WikipediaSearch, 2),
		step("S2", tools.QAEngine, 2),
	}}
	results := e.Execute(context.Background(), plan)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, models.StepSuccess, r.Status)
		assert.Equal(t, 1, r.Attempts)
	}
	assert.Equal(t, "the question", results[1].Input, "result records the original input")
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	flaky := &stubTool{name: tools.NewsFetcher, failures: 2, output: "headline list"}
	e := newTestExecutor(stubRegistry(flaky), nil)

	results := e.Execute(context.Background(), &models.Plan{
		Pipeline: []models.Step{step("S1", tools.NewsFetcher, 3)},
	})
	require.Len(t, results, 1)
	assert.Equal(t, models.StepSuccess, results[0].Status)
	assert.Equal(t, 3, results[0].Attempts)
}

func TestExecute_RetryBudgetThenSubstitution(t *testing.T) {
	broken := &stubTool{name: tools.ArxivSummarizer, failures: 100}
	backup := &stubTool{name: tools.WikipediaSearch, output: "background knowledge instead"}
	sub := &stubSubstituter{pick: tools.WikipediaSearch}
	e := newTestExecutor(stubRegistry(broken, backup), sub)

	results := e.Execute(context.Background(), &models.Plan{
		Pipeline: []models.Step{step("S1", tools.ArxivSummarizer, 2)},
	})
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, models.StepSuccess, r.Status)
	assert.Equal(t, tools.WikipediaSearch, r.Tool)
	// 2 failed attempts on the original plus 1 on the substitute
	assert.Equal(t, 3, r.Attempts)
	assert.Equal(t, 1, sub.calls, "substitution happens at most once per step")
	assert.Equal(t, 2, broken.calls)
}

func TestExecute_SubstituteAlsoFails(t *testing.T) {
	broken := &stubTool{name: tools.ArxivSummarizer, failures: 100}
	alsoBroken := &stubTool{name: tools.WikipediaSearch, failures: 100}
	sub := &stubSubstituter{pick: tools.WikipediaSearch}
	e := newTestExecutor(stubRegistry(broken, alsoBroken), sub)

	results := e.Execute(context.Background(), &models.Plan{
		Pipeline: []models.Step{step("S1", tools.ArxivSummarizer, 2)},
	})
	require.Len(t, results, 1)
	assert.Equal(t, models.StepError, results[0].Status)
	assert.Equal(t, 4, results[0].Attempts) // 2 + 2, fresh budget, no chaining
	assert.Equal(t, 1, sub.calls)
}

func TestExecute_UnknownToolRetriedWithinBudget(t *testing.T) {
	e := newTestExecutor(stubRegistry(), nil)
	results := e.Execute(context.Background(), &models.Plan{
		Pipeline: []models.Step{step("S1", "unknown_tool", 3)},
	})
	require.Len(t, results, 1)
	assert.Equal(t, models.StepError, results[0].Status)
	assert.Equal(t, 3, results[0].Attempts, "unknown tools consume the full retry budget like any other failure")
	assert.Contains(t, results[0].Error, "not available")
}

func TestExecute_EmptyOutputIsFailure(t *testing.T) {
	empty := &stubTool{name: tools.SentimentAnalyzer, output: "   "}
	e := newTestExecutor(stubRegistry(empty), nil)
	results := e.Execute(context.Background(), &models.Plan{
		Pipeline: []models.Step{step("S1", tools.SentimentAnalyzer, 2)},
	})
	assert.Equal(t, models.StepError, results[0].Status)
}

func TestInjectContext(t *testing.T) {
	prior := []models.ExecutionResult{
		{Tool: tools.WikipediaSearch, Status: models.StepSuccess, Output: "Fusion powers stars through nuclei merging."},
		{Tool: tools.NewsFetcher, Status: models.StepError, Error: "timeout"},
		{Tool: tools.SentimentAnalyzer, Status: models.StepSuccess, Output: "short"}, // ≤10 chars, skipped
	}
	got := injectContext("What is fusion?", prior)
	assert.Contains(t, got, "What is fusion?")
	assert.Contains(t, got, "[wikipedia_search]: Fusion powers stars")
	assert.NotContains(t, got, "news_fetcher")
	assert.NotContains(t, got, "sentiment_analyzer")

	// Pure: same inputs give byte-identical output.
	assert.Equal(t, got, injectContext("What is fusion?", prior))
}

func TestInjectContext_NoUsableContext(t *testing.T) {
	assert.Equal(t, "q", injectContext("q", nil))
	assert.Equal(t, "q", injectContext("q", []models.ExecutionResult{
		{Tool: "x", Status: models.StepError, Error: "boom"},
	}))
}

func TestExecuteWithSelfCorrection_DropsFailedNonCriticalStep(t *testing.T) {
	gather := &stubTool{name: tools.WikipediaSearch, output: "solid background information"}
	broken := &stubTool{name: tools.NewsFetcher, failures: 100}
	synth := &stubTool{name: tools.QAEngine, output: "final synthesized answer"}
	e := newTestExecutor(stubRegistry(gather, broken, synth), nil)

	plan := &models.Plan{Query: "q", Pipeline: []models.Step{
		step("S1", tools.WikipediaSearch, 1),
		step("S2", tools.NewsFetcher, 1),
		step("S3", tools.QAEngine, 1),
	}}
	results, executed := e.ExecuteWithSelfCorrection(context.Background(), plan, 2)

	require.Len(t, results, 2, "failed non-critical step removed on rerun")
	for _, r := range results {
		assert.Equal(t, models.StepSuccess, r.Status)
	}
	assert.Equal(t, []string{tools.WikipediaSearch, tools.QAEngine}, executed.Tools())
	assert.Contains(t, executed.Notes, "self-corrected after execution failures")
	assert.Len(t, plan.Pipeline, 3, "original plan untouched")
}

func TestExecuteWithSelfCorrection_UnavailableToolSwappedForStaticFallback(t *testing.T) {
	backup := &stubTool{name: tools.WikipediaSearch, output: "substitute background output"}
	synth := &stubTool{name: tools.QAEngine, output: "final answer"}
	// arxiv_summarizer is never registered, so it fails as "not available".
	e := newTestExecutor(stubRegistry(backup, synth), nil)

	plan := &models.Plan{Query: "q", Pipeline: []models.Step{
		step("S1", tools.ArxivSummarizer, 1),
		step("S2", tools.QAEngine, 1),
	}}
	results, executed := e.ExecuteWithSelfCorrection(context.Background(), plan, 2)

	assert.Equal(t, []string{tools.WikipediaSearch, tools.QAEngine}, executed.Tools())
	for _, r := range results {
		assert.Equal(t, models.StepSuccess, r.Status)
	}
}

func TestExecuteWithSelfCorrection_BoundedReruns(t *testing.T) {
	broken := &stubTool{name: tools.QAEngine, failures: 1000}
	e := newTestExecutor(stubRegistry(broken), nil)

	plan := &models.Plan{Query: "q", Pipeline: []models.Step{step("S1", tools.QAEngine, 1)}}
	results, _ := e.ExecuteWithSelfCorrection(context.Background(), plan, 2)

	assert.Equal(t, models.StepError, results[0].Status)
	// synthesis is critical so it is never dropped; the plan cannot change, so
	// reruns stop immediately rather than burning the full budget.
	assert.Equal(t, 1, broken.calls)
}

func TestFinalResponse(t *testing.T) {
	results := []models.ExecutionResult{
		{Tool: tools.WikipediaSearch, Status: models.StepSuccess, Output: "background"},
		{Tool: tools.QAEngine, Status: models.StepSuccess, Output: "the real answer"},
		{Tool: tools.SentimentAnalyzer, Status: models.StepSuccess, Output: "positive"},
	}
	assert.Equal(t, "the real answer", FinalResponse(results), "synthesis output wins over later steps")

	noSynth := results[:1]
	assert.Equal(t, "background", FinalResponse(noSynth))

	assert.Equal(t, "", FinalResponse([]models.ExecutionResult{
		{Tool: tools.QAEngine, Status: models.StepError, Error: "boom"},
	}))
}

func TestFallbackResponse_WithoutClientCarriesDisclaimer(t *testing.T) {
	e := newTestExecutor(stubRegistry(), nil)
	results := []models.ExecutionResult{
		{Tool: tools.WikipediaSearch, Status: models.StepSuccess, Output: "partial background"},
		{Tool: tools.QAEngine, Status: models.StepError, Error: "boom"},
	}
	got := e.FallbackResponse(context.Background(), "q", results)
	assert.Contains(t, got, "partial background")
	assert.Contains(t, got, "incomplete or fallback reasoning")
}

func TestExecute_CancelledContextStopsNewWork(t *testing.T) {
	gather := &stubTool{name: tools.WikipediaSearch, output: "never reached"}
	e := newTestExecutor(stubRegistry(gather), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := e.Execute(ctx, &models.Plan{Pipeline: []models.Step{
		step("S1", tools.WikipediaSearch, 2),
	}})
	require.Len(t, results, 1)
	assert.Equal(t, models.StepError, results[0].Status)
	assert.Equal(t, 0, gather.calls)
}

func TestCorrectPlan_ReappendsSynthesisWhenMissing(t *testing.T) {
	// A plan that somehow lost its synthesis step gets one back during
	// correction, so the rerun can still produce an answer.
	plan := &models.Plan{Query: "the original question", Pipeline: []models.Step{
		step("S1", tools.WikipediaSearch, 1),
		step("S2", tools.NewsFetcher, 1),
	}}
	failed := map[string]models.ExecutionResult{
		"S2": {StepID: "S2", Tool: tools.NewsFetcher, Status: models.StepError, Error: "transient failure"},
	}
	corrected, changed := correctPlan(plan, failed)
	require.True(t, changed)
	last := corrected.Pipeline[len(corrected.Pipeline)-1]
	assert.Equal(t, tools.SynthesisTool, last.Tool)
	assert.Equal(t, "the original question", last.Input)
}

func TestCorrectPlan_CriticalFailureLeavesPlanUnchanged(t *testing.T) {
	plan := &models.Plan{Query: "q", Pipeline: []models.Step{
		step("S1", tools.WikipediaSearch, 1),
		step("S2", tools.QAEngine, 1),
	}}
	failed := map[string]models.ExecutionResult{
		"S2": {StepID: "S2", Tool: tools.QAEngine, Status: models.StepError,
			Error: fmt.Sprintf("tool %q returned empty output", tools.QAEngine)},
	}
	_, changed := correctPlan(plan, failed)
	assert.False(t, changed)
}
