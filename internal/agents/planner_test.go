package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"queryforge/internal/models"
	"queryforge/internal/patterns"
	"queryforge/internal/providers/llm"
	"queryforge/internal/tools"
)

func testRegistry() *tools.Registry {
	reg := tools.NewRegistry()
	reg.Register(tools.NewWikipedia())
	reg.Register(tools.NewNews())
	reg.Register(tools.NewArxiv())
	reg.Register(tools.NewSentiment())
	reg.Register(tools.NewPlot("outputs"))
	reg.Register(tools.NewDocument("outputs"))
	reg.Register(tools.NewPDF())
	reg.Register(tools.NewQA(nil, 1000))
	return reg
}

func testPlanner(t *testing.T, client llm.Client) *Planner {
	t.Helper()
	return NewPlanner(client, testRegistry(), patterns.NewStore(t.TempDir()), zap.NewNop())
}

func assertWellFormed(t *testing.T, plan *models.Plan) {
	t.Helper()
	require.NotEmpty(t, plan.Pipeline)
	synthCount := 0
	for i, s := range plan.Pipeline {
		assert.Equalf(t, stepID(i), s.StepID, "step ids must be sequential")
		assert.NotEmpty(t, s.Input)
		assert.Positive(t, s.MaxRetries)
		if i > 0 {
			assert.Equal(t, []string{stepID(i - 1)}, s.Dependencies)
		}
		if s.Tool == tools.SynthesisTool {
			synthCount++
		}
	}
	assert.Equal(t, 1, synthCount, "synthesis tool appears exactly once")
	assert.Equal(t, tools.SynthesisTool, plan.Pipeline[len(plan.Pipeline)-1].Tool, "synthesis tool is last")
}

func stepID(i int) string {
	return []string{"S1", "S2", "S3", "S4", "S5", "S6"}[i]
}

func TestCreatePlan_TemplateSelection(t *testing.T) {
	p := testPlanner(t, nil)

	cases := []struct {
		query     string
		wantTools []string
	}{
		{
			"Research quantum error correction",
			[]string{tools.WikipediaSearch, tools.NewsFetcher, tools.ArxivSummarizer, tools.QAEngine},
		},
		{
			"Give me an overview of the Roman Empire",
			[]string{tools.WikipediaSearch, tools.QAEngine},
		},
		{
			"Analyze the sentiment around electric cars",
			[]string{tools.NewsFetcher, tools.SentimentAnalyzer, tools.DataPlotter, tools.QAEngine},
		},
		{
			"Write a report on renewable energy adoption",
			[]string{tools.WikipediaSearch, tools.NewsFetcher, tools.DocumentWriter, tools.QAEngine},
		},
		{
			"Tell me about black holes",
			[]string{tools.WikipediaSearch, tools.NewsFetcher, tools.ArxivSummarizer, tools.QAEngine}, // default template
		},
	}
	for _, tc := range cases {
		plan, err := p.CreatePlan(context.Background(), tc.query)
		require.NoError(t, err, tc.query)
		assertWellFormed(t, plan)
		assert.Equal(t, tc.wantTools, plan.Tools(), tc.query)
		assert.Equal(t, models.ConfidenceMedium, plan.Metadata.PlanConfidence)
	}
}

func TestCreatePlan_LLMSourced(t *testing.T) {
	p := testPlanner(t, &llm.MockClient{})
	plan, err := p.CreatePlan(context.Background(), "What is the current state of fusion research?")
	require.NoError(t, err)
	assertWellFormed(t, plan)
	assert.Equal(t, models.ConfidenceHigh, plan.Metadata.PlanConfidence)
	assert.Equal(t, "What is the current state of fusion research?", plan.Query)
}

func TestCreatePlanWithFeedback_IncrementsRevision(t *testing.T) {
	p := testPlanner(t, &llm.MockClient{})
	first, err := p.CreatePlan(context.Background(), "What is fusion?")
	require.NoError(t, err)
	require.Equal(t, 0, first.RevisionNumber)

	report := &models.VerificationReport{
		OverallScore: 55,
		Issues:       []string{"pipeline too thin"},
		SuggestedCorrections: []models.Correction{
			{StepID: "S1", Type: "add", Description: "add a news source"},
		},
	}
	revised, err := p.CreatePlanWithFeedback(context.Background(), "What is fusion?", first, report)
	require.NoError(t, err)
	assertWellFormed(t, revised)
	assert.Equal(t, 1, revised.RevisionNumber)
}

func TestFinalize_NormalizesAliasesAndDropsUnknownTools(t *testing.T) {
	p := testPlanner(t, nil)
	raw := &models.Plan{
		Query: "history of aviation",
		Pipeline: []models.Step{
			{Tool: "search_tool", Purpose: "look up background on aviation"},
			{Tool: "time_machine", Purpose: "impossible"},
			{Tool: "summarize", Purpose: "wrap it up for the reader"},
		},
	}
	plan := p.finalize(raw, false)
	assertWellFormed(t, plan)
	assert.Equal(t, []string{tools.WikipediaSearch, tools.QAEngine}, plan.Tools())
}

func TestFinalize_EmptyPipelineBecomesSynthesisOnly(t *testing.T) {
	p := testPlanner(t, nil)
	plan := p.finalize(&models.Plan{
		Query:    "anything at all",
		Pipeline: []models.Step{{Tool: "nonexistent", Purpose: "nope"}},
	}, false)
	require.Len(t, plan.Pipeline, 1)
	assert.Equal(t, tools.SynthesisTool, plan.Pipeline[0].Tool)
	assert.Equal(t, "anything at all", plan.Pipeline[0].Input)
	assert.Equal(t, "short", plan.Metadata.EstimatedDuration)
}

func TestFinalize_MisplacedSynthesisMovedLast(t *testing.T) {
	p := testPlanner(t, nil)
	plan := p.finalize(&models.Plan{
		Query: "report on solar adoption",
		Pipeline: []models.Step{
			{Tool: tools.QAEngine, Purpose: "answer from the gathered evidence"},
			{Tool: tools.WikipediaSearch, Purpose: "background on solar energy"},
			{Tool: tools.NewsFetcher, Purpose: "recent solar market coverage"},
		},
	}, false)
	assertWellFormed(t, plan)
	assert.Equal(t, []string{tools.WikipediaSearch, tools.NewsFetcher, tools.QAEngine}, plan.Tools())
	// the planner's own synthesis wording survives the move
	assert.Equal(t, "answer from the gathered evidence", plan.Pipeline[2].Purpose)
}

func TestFinalize_EstimatedDuration(t *testing.T) {
	p := testPlanner(t, nil)
	mk := func(n int) *models.Plan {
		plan := &models.Plan{Query: "q"}
		for i := 0; i < n; i++ {
			plan.Pipeline = append(plan.Pipeline, models.Step{
				Tool: tools.WikipediaSearch, Purpose: "gather background facts",
			})
		}
		return p.finalize(plan, false)
	}
	assert.Equal(t, "short", mk(1).Metadata.EstimatedDuration)  // 1 + synthesis
	assert.Equal(t, "medium", mk(3).Metadata.EstimatedDuration) // 3 + synthesis
	assert.Equal(t, "long", mk(4).Metadata.EstimatedDuration)   // 4 + synthesis
}

func TestCreatePlan_AdaptsStoredPattern(t *testing.T) {
	store := patterns.NewStore(t.TempDir())
	prior := "What is machine learning?"
	require.NoError(t, store.Append(models.SuccessPattern{
		Timestamp:     time.Now(),
		Query:         prior,
		QueryFeatures: patterns.ExtractFeatures(prior),
		Plan: models.PlanSnapshot{
			Pipeline: []models.Step{
				{StepID: "S1", Tool: tools.WikipediaSearch, Purpose: "background on the topic", Input: prior},
				{StepID: "S2", Tool: tools.ArxivSummarizer, Purpose: "recent academic findings", Input: prior},
				{StepID: "S3", Tool: tools.QAEngine, Purpose: "synthesize the final answer", Input: prior},
			},
			ToolsUsed: []string{tools.WikipediaSearch, tools.ArxivSummarizer, tools.QAEngine},
		},
		Score: 90,
	}))
	p := NewPlanner(nil, testRegistry(), store, zap.NewNop())

	query := "What is deep learning?"
	plan, err := p.CreatePlan(context.Background(), query)
	require.NoError(t, err)
	assertWellFormed(t, plan)
	assert.Equal(t, []string{tools.WikipediaSearch, tools.ArxivSummarizer, tools.QAEngine}, plan.Tools())
	for _, s := range plan.Pipeline {
		assert.Equal(t, query, s.Input, "adapted steps carry the new query")
	}
}
