// Package agents holds the planner, verifier, and executor that the
// orchestrator plays against each other for every pipeline-routed query.
package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"queryforge/internal/models"
	"queryforge/internal/patterns"
	"queryforge/internal/providers/llm"
	"queryforge/internal/tools"
)

// adaptThreshold is the similarity above which a stored pattern is reused
// directly instead of asking the model for a fresh plan.
const adaptThreshold = 0.7

// Planner produces plans for a query: adapted from a stored pattern, drafted
// by the model, or assembled from a keyword template, in that order.
type Planner struct {
	Client   llm.Client
	Registry *tools.Registry
	Patterns *patterns.Store
	Log      *zap.Logger
}

func NewPlanner(client llm.Client, reg *tools.Registry, store *patterns.Store, log *zap.Logger) *Planner {
	return &Planner{Client: client, Registry: reg, Patterns: store, Log: log}
}

// CreatePlan drafts the first plan for a query.
func (p *Planner) CreatePlan(ctx context.Context, query string) (*models.Plan, error) {
	return p.plan(ctx, query, nil, nil)
}

// CreatePlanWithFeedback drafts a revision incorporating the verifier's
// findings on the previous plan.
func (p *Planner) CreatePlanWithFeedback(ctx context.Context, query string, prev *models.Plan, report *models.VerificationReport) (*models.Plan, error) {
	return p.plan(ctx, query, prev, report)
}

func (p *Planner) plan(ctx context.Context, query string, prev *models.Plan, report *models.VerificationReport) (*models.Plan, error) {
	similar, err := p.Patterns.FindSimilar(query, 2)
	if err != nil {
		p.Log.Warn("pattern lookup failed", zap.Error(err))
	}

	// First attempts can skip the model entirely when a near-identical
	// pattern exists. Revisions never reuse a pattern: the verifier already
	// rejected something shaped like it.
	if prev == nil && len(similar) > 0 && similar[0].Similarity > adaptThreshold {
		p.Log.Info("adapting stored pattern",
			zap.Float64("similarity", similar[0].Similarity),
			zap.Int("score", similar[0].Score))
		return p.finalize(p.adaptPattern(query, similar[0]), false), nil
	}

	if p.Client != nil {
		plan, err := p.llmPlan(ctx, query, similar, prev, report)
		if err == nil {
			return p.finalize(plan, true), nil
		}
		p.Log.Warn("model planning failed, using template", zap.Error(err))
	}

	return p.finalize(p.templatePlan(query), false), nil
}

// adaptPattern copies a stored pipeline onto the new query.
func (p *Planner) adaptPattern(query string, m patterns.Match) *models.Plan {
	steps := make([]models.Step, len(m.Plan.Pipeline))
	copy(steps, m.Plan.Pipeline)
	for i := range steps {
		steps[i].Input = query
		steps[i].StepID = ""
		steps[i].Dependencies = nil
	}
	return &models.Plan{
		Query:           query,
		AnalysisSummary: fmt.Sprintf("Adapted from a prior successful plan (score %d).", m.Score),
		Pipeline:        steps,
		FinalOutputPlan: "Synthesized answer from the adapted pipeline.",
	}
}

const planSystemPrompt = "You are a planning agent. You design tool pipelines that gather evidence " +
	"before synthesizing an answer. Reply with strict JSON only, no prose, no markdown fences."

func (p *Planner) llmPlan(ctx context.Context, query string, similar []patterns.Match, prev *models.Plan, report *models.VerificationReport) (*models.Plan, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Design a tool pipeline to answer this query: %q\n\nAvailable tools:\n", query)
	for _, e := range p.Registry.Catalogue() {
		fmt.Fprintf(&b, "- %s: %s\n", e.Name, e.Description)
	}

	for _, m := range similar {
		if m.Similarity <= 0 {
			continue
		}
		fmt.Fprintf(&b, "\nPrior successful plan (similarity %.2f, score %d) for %q used tools: %s\n",
			m.Similarity, m.Score, m.Query, strings.Join(m.Plan.ToolsUsed, ", "))
	}

	if prev != nil && report != nil {
		fmt.Fprintf(&b, "\nYour previous plan (score %d/100) was rejected. Its pipeline was:\n", report.OverallScore)
		for _, s := range prev.Pipeline {
			fmt.Fprintf(&b, "- %s (%s): %s\n", s.StepID, s.Tool, s.Purpose)
		}
		if len(report.Issues) > 0 {
			fmt.Fprintf(&b, "Issues: %s\n", strings.Join(report.Issues, "; "))
		}
		for _, c := range report.SuggestedCorrections {
			fmt.Fprintf(&b, "Suggested correction (%s, %s): %s\n", c.Type, c.StepID, c.Description)
		}
		b.WriteString("Produce a revised plan that addresses every issue.\n")
	}

	b.WriteString("\nReply with strict JSON with keys: \"query\", \"analysis_summary\", \"clarifications_needed\", " +
		"\"tool_selection_rationale\", \"pipeline\", \"final_output_plan\", \"metadata\". " +
		"Each pipeline step needs: step_id, tool, purpose, input, expected_output, dependencies, fallback_tools.")

	var plan models.Plan
	err := llm.CompleteJSON(ctx, p.Client, llm.Request{
		Prompt:       b.String(),
		SystemPrompt: planSystemPrompt,
		MaxTokens:    1500,
	}, &plan)
	if err != nil {
		return nil, err
	}
	if len(plan.Pipeline) == 0 {
		return nil, fmt.Errorf("model returned a plan with no steps")
	}
	plan.Query = query
	if prev != nil {
		plan.RevisionNumber = prev.RevisionNumber + 1
	}
	return &plan, nil
}

// templates are the deterministic fallback pipelines, keyed by intent.
var templates = map[string][]string{
	"research": {tools.WikipediaSearch, tools.NewsFetcher, tools.ArxivSummarizer, tools.QAEngine},
	"summary":  {tools.WikipediaSearch, tools.QAEngine},
	"analysis": {tools.NewsFetcher, tools.SentimentAnalyzer, tools.DataPlotter, tools.QAEngine},
	"report":   {tools.WikipediaSearch, tools.NewsFetcher, tools.DocumentWriter, tools.QAEngine},
}

var templateTriggers = []struct {
	name     string
	keywords []string
}{
	{"research", []string{"research", "explore", "investigate"}},
	{"summary", []string{"summarize", "summarise", "overview"}},
	{"analysis", []string{"analyze", "analyse", "sentiment", "trend"}},
	{"report", []string{"report", "document", "write"}},
}

// templatePlan assembles a fixed pipeline from intent keywords in the query.
func (p *Planner) templatePlan(query string) *models.Plan {
	lower := strings.ToLower(query)
	name := "research"
	for _, t := range templateTriggers {
		matched := false
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				matched = true
				break
			}
		}
		if matched {
			name = t.name
			break
		}
	}

	var steps []models.Step
	for _, tool := range templates[name] {
		steps = append(steps, models.Step{
			Tool:    tool,
			Purpose: templatePurpose(tool),
			Input:   query,
		})
	}
	return &models.Plan{
		Query:           query,
		AnalysisSummary: fmt.Sprintf("Template plan (%s) selected from query keywords.", name),
		Pipeline:        steps,
		FinalOutputPlan: "Synthesized answer from gathered context.",
	}
}

func templatePurpose(tool string) string {
	switch tool {
	case tools.WikipediaSearch:
		return "Gather background knowledge on the topic"
	case tools.ArxivSummarizer:
		return "Collect recent academic findings on the topic"
	case tools.NewsFetcher:
		return "Collect recent news coverage of the topic"
	case tools.SentimentAnalyzer:
		return "Score the sentiment of the gathered coverage"
	case tools.DataPlotter:
		return "Chart the gathered figures for the report"
	case tools.DocumentWriter:
		return "Write the gathered findings into a structured report"
	case tools.QAEngine:
		return "Synthesize the final answer from accumulated context"
	default:
		return "Contribute evidence toward the final answer"
	}
}

// defaultFallbacks mirrors the static substitution affinities so template and
// model plans alike carry a recovery path per step.
var defaultFallbacks = map[string][]string{
	tools.ArxivSummarizer: {tools.WikipediaSearch},
	tools.NewsFetcher:     {tools.WikipediaSearch},
	tools.DataPlotter:     {tools.QAEngine},
	tools.DocumentWriter:  {tools.QAEngine},
	tools.PDFParser:       {tools.WikipediaSearch},
}

// finalize applies the invariants every plan must satisfy regardless of how
// it was produced: canonical tool names only, sequential step ids, linear
// default dependencies, and the synthesis tool exactly once, last.
func (p *Planner) finalize(plan *models.Plan, llmSourced bool) *models.Plan {
	synthesis := models.Step{
		Tool:    tools.SynthesisTool,
		Purpose: "Synthesize the final answer from accumulated context",
		Input:   plan.Query,
	}
	kept := plan.Pipeline[:0]
	for _, s := range plan.Pipeline {
		s.Tool = tools.Canonical(strings.TrimSpace(strings.ToLower(s.Tool)))
		if !p.Registry.Has(s.Tool) {
			p.Log.Debug("dropping step with unknown tool", zap.String("tool", s.Tool))
			continue
		}
		if s.Tool == tools.SynthesisTool {
			synthesis = s // keep the planner's wording, re-slotted last
			continue
		}
		kept = append(kept, s)
	}
	kept = append(kept, synthesis)

	for i := range kept {
		kept[i].StepID = fmt.Sprintf("S%d", i+1)
		if kept[i].Input == "" {
			kept[i].Input = plan.Query
		}
		if len(kept[i].Dependencies) == 0 && i > 0 {
			kept[i].Dependencies = []string{kept[i-1].StepID}
		}
		if kept[i].MaxRetries <= 0 {
			kept[i].MaxRetries = 2
		}
		if len(kept[i].FallbackTools) == 0 {
			kept[i].FallbackTools = defaultFallbacks[kept[i].Tool]
		}
	}
	plan.Pipeline = kept

	plan.Metadata.PlanConfidence = models.ConfidenceMedium
	if llmSourced {
		plan.Metadata.PlanConfidence = models.ConfidenceHigh
	}
	switch n := len(kept); {
	case n <= 2:
		plan.Metadata.EstimatedDuration = "short"
	case n <= 4:
		plan.Metadata.EstimatedDuration = "medium"
	default:
		plan.Metadata.EstimatedDuration = "long"
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now()
	}
	return plan
}
