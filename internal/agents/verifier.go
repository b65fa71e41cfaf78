package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"queryforge/internal/models"
	"queryforge/internal/providers/llm"
	"queryforge/internal/tools"
)

// Verdict thresholds on the 0-100 overall score.
const (
	approveScore = 80
	lenientScore = 60 // approve here only with zero issues
)

// Verifier scores plans adversarially before any execution budget is spent.
// The model path is preferred; the rule-based path always works.
type Verifier struct {
	Client   llm.Client
	Registry *tools.Registry
	Log      *zap.Logger
}

func NewVerifier(client llm.Client, reg *tools.Registry, log *zap.Logger) *Verifier {
	return &Verifier{Client: client, Registry: reg, Log: log}
}

// Verify scores a plan across the five dimensions. OverallScore is always
// recomputed from the breakdown, whatever a model claims.
func (v *Verifier) Verify(ctx context.Context, plan *models.Plan) *models.VerificationReport {
	if v.Client != nil {
		if report, err := v.llmVerify(ctx, plan); err == nil {
			return report
		} else {
			v.Log.Warn("model verification failed, using rule-based scoring", zap.Error(err))
		}
	}
	return v.ruleVerify(plan)
}

const verifySystemPrompt = "You are a skeptical plan reviewer. Score harshly but fairly. " +
	"Reply with strict JSON only, no prose, no markdown fences."

func (v *Verifier) llmVerify(ctx context.Context, plan *models.Plan) (*models.VerificationReport, error) {
	planJSON, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Review this tool pipeline plan:\n%s\n\nAvailable tools:\n", planJSON)
	for _, e := range v.Registry.Catalogue() {
		fmt.Fprintf(&b, "- %s: %s\n", e.Name, e.Description)
	}
	b.WriteString("\nScore each dimension 0-20: relevance, completeness, logical_flow, tool_suitability, redundancy_control.\n" +
		"Reply with strict JSON: {\"final_verdict\": \"approve\" or \"revise\", \"scoring_breakdown\": {dimension: points}, " +
		"\"issues\": [...], \"suggested_corrections\": [{\"step_id\", \"type\", \"description\"}], " +
		"\"quality_summary\": \"...\", \"confidence\": \"high/medium/low\"}")

	var report models.VerificationReport
	err = llm.CompleteJSON(ctx, v.Client, llm.Request{
		Prompt:       b.String(),
		SystemPrompt: verifySystemPrompt,
		MaxTokens:    800,
	}, &report)
	if err != nil {
		return nil, err
	}
	if len(report.ScoringBreakdown) == 0 {
		return nil, fmt.Errorf("model report missing scoring breakdown")
	}
	v.settle(&report)
	report.Method = "llm"
	return &report, nil
}

// nonInfoTools synthesize or format output rather than gathering evidence;
// every other tool counts toward completeness as an information source.
var nonInfoTools = map[string]bool{
	tools.QAEngine:       true,
	tools.DataPlotter:    true,
	tools.DocumentWriter: true,
}

func (v *Verifier) ruleVerify(plan *models.Plan) *models.VerificationReport {
	report := &models.VerificationReport{
		ScoringBreakdown: map[string]int{},
		Issues:           []string{},
	}
	addIssue := func(format string, args ...any) {
		report.Issues = append(report.Issues, fmt.Sprintf(format, args...))
	}

	// An empty pipeline can do no work: every step-judging dimension scores
	// zero, landing the plan far below any approval threshold.
	if len(plan.Pipeline) == 0 {
		addIssue("plan has no pipeline steps")
		for _, dim := range models.ScoringDimensions {
			report.ScoringBreakdown[dim] = 0
		}
		report.ScoringBreakdown[models.DimRedundancyControl] = 20
		v.settle(report)
		report.Method = "rule-based"
		report.QualitySummary = "Rule-based review: the plan has no steps to execute."
		report.Confidence = models.ConfidenceHigh
		return report
	}

	// relevance: vague purposes and synthesis-only answers to real questions.
	relevance := 20
	for _, s := range plan.Pipeline {
		purpose := strings.ToLower(s.Purpose)
		if len(s.Purpose) < 15 || strings.Contains(purpose, "tbd") {
			relevance -= 4
			addIssue("step %s has a vague or placeholder purpose", s.StepID)
		}
	}
	if len(plan.Pipeline) == 1 && plan.Pipeline[0].Tool == tools.SynthesisTool &&
		len(strings.Fields(plan.Query)) > 8 {
		relevance -= 10
		addIssue("a non-trivial query is answered by a synthesis-only pipeline")
	}
	report.ScoringBreakdown[models.DimRelevance] = clampDim(relevance)

	// completeness: distinct evidence sources ahead of synthesis.
	distinct := map[string]bool{}
	for _, s := range plan.Pipeline {
		if !nonInfoTools[s.Tool] {
			distinct[s.Tool] = true
		}
	}
	completeness := 5
	switch n := len(distinct); {
	case n >= 3:
		completeness = 20
	case n == 2:
		completeness = 15
	case n == 1:
		completeness = 10
	}
	if len(plan.ClarificationsNeeded) > 0 {
		completeness -= 3
	}
	report.ScoringBreakdown[models.DimCompleteness] = clampDim(completeness)

	// logical_flow: dependency sanity and synthesis placement.
	flow := 20
	position := map[string]int{}
	for i, s := range plan.Pipeline {
		position[s.StepID] = i
	}
	for i, s := range plan.Pipeline {
		for _, dep := range s.Dependencies {
			j, known := position[dep]
			if known && j >= i {
				flow -= 5
				addIssue("step %s depends on itself or a later step", s.StepID)
			}
		}
	}
	if n := len(plan.Pipeline); n == 0 || plan.Pipeline[n-1].Tool != tools.SynthesisTool {
		flow -= 10
		addIssue("pipeline does not end with the synthesis tool")
	}
	report.ScoringBreakdown[models.DimLogicalFlow] = clampDim(flow)

	// tool_suitability: registry membership and recovery paths.
	suitability := 20
	for _, s := range plan.Pipeline {
		if !v.Registry.Has(s.Tool) {
			suitability -= 5
			addIssue("step %s uses unavailable tool %q", s.StepID, s.Tool)
			report.SuggestedCorrections = append(report.SuggestedCorrections, models.Correction{
				StepID:      s.StepID,
				Type:        "modify",
				Description: fmt.Sprintf("replace %q with a registered tool", s.Tool),
			})
		}
		if len(s.FallbackTools) == 0 && s.Tool != tools.SynthesisTool {
			suitability -= 2
		}
	}
	report.ScoringBreakdown[models.DimToolSuitability] = clampDim(suitability)

	// redundancy_control: repeats beyond synthesis and background lookups.
	redundancy := 20
	seen := map[string]bool{}
	for _, s := range plan.Pipeline {
		if s.Tool == tools.SynthesisTool || s.Tool == tools.BackgroundTool {
			continue
		}
		if seen[s.Tool] {
			redundancy -= 5
			addIssue("tool %q appears more than once", s.Tool)
		}
		seen[s.Tool] = true
	}
	report.ScoringBreakdown[models.DimRedundancyControl] = clampDim(redundancy)

	v.settle(report)
	report.Method = "rule-based"
	if report.QualitySummary == "" {
		report.QualitySummary = fmt.Sprintf("Rule-based review: %d/100 across %d steps, %d issue(s).",
			report.OverallScore, len(plan.Pipeline), len(report.Issues))
	}
	if report.Confidence == "" {
		report.Confidence = models.ConfidenceMedium
	}
	return report
}

// settle recomputes the derived fields every report must agree on: overall
// score from the breakdown, then verdict and risk from the score.
func (v *Verifier) settle(report *models.VerificationReport) {
	total := 0
	for _, dim := range models.ScoringDimensions {
		pts := clampDim(report.ScoringBreakdown[dim])
		report.ScoringBreakdown[dim] = pts
		total += pts
	}
	report.OverallScore = total

	switch {
	case total >= approveScore:
		report.FinalVerdict = models.VerdictApprove
		report.RiskLevel = "low"
	case total >= lenientScore:
		report.RiskLevel = "medium"
		if len(report.Issues) == 0 {
			report.FinalVerdict = models.VerdictApprove
		} else {
			report.FinalVerdict = models.VerdictRevise
		}
	default:
		report.FinalVerdict = models.VerdictRevise
		report.RiskLevel = "high"
	}
	report.VerifiedAt = time.Now()
}

func clampDim(pts int) int {
	if pts < 0 {
		return 0
	}
	if pts > 20 {
		return 20
	}
	return pts
}

// substitutionAffinity is the static fallback table consulted when no model
// is available to recommend a replacement tool.
var substitutionAffinity = map[string]string{
	tools.ArxivSummarizer: tools.WikipediaSearch,
	tools.NewsFetcher:     tools.WikipediaSearch,
	tools.DataPlotter:     tools.QAEngine,
	tools.DocumentWriter:  tools.QAEngine,
	tools.PDFParser:       tools.WikipediaSearch,
}

// SuggestToolSubstitution proposes a replacement for a step whose tool keeps
// failing, constrained to the available candidates. Returns "" when nothing
// suitable remains.
func (v *Verifier) SuggestToolSubstitution(ctx context.Context, failed models.Step, available []string) string {
	candidates := make([]string, 0, len(available))
	for _, name := range available {
		if name != failed.Tool {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return ""
	}

	if v.Client != nil {
		if pick := v.llmSubstitution(ctx, failed, candidates); pick != "" {
			return pick
		}
	}
	if sub, ok := substitutionAffinity[failed.Tool]; ok {
		for _, c := range candidates {
			if c == sub {
				return sub
			}
		}
	}
	return candidates[0]
}

func (v *Verifier) llmSubstitution(ctx context.Context, failed models.Step, candidates []string) string {
	prompt := fmt.Sprintf(
		"Tool %q failed for step %q (purpose: %s). Pick the best replacement from exactly this list: %s.\n"+
			"Reply with strict JSON: {\"tool\": \"name\"}.",
		failed.Tool, failed.StepID, failed.Purpose, strings.Join(candidates, ", "))
	var reply struct {
		Tool string `json:"tool"`
	}
	if err := llm.CompleteJSON(ctx, v.Client, llm.Request{Prompt: prompt, MaxTokens: 100}, &reply); err != nil {
		v.Log.Debug("substitution suggestion failed", zap.Error(err))
		return ""
	}
	pick := tools.Canonical(strings.TrimSpace(strings.ToLower(reply.Tool)))
	for _, c := range candidates {
		if c == pick {
			return pick
		}
	}
	return ""
}
