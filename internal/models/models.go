package models

import (
	"strings"
	"time"
	"unicode"
)

// Route is the classifier's decision for how a query is answered.
type Route string

const (
	RouteDirect   Route = "direct"
	RoutePipeline Route = "pipeline"
)

// QueryClassification is produced once per query and never mutated.
type QueryClassification struct {
	Route           Route          `json:"route"`
	Confidence      float64        `json:"confidence"`
	Rationale       string         `json:"rationale"`
	Signals         map[string]any `json:"signals,omitempty"`
	LLMBackstopUsed bool           `json:"llm_backstop_used"`
}

// Step is one tool invocation inside a Plan. Dependencies are informational
// only: execution is always strict pipeline order.
type Step struct {
	StepID         string   `json:"step_id"`
	Tool           string   `json:"tool"`
	Purpose        string   `json:"purpose"`
	Input          string   `json:"input"`
	ExpectedOutput string   `json:"expected_output,omitempty"`
	Dependencies   []string `json:"dependencies,omitempty"`
	FallbackTools  []string `json:"fallback_tools,omitempty"`
	MaxRetries     int      `json:"max_retries"`
}

// ToolRationale explains why the planner picked a tool.
type ToolRationale struct {
	Tool          string `json:"tool"`
	Justification string `json:"justification"`
	Confidence    string `json:"confidence"`
}

type PlanMetadata struct {
	EstimatedDuration string `json:"estimated_duration"`
	PlanConfidence    string `json:"plan_confidence"`
}

// Plan is an ordered pipeline of steps plus the planner's reasoning. A plan is
// never edited in place: revisions are new plans with RevisionNumber+1.
type Plan struct {
	Query                  string          `json:"query"`
	AnalysisSummary        string          `json:"analysis_summary"`
	ClarificationsNeeded   []string        `json:"clarifications_needed,omitempty"`
	ToolSelectionRationale []ToolRationale `json:"tool_selection_rationale,omitempty"`
	Pipeline               []Step          `json:"pipeline"`
	FinalOutputPlan        string          `json:"final_output_plan"`
	Metadata               PlanMetadata    `json:"metadata"`
	RevisionNumber         int             `json:"revision_number"`
	Notes                  []string        `json:"notes,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
}

// Tools returns the tool names in pipeline order.
func (p *Plan) Tools() []string {
	out := make([]string, 0, len(p.Pipeline))
	for _, s := range p.Pipeline {
		out = append(out, s.Tool)
	}
	return out
}

// Verdict is the verifier's decision.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictRevise  Verdict = "revise"
)

// Scoring dimensions, 0-20 points each.
const (
	DimRelevance         = "relevance"
	DimCompleteness      = "completeness"
	DimLogicalFlow       = "logical_flow"
	DimToolSuitability   = "tool_suitability"
	DimRedundancyControl = "redundancy_control"
)

var ScoringDimensions = []string{
	DimRelevance,
	DimCompleteness,
	DimLogicalFlow,
	DimToolSuitability,
	DimRedundancyControl,
}

// Correction is a suggested plan edit from the verifier.
type Correction struct {
	StepID      string `json:"step_id"`
	Type        string `json:"type"` // add, remove, modify
	Description string `json:"description"`
}

// VerificationReport scores a plan across five weighted dimensions.
// OverallScore always equals the sum of ScoringBreakdown.
type VerificationReport struct {
	FinalVerdict         Verdict        `json:"final_verdict"`
	OverallScore         int            `json:"overall_score"`
	ScoringBreakdown     map[string]int `json:"scoring_breakdown"`
	Issues               []string       `json:"issues"`
	SuggestedCorrections []Correction   `json:"suggested_corrections"`
	QualitySummary       string         `json:"quality_summary"`
	Confidence           string         `json:"confidence"`
	RiskLevel            string         `json:"risk_level"`
	NextActions          []string       `json:"next_actions,omitempty"`
	VerifiedAt           time.Time      `json:"verified_at"`
	Method               string         `json:"verification_method"`
}

// StepStatus is the terminal status of an executed step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
)

// ExecutionResult records one executed step. Input holds the original,
// pre-context-injection input. Never mutated after creation.
type ExecutionResult struct {
	StepID        string        `json:"step_id"`
	Tool          string        `json:"tool"`
	Status        StepStatus    `json:"status"`
	Output        string        `json:"output,omitempty"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
	Attempts      int           `json:"attempts"`
	Input         string        `json:"input"`
}

// QueryFeatures are the coarse features used for pattern similarity.
type QueryFeatures struct {
	Length      int      `json:"length"`
	HasQuestion bool     `json:"has_question"`
	Type        string   `json:"type"`
	Keywords    []string `json:"keywords"`
}

type PlanSnapshot struct {
	Pipeline  []Step   `json:"pipeline"`
	ToolsUsed []string `json:"tools_used"`
}

// SuccessPattern is an append-only record of a plan that worked.
type SuccessPattern struct {
	Timestamp     time.Time     `json:"timestamp"`
	Query         string        `json:"query"`
	QueryFeatures QueryFeatures `json:"query_features"`
	Plan          PlanSnapshot  `json:"plan_snapshot"`
	Score         int           `json:"score"`
}

// Response origin and confidence labels.
const (
	OriginToolExecution = "tool_execution"
	OriginLLMFallback   = "llm_fallback"

	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// ResponseMetadata distinguishes confidently-sourced answers from fallback ones.
type ResponseMetadata struct {
	Origin            string   `json:"response_origin"`
	FactualConfidence string   `json:"factual_confidence"`
	ToolsUsed         []string `json:"tools_used"`
	Disclaimer        string   `json:"disclaimer,omitempty"`
}

// Session status values.
const (
	StatusCompleted       = "completed"
	StatusCompletedDirect = "completed_direct"
	StatusFallback        = "completed_with_fallback"
	StatusRejected        = "rejected_by_verifier"
)

// SessionRecord is the write-once audit record for one completed query.
type SessionRecord struct {
	SessionID        string              `json:"session_id"`
	Query            string              `json:"query"`
	Classification   QueryClassification `json:"classification"`
	Plan             *Plan               `json:"plan,omitempty"`
	PlanHistory      []Plan              `json:"plan_history,omitempty"`
	Verification     *VerificationReport `json:"verification,omitempty"`
	ExecutionResults []ExecutionResult   `json:"execution_results,omitempty"`
	FinalResponse    string              `json:"final_response"`
	Status           string              `json:"status"`
	Metadata         ResponseMetadata    `json:"response_metadata"`
	StartedAt        time.Time           `json:"started_at"`
	Duration         time.Duration       `json:"duration"`
}

// NormalizeQuery trims surrounding whitespace and strips control characters.
func NormalizeQuery(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r == '\n' || r == '\t' {
			b.WriteRune(' ')
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
