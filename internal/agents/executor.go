package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"queryforge/internal/models"
	"queryforge/internal/providers/llm"
	"queryforge/internal/tools"
)

// Retry backoff: starts at one second, doubles per attempt, capped.
const (
	backoffStart = time.Second
	backoffCap   = 8 * time.Second
)

// Substituter recommends a replacement tool for a failing step.
type Substituter interface {
	SuggestToolSubstitution(ctx context.Context, failed models.Step, available []string) string
}

// Executor runs pipelines in strict order with per-step retries, one-shot
// tool substitution, context accumulation into the synthesis step, and a
// bounded whole-pipeline self-correction pass.
type Executor struct {
	Registry    *tools.Registry
	Substituter Substituter
	Client      llm.Client
	Log         *zap.Logger

	// sleep is swappable so tests do not pay real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewExecutor(reg *tools.Registry, sub Substituter, client llm.Client, log *zap.Logger) *Executor {
	return &Executor{
		Registry:    reg,
		Substituter: sub,
		Client:      client,
		Log:         log,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute runs every step in pipeline order and returns one result per step.
func (e *Executor) Execute(ctx context.Context, plan *models.Plan) []models.ExecutionResult {
	results := make([]models.ExecutionResult, 0, len(plan.Pipeline))
	for _, step := range plan.Pipeline {
		if err := ctx.Err(); err != nil {
			results = append(results, models.ExecutionResult{
				StepID: step.StepID,
				Tool:   step.Tool,
				Status: models.StepError,
				Error:  err.Error(),
				Input:  step.Input,
			})
			continue
		}
		results = append(results, e.runStep(ctx, step, results))
	}
	return results
}

// runStep drives one step through retries and at most one substitution.
func (e *Executor) runStep(ctx context.Context, step models.Step, prior []models.ExecutionResult) models.ExecutionResult {
	input := step.Input
	if step.Tool == tools.SynthesisTool {
		input = injectContext(step.Input, prior)
	}

	result := e.attempt(ctx, step, input)
	if result.Status == models.StepSuccess {
		return result
	}

	// One substitution, fresh retry budget, never chained.
	if e.Substituter != nil {
		sub := e.Substituter.SuggestToolSubstitution(ctx, step, e.Registry.Names())
		if sub != "" && sub != step.Tool {
			e.Log.Info("substituting tool",
				zap.String("step", step.StepID),
				zap.String("from", step.Tool),
				zap.String("to", sub))
			substituted := step
			substituted.Tool = sub
			subInput := step.Input
			if sub == tools.SynthesisTool {
				subInput = injectContext(step.Input, prior)
			}
			retried := e.attempt(ctx, substituted, subInput)
			retried.Attempts += result.Attempts
			retried.Input = step.Input
			return retried
		}
	}
	return result
}

// attempt runs a step up to its retry budget against one fixed tool.
func (e *Executor) attempt(ctx context.Context, step models.Step, input string) models.ExecutionResult {
	maxRetries := step.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	result := models.ExecutionResult{
		StepID: step.StepID,
		Tool:   step.Tool,
		Status: models.StepError,
		Input:  step.Input,
	}

	backoff := backoffStart
	for i := 0; i < maxRetries; i++ {
		result.Attempts++
		start := time.Now()
		output, err := e.Registry.Run(ctx, step.Tool, input)
		result.ExecutionTime += time.Since(start)

		if err == nil && strings.TrimSpace(output) == "" {
			err = fmt.Errorf("tool %q returned empty output", step.Tool)
		}
		if err == nil {
			result.Status = models.StepSuccess
			result.Output = output
			result.Error = ""
			return result
		}
		result.Error = err.Error()
		e.Log.Warn("step attempt failed",
			zap.String("step", step.StepID),
			zap.String("tool", step.Tool),
			zap.Int("attempt", result.Attempts),
			zap.Error(err))

		if i < maxRetries-1 {
			if e.sleep(ctx, backoff) != nil {
				result.Error = ctx.Err().Error()
				return result
			}
			backoff *= 2
			if backoff > backoffCap {
				backoff = backoffCap
			}
		}
	}
	return result
}

// injectContext appends a context block of prior successful outputs to the
// synthesis step's input. Pure: calling it on its own output is a no-op
// because the original input is passed in each time.
func injectContext(input string, prior []models.ExecutionResult) string {
	var parts []string
	for _, r := range prior {
		if r.Status != models.StepSuccess {
			continue
		}
		if out := strings.TrimSpace(r.Output); len(out) > 10 {
			parts = append(parts, fmt.Sprintf("[%s]: %s", r.Tool, out))
		}
	}
	if len(parts) == 0 {
		return input
	}
	return input + "\n\nContext:\n" + strings.Join(parts, "\n\n")
}

// criticalTools survive self-correction even after failing.
var criticalTools = map[string]bool{
	tools.SynthesisTool:  true,
	tools.BackgroundTool: true,
}

// ExecuteWithSelfCorrection runs the pipeline, and on partial failure rewrites
// the plan (swap unavailable tools for static fallbacks, drop failed
// non-critical steps, keep synthesis last) and reruns, at most maxReruns
// times. Returns the final results and the plan actually executed.
func (e *Executor) ExecuteWithSelfCorrection(ctx context.Context, plan *models.Plan, maxReruns int) ([]models.ExecutionResult, *models.Plan) {
	current := plan
	results := e.Execute(ctx, current)
	for rerun := 0; rerun < maxReruns; rerun++ {
		failed := failedResults(results)
		if len(failed) == 0 || ctx.Err() != nil {
			break
		}
		corrected, changed := correctPlan(current, failed)
		if !changed {
			break
		}
		e.Log.Warn("self-correcting pipeline",
			zap.Int("rerun", rerun+1),
			zap.Int("failed_steps", len(failed)))
		current = corrected
		results = e.Execute(ctx, current)
	}
	return results, current
}

func failedResults(results []models.ExecutionResult) map[string]models.ExecutionResult {
	failed := map[string]models.ExecutionResult{}
	for _, r := range results {
		if r.Status == models.StepError {
			failed[r.StepID] = r
		}
	}
	return failed
}

// correctPlan builds the rewritten plan for one self-correction rerun.
func correctPlan(plan *models.Plan, failed map[string]models.ExecutionResult) (*models.Plan, bool) {
	changed := false
	var pipeline []models.Step
	for _, step := range plan.Pipeline {
		failure, didFail := failed[step.StepID]
		if !didFail {
			pipeline = append(pipeline, step)
			continue
		}
		if strings.Contains(strings.ToLower(failure.Error), "not available") {
			if sub, ok := substitutionAffinity[step.Tool]; ok {
				step.Tool = sub
				pipeline = append(pipeline, step)
				changed = true
				continue
			}
		}
		if criticalTools[step.Tool] {
			pipeline = append(pipeline, step)
			continue
		}
		changed = true // dropped
	}

	hasSynthesis := false
	for _, s := range pipeline {
		if s.Tool == tools.SynthesisTool {
			hasSynthesis = true
			break
		}
	}
	if !hasSynthesis {
		pipeline = append(pipeline, models.Step{
			StepID:  fmt.Sprintf("S%d", len(pipeline)+1),
			Tool:    tools.SynthesisTool,
			Purpose: "Synthesize answer from available data",
			Input:   plan.Query,
		})
		changed = true
	}
	if !changed {
		return plan, false
	}

	corrected := *plan
	corrected.Pipeline = pipeline
	corrected.Notes = append(append([]string{}, plan.Notes...), "self-corrected after execution failures")
	return &corrected, true
}

// FinalResponse picks the response text from execution results: the last
// successful synthesis output, else the last successful output, else empty.
func FinalResponse(results []models.ExecutionResult) string {
	var lastSuccess, lastSynthesis string
	for _, r := range results {
		if r.Status != models.StepSuccess {
			continue
		}
		lastSuccess = r.Output
		if r.Tool == tools.SynthesisTool {
			lastSynthesis = r.Output
		}
	}
	if lastSynthesis != "" {
		return lastSynthesis
	}
	return lastSuccess
}

const fallbackSystemPrompt = "You answer as best you can from partial evidence. " +
	"Be explicit about what is missing or unverified."

// FallbackResponse composes a disclaimer-bearing answer from partial outputs
// when the pipeline did not fully succeed.
func (e *Executor) FallbackResponse(ctx context.Context, query string, results []models.ExecutionResult) string {
	const disclaimer = "Note: this response may rely on incomplete or fallback reasoning."

	if e.Client != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "Question: %s\n\nPartial pipeline results:\n", query)
		for _, r := range results {
			if r.Status == models.StepSuccess {
				fmt.Fprintf(&b, "[%s] succeeded: %s\n", r.Tool, truncateForPrompt(r.Output, 800))
			} else {
				fmt.Fprintf(&b, "[%s] failed: %s\n", r.Tool, r.Error)
			}
		}
		b.WriteString("\nAnswer the question from what succeeded, noting gaps.")
		answer, err := e.Client.Complete(ctx, llm.Request{
			Prompt:       b.String(),
			SystemPrompt: fallbackSystemPrompt,
			MaxTokens:    1000,
		})
		if err == nil && strings.TrimSpace(answer) != "" {
			return strings.TrimSpace(answer) + "\n\n" + disclaimer
		}
	}

	if partial := FinalResponse(results); partial != "" {
		return partial + "\n\n" + disclaimer
	}
	return "The pipeline could not gather enough information to answer. " + disclaimer
}

func truncateForPrompt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
