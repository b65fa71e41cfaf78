// Package orchestrator owns the lifecycle of a query: classify, then either a
// direct answer or the adversarial plan/verify loop followed by execution,
// self-correction, and pattern learning.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"queryforge/internal/agents"
	"queryforge/internal/config"
	"queryforge/internal/models"
	"queryforge/internal/patterns"
	"queryforge/internal/providers/llm"
	"queryforge/internal/router"
	"queryforge/internal/tools"
)

// qualityFloor is the minimum best-plan score worth spending execution budget
// on. Below it the query is rejected without running a single tool.
const qualityFloor = 50

// patternSuccessRatio is the step success share required before a plan is
// persisted as a reusable pattern.
const patternSuccessRatio = 0.8

const directSystemPrompt = "You are a helpful, conversational assistant. " +
	"Answer directly and casually; no tools are involved."

// Orchestrator wires the classifier, agents, tool registry, and pattern store
// into one query-processing engine. Sessions are independent; the pattern
// store is the only shared mutable state and is safe for concurrent use.
type Orchestrator struct {
	cfg      config.Config
	log      *zap.Logger
	client   llm.Client
	registry *tools.Registry
	router   *router.Router
	planner  *agents.Planner
	verifier *agents.Verifier
	executor *agents.Executor
	patterns *patterns.Store
	hub      *Hub

	sessionsMu sync.RWMutex
	sessions   map[string]*models.SessionRecord
}

// New builds a fully wired Orchestrator. The LLM client is shared by all
// components behind one rate limiter owned here, so the per-minute budget is
// global rather than per-agent.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) *Orchestrator {
	client := llm.NewFromConfig(ctx, cfg)
	if client != nil {
		perSecond := rate.Limit(float64(cfg.LLMCallsPerMin) / 60.0)
		client = llm.WithRateLimit(client, rate.NewLimiter(perSecond, cfg.LLMCallsPerMin))
		log.Info("text generation enabled", zap.String("provider", client.Name()))
	} else {
		log.Warn("no text generation configured, running deterministic paths only")
	}

	reg := tools.NewRegistry()
	reg.Register(tools.NewWikipedia())
	reg.Register(tools.NewNews())
	reg.Register(tools.NewArxiv())
	reg.Register(tools.NewSentiment())
	reg.Register(tools.NewPlot(cfg.OutputsDir))
	reg.Register(tools.NewDocument(cfg.OutputsDir))
	reg.Register(tools.NewPDF())
	reg.Register(tools.NewQA(client, cfg.MaxOutputTokens))
	if cfg.CatalogueFile != "" {
		if entries, err := tools.LoadCatalogue(cfg.CatalogueFile); err != nil {
			log.Warn("tool catalogue override not loaded", zap.Error(err))
		} else {
			reg.OverrideDescriptions(entries)
		}
	}

	store := patterns.NewStore(cfg.PatternsDir)
	verifier := agents.NewVerifier(client, reg, log)

	return &Orchestrator{
		cfg:      cfg,
		log:      log,
		client:   client,
		registry: reg,
		router:   router.New(client, log),
		planner:  agents.NewPlanner(client, reg, store, log),
		verifier: verifier,
		executor: agents.NewExecutor(reg, verifier, client, log),
		patterns: store,
		hub:      NewHub(),
	}
}

// Hub exposes the event fan-out for SSE handlers.
func (o *Orchestrator) Hub() *Hub { return o.hub }

// Registry exposes the tool registry, e.g. for the CLI catalogue listing.
func (o *Orchestrator) Registry() *tools.Registry { return o.registry }

// GetSession returns the audit record for a completed session.
func (o *Orchestrator) GetSession(id string) (*models.SessionRecord, bool) {
	o.sessionsMu.RLock()
	defer o.sessionsMu.RUnlock()
	s, ok := o.sessions[id]
	return s, ok
}

// ProcessQuery runs one query end to end under a fresh session id and returns
// its session record. fileContext, when non-empty, is prepended so the planner
// can route it into document tools.
func (o *Orchestrator) ProcessQuery(ctx context.Context, rawQuery, fileContext string) *models.SessionRecord {
	return o.ProcessQueryWithSession(ctx, uuid.NewString(), rawQuery, fileContext)
}

// ProcessQueryWithSession runs one query under a caller-chosen session id, so
// a subscriber opened on that id before the query starts observes every
// lifecycle event. An empty id gets a fresh one.
func (o *Orchestrator) ProcessQueryWithSession(ctx context.Context, sessionID, rawQuery, fileContext string) *models.SessionRecord {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	started := time.Now()
	session := &models.SessionRecord{
		SessionID: sessionID,
		Query:     models.NormalizeQuery(rawQuery),
		StartedAt: started,
	}
	log := o.log.With(zap.String("session", session.SessionID))

	query := session.Query
	if fc := strings.TrimSpace(fileContext); fc != "" {
		query = query + "\n\nAttached file content:\n" + fc
	}

	session.Classification = o.router.Classify(ctx, query)
	o.hub.Publish(session.SessionID, Event{Event: EventClassification, SessionID: session.SessionID, Payload: session.Classification})
	log.Info("query classified",
		zap.String("route", string(session.Classification.Route)),
		zap.Float64("confidence", session.Classification.Confidence))

	if session.Classification.Route == models.RouteDirect {
		o.answerDirect(ctx, session, query)
	} else {
		o.runPipeline(ctx, session, query, log)
	}

	session.Duration = time.Since(started)
	o.hub.Publish(session.SessionID, Event{Event: EventFinal, SessionID: session.SessionID, Payload: map[string]any{
		"response": session.FinalResponse,
		"status":   session.Status,
	}})
	o.recordSession(session, log)
	return session
}

// answerDirect handles the fast path: one casual completion, no pipeline.
func (o *Orchestrator) answerDirect(ctx context.Context, session *models.SessionRecord, query string) {
	answer := ""
	if o.client != nil {
		out, err := o.client.Complete(ctx, llm.Request{
			Prompt:       query,
			SystemPrompt: directSystemPrompt,
			MaxTokens:    o.cfg.MaxOutputTokens,
		})
		if err == nil {
			answer = strings.TrimSpace(out)
		}
	}
	if answer == "" {
		answer = "I could not produce a direct answer right now. Please try again."
		session.Metadata = models.ResponseMetadata{
			Origin:            models.OriginLLMFallback,
			FactualConfidence: models.ConfidenceLow,
			Disclaimer:        "No generation backend was reachable for this query.",
		}
	} else {
		session.Metadata = models.ResponseMetadata{
			Origin:            models.OriginLLMFallback,
			FactualConfidence: models.ConfidenceMedium,
		}
	}
	session.FinalResponse = answer
	session.Status = models.StatusCompletedDirect
}

// runPipeline is the adversarial loop plus execution and pattern learning.
func (o *Orchestrator) runPipeline(ctx context.Context, session *models.SessionRecord, query string, log *zap.Logger) {
	var (
		bestPlan   *models.Plan
		bestReport *models.VerificationReport
	)

	for iter := 1; iter <= o.cfg.MaxIterations; iter++ {
		var plan *models.Plan
		var err error
		if bestPlan == nil {
			plan, err = o.planner.CreatePlan(ctx, query)
		} else {
			plan, err = o.planner.CreatePlanWithFeedback(ctx, query, bestPlan, bestReport)
		}
		if err != nil {
			log.Error("planning failed", zap.Int("iteration", iter), zap.Error(err))
			break
		}
		session.PlanHistory = append(session.PlanHistory, *plan)
		o.hub.Publish(session.SessionID, Event{Event: EventPlan, SessionID: session.SessionID, Payload: plan})

		report := o.verifier.Verify(ctx, plan)
		o.hub.Publish(session.SessionID, Event{Event: EventVerdict, SessionID: session.SessionID, Payload: report})
		log.Info("plan verified",
			zap.Int("iteration", iter),
			zap.Int("score", report.OverallScore),
			zap.String("verdict", string(report.FinalVerdict)))

		if bestReport == nil || report.OverallScore > bestReport.OverallScore {
			bestPlan, bestReport = plan, report
		}
		if report.FinalVerdict == models.VerdictApprove {
			bestPlan, bestReport = plan, report
			break
		}
	}

	if bestPlan == nil {
		session.Status = models.StatusRejected
		session.FinalResponse = "I could not construct a workable plan for this query."
		session.Metadata = models.ResponseMetadata{
			Origin:            models.OriginLLMFallback,
			FactualConfidence: models.ConfidenceLow,
			Disclaimer:        "Planning failed before any tools were run.",
		}
		return
	}
	session.Plan = bestPlan
	session.Verification = bestReport

	// Quality floor: a plan judged too poor is refused outright, spending
	// zero tool invocations.
	if bestReport.FinalVerdict != models.VerdictApprove && bestReport.OverallScore < qualityFloor {
		log.Warn("plan rejected below quality floor", zap.Int("score", bestReport.OverallScore))
		session.Status = models.StatusRejected
		session.FinalResponse = fmt.Sprintf(
			"I can't answer this reliably: the best plan scored %d/100 against a floor of %d. %s",
			bestReport.OverallScore, qualityFloor, bestReport.QualitySummary)
		session.Metadata = models.ResponseMetadata{
			Origin:            models.OriginLLMFallback,
			FactualConfidence: models.ConfidenceLow,
			Disclaimer:        "The plan was rejected before execution.",
		}
		return
	}

	results, executedPlan := o.executor.ExecuteWithSelfCorrection(ctx, bestPlan, o.cfg.SelfCorrectRetries)
	session.Plan = executedPlan
	session.ExecutionResults = results
	for _, r := range results {
		o.hub.Publish(session.SessionID, Event{Event: EventStepResult, SessionID: session.SessionID, Payload: r})
	}

	succeeded := 0
	var toolsUsed []string
	for _, r := range results {
		toolsUsed = append(toolsUsed, r.Tool)
		if r.Status == models.StepSuccess {
			succeeded++
		}
	}
	allSucceeded := succeeded == len(results) && len(results) > 0

	if allSucceeded {
		session.Status = models.StatusCompleted
		session.FinalResponse = agents.FinalResponse(results)
		session.Metadata = models.ResponseMetadata{
			Origin:            models.OriginToolExecution,
			FactualConfidence: confidenceFromScore(bestReport.OverallScore),
			ToolsUsed:         toolsUsed,
		}
	} else {
		session.Status = models.StatusFallback
		session.FinalResponse = o.executor.FallbackResponse(ctx, query, results)
		session.Metadata = models.ResponseMetadata{
			Origin:            models.OriginLLMFallback,
			FactualConfidence: models.ConfidenceLow,
			ToolsUsed:         toolsUsed,
			Disclaimer:        "Parts of the pipeline failed; this response may rely on incomplete or fallback reasoning.",
		}
	}

	// Learn from what worked: approved plans whose steps (nearly) all ran.
	if bestReport.FinalVerdict == models.VerdictApprove && len(results) > 0 &&
		float64(succeeded)/float64(len(results)) >= patternSuccessRatio {
		pattern := patterns.NewPattern(session.Query, executedPlan, bestReport.OverallScore)
		if err := o.patterns.Append(pattern); err != nil {
			log.Warn("pattern not persisted", zap.Error(err))
		} else {
			log.Info("success pattern persisted", zap.Int("score", bestReport.OverallScore))
		}
	}
}

func confidenceFromScore(score int) string {
	switch {
	case score >= 80:
		return models.ConfidenceHigh
	case score >= 60:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// recordSession stores the write-once audit record in memory and on disk.
func (o *Orchestrator) recordSession(session *models.SessionRecord, log *zap.Logger) {
	o.sessionsMu.Lock()
	if o.sessions == nil {
		o.sessions = map[string]*models.SessionRecord{}
	}
	o.sessions[session.SessionID] = session
	o.sessionsMu.Unlock()

	if err := os.MkdirAll(o.cfg.LogsDir, 0o755); err != nil {
		log.Warn("session log dir", zap.Error(err))
		return
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		log.Warn("session log encode", zap.Error(err))
		return
	}
	path := filepath.Join(o.cfg.LogsDir, fmt.Sprintf("session_%s.json", session.SessionID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warn("session log write", zap.Error(err))
	}
}
