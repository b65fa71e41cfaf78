package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"queryforge/internal/config"
	"queryforge/internal/models"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	base := t.TempDir()
	return config.Config{
		Provider:           "mock",
		LLMTimeout:         5 * time.Second,
		LLMCallsPerMin:     600,
		MaxOutputTokens:    500,
		MaxIterations:      2,
		SelfCorrectRetries: 2,
		LogsDir:            filepath.Join(base, "logs"),
		PatternsDir:        filepath.Join(base, "logs", "patterns"),
		OutputsDir:         filepath.Join(base, "outputs"),
		Port:               "0",
	}
}

func TestProcessQuery_DirectRoute(t *testing.T) {
	cfg := testConfig(t)
	o := New(context.Background(), cfg, zap.NewNop())

	session := o.ProcessQuery(context.Background(), "What is 7 plus 5?", "")

	assert.Equal(t, models.RouteDirect, session.Classification.Route)
	assert.Equal(t, models.StatusCompletedDirect, session.Status)
	assert.NotEmpty(t, session.FinalResponse)
	assert.Nil(t, session.Plan, "direct route never plans")
	assert.Empty(t, session.ExecutionResults)
	assert.NotEmpty(t, session.SessionID)
}

func TestProcessQuery_NormalizesQuery(t *testing.T) {
	cfg := testConfig(t)
	o := New(context.Background(), cfg, zap.NewNop())

	session := o.ProcessQuery(context.Background(), "  What is\t7 plus 5?\n", "")
	assert.Equal(t, "What is 7 plus 5?", session.Query)
}

func TestProcessQuery_SessionRecordPersisted(t *testing.T) {
	cfg := testConfig(t)
	o := New(context.Background(), cfg, zap.NewNop())

	session := o.ProcessQuery(context.Background(), "What is 7 plus 5?", "")

	got, ok := o.GetSession(session.SessionID)
	require.True(t, ok)
	assert.Equal(t, session.FinalResponse, got.FinalResponse)

	// One write-once JSON audit record on disk.
	path := filepath.Join(cfg.LogsDir, "session_"+session.SessionID+".json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk models.SessionRecord
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, session.SessionID, onDisk.SessionID)
	assert.Equal(t, session.Status, onDisk.Status)
}

func TestProcessQueryWithSession_SubscriberSeesLifecycleEvents(t *testing.T) {
	o := New(context.Background(), testConfig(t), zap.NewNop())
	ch, unsubscribe := o.Hub().Subscribe("chosen-id")
	defer unsubscribe()

	session := o.ProcessQueryWithSession(context.Background(), "chosen-id", "What is 7 plus 5?", "")
	require.Equal(t, "chosen-id", session.SessionID)

	var names []string
	for len(ch) > 0 {
		var ev Event
		require.NoError(t, json.Unmarshal(<-ch, &ev))
		assert.Equal(t, "chosen-id", ev.SessionID)
		names = append(names, ev.Event)
	}
	assert.Equal(t, []string{EventClassification, EventFinal}, names)
}

func TestProcessQueryWithSession_EmptyIDGetsFreshOne(t *testing.T) {
	o := New(context.Background(), testConfig(t), zap.NewNop())
	session := o.ProcessQueryWithSession(context.Background(), "", "What is 7 plus 5?", "")
	assert.NotEmpty(t, session.SessionID)
}

func TestProcessQuery_GetSessionUnknownID(t *testing.T) {
	o := New(context.Background(), testConfig(t), zap.NewNop())
	_, ok := o.GetSession("no-such-session")
	assert.False(t, ok)
}

func TestProcessQuery_NoIterationsRejectsWithoutExecuting(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxIterations = 0 // no planning budget at all
	o := New(context.Background(), cfg, zap.NewNop())

	// Empty message routes to the pipeline, which then cannot plan.
	session := o.ProcessQuery(context.Background(), "", "")

	assert.Equal(t, models.RoutePipeline, session.Classification.Route)
	assert.Equal(t, models.StatusRejected, session.Status)
	assert.Empty(t, session.ExecutionResults, "rejection spends zero tool invocations")
	assert.NotEmpty(t, session.FinalResponse)
	assert.Equal(t, models.ConfidenceLow, session.Metadata.FactualConfidence)
}

func TestConfidenceFromScore(t *testing.T) {
	assert.Equal(t, models.ConfidenceHigh, confidenceFromScore(85))
	assert.Equal(t, models.ConfidenceMedium, confidenceFromScore(70))
	assert.Equal(t, models.ConfidenceLow, confidenceFromScore(45))
}

func TestHub_PublishSubscribe(t *testing.T) {
	hub := NewHub()
	ch, unsubscribe := hub.Subscribe("s1")
	defer unsubscribe()

	hub.Publish("s1", Event{Event: EventPlan, SessionID: "s1", Payload: map[string]any{"steps": 2}})
	hub.Publish("other", Event{Event: EventPlan, SessionID: "other"})

	select {
	case msg := <-ch:
		var ev Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, EventPlan, ev.Event)
		assert.Equal(t, "s1", ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("expected an event for the subscribed session")
	}

	select {
	case msg, open := <-ch:
		if open {
			t.Fatalf("unexpected extra event: %s", msg)
		}
	default:
	}
}

func TestHub_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub()
	ch, unsubscribe := hub.Subscribe("s1")
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish("s1", Event{Event: EventStepResult, SessionID: "s1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.LessOrEqual(t, len(ch), cap(ch))
}
