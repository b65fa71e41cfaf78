package orchestrator

import (
	"encoding/json"
	"sync"
)

// Event is the SSE payload wrapper published at each lifecycle milestone.
type Event struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id"`
	Payload   any    `json:"payload,omitempty"`
}

// Event names published during a session.
const (
	EventClassification = "classification"
	EventPlan           = "plan"
	EventVerdict        = "verdict"
	EventStepResult     = "step_result"
	EventFinal          = "final"
)

type subscriber chan []byte

// Hub fans session events out to SSE subscribers. Slow subscribers drop
// events rather than stalling the session.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[subscriber]struct{}{}}
}

func (h *Hub) Subscribe(sessionID string) (subscriber, func()) {
	ch := make(subscriber, 16)
	h.mu.Lock()
	set := h.subs[sessionID]
	if set == nil {
		set = map[subscriber]struct{}{}
		h.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		if set, ok := h.subs[sessionID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, sessionID)
			}
		}
		close(ch)
		h.mu.Unlock()
	}
	return ch, unsubscribe
}

func (h *Hub) Publish(sessionID string, ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[sessionID] {
		select {
		case ch <- b:
		default:
		}
	}
}
