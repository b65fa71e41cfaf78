package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// limited wraps a Client with an explicit rate limiter. The limiter is owned
// by the orchestrator and shared across planner, verifier, and tools instead
// of living in process-global client state.
type limited struct {
	inner Client
	lim   *rate.Limiter
}

// WithRateLimit returns c throttled by lim. A nil limiter or client is
// passed through unchanged.
func WithRateLimit(c Client, lim *rate.Limiter) Client {
	if c == nil || lim == nil {
		return c
	}
	return &limited{inner: c, lim: lim}
}

func (l *limited) Name() string { return l.inner.Name() }

func (l *limited) Complete(ctx context.Context, req Request) (string, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return "", err
	}
	return l.inner.Complete(ctx, req)
}
