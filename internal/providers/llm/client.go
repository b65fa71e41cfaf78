// Package llm abstracts the text-generation capability used for planning,
// verification, classification, and synthesis.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnavailable is returned when no provider is configured or reachable.
var ErrUnavailable = errors.New("llm: provider unavailable")

// Request is one completion call. SystemPrompt may be empty.
type Request struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
}

// Client is the minimal interface the engine needs from a provider.
type Client interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// MalformedResponseError reports a JSON-required completion whose payload
// could not be parsed even after repair.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	sample := e.Raw
	if len(sample) > 200 {
		sample = sample[:200] + "..."
	}
	return fmt.Sprintf("llm: malformed response: %v (sample: %q)", e.Err, sample)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// CompleteJSON issues a completion that must decode into out. Near-miss JSON
// (code fences, prose wrappers, trailing commas, single quotes, Python
// literals) is repaired before giving up with a MalformedResponseError.
func CompleteJSON(ctx context.Context, c Client, req Request, out any) error {
	if c == nil {
		return ErrUnavailable
	}
	raw, err := c.Complete(ctx, req)
	if err != nil {
		return err
	}
	repaired, err := Repair(raw)
	if err != nil {
		return &MalformedResponseError{Raw: raw, Err: err}
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return &MalformedResponseError{Raw: raw, Err: err}
	}
	return nil
}
