package llm

import (
	"context"
	"strings"

	"queryforge/internal/config"
)

// NewFromConfig builds a Client from configuration. It returns nil when no
// provider is configured: callers treat a nil Client as "generation
// unavailable" and take their deterministic fallback paths.
func NewFromConfig(ctx context.Context, cfg config.Config) Client {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai", "openrouter":
		if cfg.OpenAIKey != "" {
			base := cfg.OpenAIBaseURL
			if strings.ToLower(cfg.Provider) == "openrouter" && base == "" {
				base = "https://openrouter.ai/api"
			}
			return NewOpenAI(cfg.OpenAIKey, cfg.Model, base, cfg.LLMTimeout)
		}
	case "anthropic":
		if cfg.AnthropicKey != "" {
			return NewAnthropic(cfg.AnthropicKey, cfg.Model, cfg.LLMTimeout)
		}
	case "gemini":
		if cfg.GoogleKey != "" {
			if c, err := NewGemini(ctx, cfg.GoogleKey, cfg.Model); err == nil {
				return c
			}
		}
	case "mock":
		return &MockClient{}
	}

	// Auto-detect by key presence when no provider is named.
	if cfg.OpenAIKey != "" {
		return NewOpenAI(cfg.OpenAIKey, cfg.Model, cfg.OpenAIBaseURL, cfg.LLMTimeout)
	}
	if cfg.AnthropicKey != "" {
		return NewAnthropic(cfg.AnthropicKey, cfg.Model, cfg.LLMTimeout)
	}
	if cfg.GoogleKey != "" {
		if c, err := NewGemini(ctx, cfg.GoogleKey, cfg.Model); err == nil {
			return c
		}
	}
	return nil
}
