// Package config loads engine settings from the environment, with optional
// .env support for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// LLM provider selection. Provider is one of openai, anthropic, gemini;
	// empty means auto-detect by key presence, and no key means no LLM.
	Provider        string
	OpenAIKey       string
	OpenAIBaseURL   string
	AnthropicKey    string
	GoogleKey       string
	Model           string
	LLMTimeout      time.Duration
	LLMCallsPerMin  int
	MaxOutputTokens int

	// Orchestrator knobs.
	MaxIterations      int
	SelfCorrectRetries int

	// Directories for session logs, learned patterns, and tool outputs.
	LogsDir     string
	PatternsDir string
	OutputsDir  string

	// Optional YAML file overriding tool catalogue descriptions.
	CatalogueFile string

	Port  string
	Debug bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Provider:           os.Getenv("LLM_PROVIDER"),
		OpenAIKey:          firstEnv("OPENROUTER_API_KEY", "OPENAI_API_KEY"),
		OpenAIBaseURL:      os.Getenv("OPENAI_API_BASE"),
		AnthropicKey:       os.Getenv("ANTHROPIC_API_KEY"),
		GoogleKey:          os.Getenv("GOOGLE_API_KEY"),
		Model:              os.Getenv("LLM_MODEL"),
		LLMTimeout:         envDuration("LLM_HTTP_TIMEOUT", 45*time.Second),
		LLMCallsPerMin:     envInt("LLM_CALLS_PER_MINUTE", 30),
		MaxOutputTokens:    envInt("LLM_MAX_TOKENS", 2000),
		MaxIterations:      envInt("MAX_PLAN_ITERATIONS", 2),
		SelfCorrectRetries: envInt("SELF_CORRECTION_RETRIES", 2),
		LogsDir:            envOr("LOGS_DIR", "logs"),
		PatternsDir:        envOr("PATTERNS_DIR", "logs/patterns"),
		OutputsDir:         envOr("OUTPUTS_DIR", "outputs"),
		CatalogueFile:      os.Getenv("TOOL_CATALOGUE_FILE"),
		Port:               envOr("PORT", "8080"),
		Debug:              os.Getenv("DEBUG") == "1",
	}
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
