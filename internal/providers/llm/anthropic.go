package llm

import (
	"context"
	"errors"
	"net/http"
	"time"
)

type AnthropicClient struct {
	APIKey  string
	Model   string
	BaseURL string
	HTTP    *http.Client
}

func NewAnthropic(apiKey, model string, timeout time.Duration) *AnthropicClient {
	if model == "" {
		model = "claude-3-5-sonnet-latest"
	}
	return &AnthropicClient{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: "https://api.anthropic.com",
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

func (c *AnthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	body := map[string]any{
		"model":      c.Model,
		"max_tokens": maxTokens,
		"messages": []map[string]any{{
			"role":    "user",
			"content": []map[string]string{{"type": "text", "text": req.Prompt}},
		}},
	}
	if req.SystemPrompt != "" {
		body["system"] = req.SystemPrompt
	}
	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	err := postJSON(ctx, c.HTTP, c.BaseURL+"/v1/messages", map[string]string{
		"x-api-key":         c.APIKey,
		"anthropic-version": "2023-06-01",
	}, body, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", errors.New("anthropic: no content")
	}
	return resp.Content[0].Text, nil
}
