package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// OpenAIClient speaks the Chat Completions API. It also covers
// OpenAI-compatible gateways such as OpenRouter via BaseURL.
type OpenAIClient struct {
	APIKey  string
	Model   string
	BaseURL string
	HTTP    *http.Client
}

func NewOpenAI(apiKey, model, baseURL string, timeout time.Duration) *OpenAIClient {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &OpenAIClient{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *OpenAIClient) Name() string { return "openai" }

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := []map[string]string{}
	if req.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.SystemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})
	body := map[string]any{
		"model":       c.Model,
		"messages":    messages,
		"temperature": 0.3,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := postJSON(ctx, c.HTTP, c.BaseURL+"/v1/chat/completions", map[string]string{
		"Authorization": "Bearer " + c.APIKey,
	}, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// postJSON posts a JSON body and decodes the reply, retrying transient
// failures (timeouts, 408/429/5xx) with exponential backoff. A 429 with a
// Retry-After header sleeps for the server-provided interval instead.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff(attempt-1)); err != nil {
				return err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		res, err := client.Do(req)
		if err != nil {
			lastErr = err
			if isTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return err
		}
		func() {
			defer res.Body.Close()
			if res.StatusCode >= 200 && res.StatusCode < 300 {
				lastErr = json.NewDecoder(res.Body).Decode(out)
				return
			}
			var eresp map[string]any
			_ = json.NewDecoder(res.Body).Decode(&eresp)
			lastErr = fmt.Errorf("llm: status %d: %v", res.StatusCode, eresp)
			if res.StatusCode == http.StatusTooManyRequests {
				if ra := retryAfter(res); ra > 0 {
					_ = sleepCtx(ctx, ra)
				}
			}
		}()
		if lastErr == nil {
			return nil
		}
		if !retryableStatus(res.StatusCode) {
			return lastErr
		}
	}
	return lastErr
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

func retryAfter(res *http.Response) time.Duration {
	if v := res.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 && secs <= 60 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}

func backoff(i int) time.Duration {
	return time.Duration(500*(1<<i)) * time.Millisecond
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
