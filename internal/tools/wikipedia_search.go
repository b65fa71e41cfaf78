package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// WikipediaTool retrieves topic summaries from the Wikipedia REST API. It is
// the engine's background-knowledge source.
type WikipediaTool struct {
	HTTP    *http.Client
	BaseURL string
}

func NewWikipedia() *WikipediaTool {
	return &WikipediaTool{HTTP: newHTTPClient(), BaseURL: "https://en.wikipedia.org"}
}

func (w *WikipediaTool) Name() string { return WikipediaSearch }

func (w *WikipediaTool) Description() string {
	return "Retrieves encyclopedic background knowledge and topic overviews from Wikipedia."
}

func (w *WikipediaTool) Run(ctx context.Context, input string) (string, error) {
	topic := strings.TrimSpace(input)
	if topic == "" {
		return "", fmt.Errorf("wikipedia_search: empty topic")
	}
	title, err := w.closestTitle(ctx, topic)
	if err != nil {
		return "", err
	}
	if title == "" {
		title = topic
	}
	raw, err := httpGet(ctx, w.HTTP, w.BaseURL+"/api/rest_v1/page/summary/"+url.PathEscape(title), 1<<20)
	if err != nil {
		return "", fmt.Errorf("wikipedia_search: %w", err)
	}
	var page struct {
		Title   string `json:"title"`
		Extract string `json:"extract"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return "", fmt.Errorf("wikipedia_search: decode summary: %w", err)
	}
	if strings.TrimSpace(page.Extract) == "" {
		return "", fmt.Errorf("wikipedia_search: no summary found for %q", topic)
	}
	return fmt.Sprintf("%s: %s", page.Title, page.Extract), nil
}

// closestTitle resolves a free-form topic to the best-matching article title.
func (w *WikipediaTool) closestTitle(ctx context.Context, topic string) (string, error) {
	q := url.Values{
		"action":    {"opensearch"},
		"search":    {topic},
		"limit":     {"1"},
		"namespace": {"0"},
		"format":    {"json"},
	}
	raw, err := httpGet(ctx, w.HTTP, w.BaseURL+"/w/api.php?"+q.Encode(), 1<<20)
	if err != nil {
		return "", fmt.Errorf("wikipedia_search: title lookup: %w", err)
	}
	var results []json.RawMessage
	if err := json.Unmarshal(raw, &results); err != nil || len(results) < 2 {
		return "", nil
	}
	var titles []string
	if err := json.Unmarshal(results[1], &titles); err != nil || len(titles) == 0 {
		return "", nil
	}
	return titles[0], nil
}
