package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ArxivTool queries the arXiv Atom API for recent papers on a topic.
type ArxivTool struct {
	HTTP    *http.Client
	BaseURL string
	Limit   int
}

func NewArxiv() *ArxivTool {
	return &ArxivTool{HTTP: newHTTPClient(), BaseURL: "http://export.arxiv.org/api/query", Limit: 3}
}

func (a *ArxivTool) Name() string { return ArxivSummarizer }

func (a *ArxivTool) Description() string {
	return "Searches arXiv for academic papers and returns their abstracts."
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

func (a *ArxivTool) Run(ctx context.Context, input string) (string, error) {
	topic := strings.TrimSpace(input)
	if topic == "" {
		return "", fmt.Errorf("arxiv_summarizer: empty topic")
	}
	q := url.Values{
		"search_query": {"all:" + topic},
		"start":        {"0"},
		"max_results":  {fmt.Sprint(a.Limit)},
		"sortBy":       {"relevance"},
	}
	raw, err := httpGet(ctx, a.HTTP, a.BaseURL+"?"+q.Encode(), 2<<20)
	if err != nil {
		return "", fmt.Errorf("arxiv_summarizer: %w", err)
	}
	var feed atomFeed
	if err := xml.Unmarshal(raw, &feed); err != nil {
		return "", fmt.Errorf("arxiv_summarizer: decode feed: %w", err)
	}
	if len(feed.Entries) == 0 {
		return "", fmt.Errorf("arxiv_summarizer: no papers found for %q", topic)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "arXiv papers on %q:\n", topic)
	for i, e := range feed.Entries {
		title := strings.Join(strings.Fields(e.Title), " ")
		var names []string
		for _, au := range e.Authors {
			names = append(names, au.Name)
		}
		fmt.Fprintf(&b, "%d. %s", i+1, title)
		if len(names) > 0 {
			fmt.Fprintf(&b, " — %s", strings.Join(names, ", "))
		}
		if len(e.Published) >= 4 {
			fmt.Fprintf(&b, " (%s)", e.Published[:4])
		}
		b.WriteString("\n")
		summary := strings.Join(strings.Fields(e.Summary), " ")
		if summary != "" {
			fmt.Fprintf(&b, "   %s\n", truncate(summary, 400))
		}
	}
	return strings.TrimSpace(b.String()), nil
}
