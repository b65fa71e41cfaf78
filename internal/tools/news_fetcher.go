package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// NewsTool fetches recent headlines for a topic from the Google News RSS feed
// and strips the HTML markup the feed embeds in descriptions.
type NewsTool struct {
	HTTP    *http.Client
	FeedURL string
	Limit   int
}

func NewNews() *NewsTool {
	return &NewsTool{HTTP: newHTTPClient(), FeedURL: "https://news.google.com/rss/search", Limit: 5}
}

func (n *NewsTool) Name() string { return NewsFetcher }

func (n *NewsTool) Description() string {
	return "Finds recent news headlines and developments for a topic."
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Source      string `xml:"source"`
}

func (n *NewsTool) Run(ctx context.Context, input string) (string, error) {
	topic := strings.TrimSpace(input)
	if topic == "" {
		return "", fmt.Errorf("news_fetcher: empty topic")
	}
	q := url.Values{"q": {topic}, "hl": {"en-US"}}
	raw, err := httpGet(ctx, n.HTTP, n.FeedURL+"?"+q.Encode(), 2<<20)
	if err != nil {
		return "", fmt.Errorf("news_fetcher: %w", err)
	}
	var feed rssFeed
	if err := xml.Unmarshal(raw, &feed); err != nil {
		return "", fmt.Errorf("news_fetcher: decode feed: %w", err)
	}
	items := feed.Channel.Items
	if len(items) == 0 {
		return "", fmt.Errorf("news_fetcher: no recent news for %q", topic)
	}
	if len(items) > n.Limit {
		items = items[:n.Limit]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Recent news for %q:\n", topic)
	for i, item := range items {
		desc := htmlToText(item.Description)
		fmt.Fprintf(&b, "%d. %s", i+1, strings.TrimSpace(item.Title))
		if item.PubDate != "" {
			fmt.Fprintf(&b, " (%s)", item.PubDate)
		}
		b.WriteString("\n")
		if desc != "" && desc != strings.TrimSpace(item.Title) {
			fmt.Fprintf(&b, "   %s\n", truncate(desc, 300))
		}
	}
	return strings.TrimSpace(b.String()), nil
}
