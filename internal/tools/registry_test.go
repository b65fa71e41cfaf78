package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndRun(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewSentiment())

	out, err := reg.Run(context.Background(), SentimentAnalyzer, "This is a great and promising success")
	require.NoError(t, err)
	assert.Contains(t, out, "positive")
}

func TestRegistry_UnknownToolError(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Run(context.Background(), "quantum_oracle", "x")
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.Contains(t, err.Error(), "not available")
}

func TestRegistry_NamesPreserveRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewWikipedia())
	reg.Register(NewNews())
	reg.Register(NewSentiment())
	assert.Equal(t, []string{WikipediaSearch, NewsFetcher, SentimentAnalyzer}, reg.Names())
}

func TestRegistry_CatalogueAndOverride(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewSentiment())

	cat := reg.Catalogue()
	require.Len(t, cat, 1)
	assert.Equal(t, SentimentAnalyzer, cat[0].Name)
	assert.NotEmpty(t, cat[0].Description)

	reg.OverrideDescriptions([]CatalogueEntry{
		{Name: SentimentAnalyzer, Description: "custom description"},
		{Name: "not_registered", Description: "ignored"},
	})
	assert.Equal(t, "custom description", reg.Catalogue()[0].Description)
	assert.Len(t, reg.Catalogue(), 1)
}

func TestCanonical_Aliases(t *testing.T) {
	cases := map[string]string{
		"search_tool":      WikipediaSearch,
		"web_search":       WikipediaSearch,
		"summarize":        QAEngine,
		"synthesis":        QAEngine,
		"arxiv":            ArxivSummarizer,
		"news":             NewsFetcher,
		"pdf_extract":      PDFParser,
		"chart":            DataPlotter,
		"wikipedia_search": WikipediaSearch, // canonical names pass through
		"made_up_name":     "made_up_name",  // unknown names pass through
	}
	for in, want := range cases {
		assert.Equal(t, want, Canonical(in), in)
	}
}

func TestLoadCatalogue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalogue.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`tools:
  - name: wikipedia_search
    description: Custom wording for the search tool.
  - name: qa_engine
    description: Custom wording for synthesis.
`), 0o644))

	entries, err := LoadCatalogue(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "wikipedia_search", entries[0].Name)
	assert.Equal(t, "Custom wording for the search tool.", entries[0].Description)
}

func TestLoadCatalogue_MissingFile(t *testing.T) {
	_, err := LoadCatalogue(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
