// Package tools defines the capability interface and the fixed registry the
// executor dispatches against. Membership is decided at construction time;
// any name outside the registry is a "tool not available" error.
package tools

import (
	"context"
	"errors"
	"fmt"
)

// Canonical tool names.
const (
	WikipediaSearch   = "wikipedia_search"
	NewsFetcher       = "news_fetcher"
	ArxivSummarizer   = "arxiv_summarizer"
	SentimentAnalyzer = "sentiment_analyzer"
	DataPlotter       = "data_plotter"
	DocumentWriter    = "document_writer"
	PDFParser         = "pdf_parser"
	QAEngine          = "qa_engine"
)

// SynthesisTool produces the final answer and always terminates a pipeline.
const SynthesisTool = QAEngine

// BackgroundTool is the general knowledge source treated as critical during
// self-correction and allowed to repeat in a pipeline.
const BackgroundTool = WikipediaSearch

// ErrToolNotFound marks a lookup for a name outside the registry.
var ErrToolNotFound = errors.New("tool not available")

// Tool is one external capability.
type Tool interface {
	Name() string
	Description() string
	Run(ctx context.Context, input string) (string, error)
}

// CatalogueEntry is the name+description pair rendered into planner and
// verifier prompts.
type CatalogueEntry struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Registry maps tool names to implementations. It is immutable after startup.
type Registry struct {
	order []string
	tools map[string]Tool
	descs map[string]string
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}, descs: map[string]string{}}
}

func (r *Registry) Register(t Tool) {
	name := t.Name()
	if _, dup := r.tools[name]; !dup {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
	r.descs[name] = t.Description()
}

// Get resolves a canonical name. Aliases are not accepted here; callers
// normalize first via Canonical.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns registry membership in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Catalogue returns the prompt-facing tool descriptions.
func (r *Registry) Catalogue() []CatalogueEntry {
	out := make([]CatalogueEntry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, CatalogueEntry{Name: name, Description: r.descs[name]})
	}
	return out
}

// OverrideDescriptions replaces catalogue descriptions, e.g. from a YAML
// catalogue file. Unknown names are ignored.
func (r *Registry) OverrideDescriptions(entries []CatalogueEntry) {
	for _, e := range entries {
		if _, ok := r.tools[e.Name]; ok && e.Description != "" {
			r.descs[e.Name] = e.Description
		}
	}
}

// Run dispatches input to a registered tool.
func (r *Registry) Run(ctx context.Context, name, input string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	return t.Run(ctx, input)
}

// aliases maps the loose tool names LLM plans tend to produce onto canonical
// registry names.
var aliases = map[string]string{
	"search":          WikipediaSearch,
	"search_tool":     WikipediaSearch,
	"web_search":      WikipediaSearch,
	"wikipedia":       WikipediaSearch,
	"summarize":       QAEngine,
	"summarizer":      QAEngine,
	"synthesis":       QAEngine,
	"llm_answer":      QAEngine,
	"qa":              QAEngine,
	"arxiv":           ArxivSummarizer,
	"paper_search":    ArxivSummarizer,
	"arxiv_search":    ArxivSummarizer,
	"news":            NewsFetcher,
	"news_search":     NewsFetcher,
	"sentiment":       SentimentAnalyzer,
	"plot":            DataPlotter,
	"chart":           DataPlotter,
	"report_writer":   DocumentWriter,
	"document":        DocumentWriter,
	"pdf":             PDFParser,
	"pdf_extract":     PDFParser,
	"document_parser": PDFParser,
}

// Canonical normalizes a tool name, resolving known aliases. Unknown names
// pass through unchanged so the caller can reject them against the registry.
func Canonical(name string) string {
	if canon, ok := aliases[name]; ok {
		return canon
	}
	return name
}
