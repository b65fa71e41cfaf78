package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DocumentTool writes a structured Markdown report to disk. Input is either a
// JSON object {"title": ..., "sections": {heading: body, ...}} or plain text,
// which becomes the report body under a generic title.
type DocumentTool struct {
	OutDir string
}

func NewDocument(outDir string) *DocumentTool { return &DocumentTool{OutDir: outDir} }

func (d *DocumentTool) Name() string { return DocumentWriter }

func (d *DocumentTool) Description() string {
	return "Writes gathered findings into a structured Markdown report file."
}

type reportSpec struct {
	Title    string            `json:"title"`
	Sections map[string]string `json:"sections"`
}

func (d *DocumentTool) Run(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("document_writer: empty input")
	}

	var spec reportSpec
	if err := json.Unmarshal([]byte(input), &spec); err != nil || (spec.Title == "" && len(spec.Sections) == 0) {
		spec = reportSpec{Title: "Report", Sections: map[string]string{"Findings": input}}
	}
	if spec.Title == "" {
		spec.Title = "Report"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n_Generated %s_\n", spec.Title, time.Now().Format("2006-01-02 15:04"))
	for _, heading := range sortedKeys(spec.Sections) {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", heading, strings.TrimSpace(spec.Sections[heading]))
	}

	if err := os.MkdirAll(d.OutDir, 0o755); err != nil {
		return "", fmt.Errorf("document_writer: %w", err)
	}
	path := filepath.Join(d.OutDir, fmt.Sprintf("report_%s.md", time.Now().Format("20060102_150405")))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("document_writer: write report: %w", err)
	}
	return fmt.Sprintf("Report %q (%d sections) written to %s", spec.Title, len(spec.Sections), path), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
