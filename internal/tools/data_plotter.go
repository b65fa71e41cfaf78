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

// PlotTool renders a horizontal bar chart as an SVG file. Input is a JSON
// object of label -> numeric value; the output names the written file so the
// synthesis step can reference it.
type PlotTool struct {
	OutDir string
}

func NewPlot(outDir string) *PlotTool { return &PlotTool{OutDir: outDir} }

func (p *PlotTool) Name() string { return DataPlotter }

func (p *PlotTool) Description() string {
	return "Renders labeled numeric data as an SVG bar chart file."
}

func (p *PlotTool) Run(ctx context.Context, input string) (string, error) {
	var series map[string]float64
	if err := json.Unmarshal([]byte(strings.TrimSpace(input)), &series); err != nil {
		return "", fmt.Errorf("data_plotter: input must be a JSON object of label to value: %w", err)
	}
	if len(series) == 0 {
		return "", fmt.Errorf("data_plotter: no data points")
	}

	labels := make([]string, 0, len(series))
	for l := range series {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	maxVal := 0.0
	for _, v := range series {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal <= 0 {
		maxVal = 1
	}

	const barH, gap, chartW, labelW = 24, 8, 400, 140
	height := len(labels)*(barH+gap) + gap
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d">`, labelW+chartW+60, height)
	b.WriteString("\n")
	for i, l := range labels {
		y := gap + i*(barH+gap)
		w := int(series[l] / maxVal * chartW)
		fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="12" text-anchor="end">%s</text>`, labelW-6, y+barH-8, svgEscape(l))
		b.WriteString("\n")
		fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="#4c78a8"/>`, labelW, y, w, barH)
		b.WriteString("\n")
		fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="12">%g</text>`, labelW+w+4, y+barH-8, series[l])
		b.WriteString("\n")
	}
	b.WriteString("</svg>\n")

	if err := os.MkdirAll(p.OutDir, 0o755); err != nil {
		return "", fmt.Errorf("data_plotter: %w", err)
	}
	path := filepath.Join(p.OutDir, fmt.Sprintf("chart_%s.svg", time.Now().Format("20060102_150405")))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("data_plotter: write chart: %w", err)
	}
	return fmt.Sprintf("Chart with %d bars written to %s", len(labels), path), nil
}

func svgEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
