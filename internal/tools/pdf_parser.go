package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	pdfx "github.com/ledongthuc/pdf"
)

const (
	pdfMaxBytes = 20 << 20
	pdfMaxPages = 20
)

// PDFTool extracts plain text from a PDF document. Input is either a path to
// a local file or base64-encoded PDF bytes (data: URIs accepted); the planner
// routes file_context through here.
type PDFTool struct{}

func NewPDF() *PDFTool { return &PDFTool{} }

func (p *PDFTool) Name() string { return PDFParser }

func (p *PDFTool) Description() string {
	return "Extracts text content from a PDF document given a file path or base64 data."
}

func (p *PDFTool) Run(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("pdf_parser: empty input")
	}
	path, cleanup, err := resolvePDF(input)
	if err != nil {
		return "", fmt.Errorf("pdf_parser: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	f, r, err := pdfx.Open(path)
	if err != nil {
		return "", fmt.Errorf("pdf_parser: open: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	pages := total
	if pages > pdfMaxPages {
		pages = pdfMaxPages
	}
	var out strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("pdf_parser: %w", err)
		}
		txt, _ := r.Page(i).GetPlainText(nil)
		txt = strings.TrimSpace(txt)
		if txt != "" {
			out.WriteString(txt)
			out.WriteString("\n\n")
		}
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", fmt.Errorf("pdf_parser: no extractable text in %d pages", total)
	}
	return fmt.Sprintf("Extracted %d of %d pages:\n%s", pages, total, text), nil
}

// resolvePDF turns the tool input into a readable file path. Base64 payloads
// are written to a temp file because the reader wants a seekable path.
func resolvePDF(input string) (path string, cleanup func(), err error) {
	if fi, statErr := os.Stat(input); statErr == nil && !fi.IsDir() {
		if fi.Size() > pdfMaxBytes {
			return "", nil, fmt.Errorf("pdf too large: %d bytes", fi.Size())
		}
		return input, nil, nil
	}
	b64 := input
	if i := strings.Index(b64, ","); i != -1 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+1:]
	}
	buf, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", nil, fmt.Errorf("input is neither a readable file nor valid base64: %w", err)
	}
	if len(buf) > pdfMaxBytes {
		return "", nil, fmt.Errorf("pdf too large: %d bytes", len(buf))
	}
	// Concurrent sessions may each be parsing a base64 payload; every call
	// gets its own file.
	tmp, err := os.CreateTemp("", "queryforge_*.pdf")
	if err != nil {
		return "", nil, err
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}
