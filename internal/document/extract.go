package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Static errors for document extraction.
var (
	// ErrSourceRequired is returned when no source document path is provided.
	ErrSourceRequired = errors.New("document: source path is required")
	// ErrSourceNotFound is returned when the source document does not exist.
	ErrSourceNotFound = errors.New("document: source file not found")
	// ErrNoPages is returned when extraction produces no pages.
	ErrNoPages = errors.New("document: no pages extracted")
)

// Extractor pulls per-slide text and page images out of a PDF document
// using the poppler command line tools.
type Extractor struct {
	// pdfToTextPath is the path to the pdftotext binary. Defaults to "pdftotext".
	pdfToTextPath string
	// pdfToPpmPath is the path to the pdftoppm binary. Defaults to "pdftoppm".
	pdfToPpmPath string
}

// NewExtractor creates an Extractor. Empty binary paths fall back to
// resolution via PATH.
func NewExtractor(pdfToTextPath, pdfToPpmPath string) *Extractor {
	if pdfToTextPath == "" {
		pdfToTextPath = "pdftotext"
	}
	if pdfToPpmPath == "" {
		pdfToPpmPath = "pdftoppm"
	}
	return &Extractor{
		pdfToTextPath: pdfToTextPath,
		pdfToPpmPath:  pdfToPpmPath,
	}
}

// ExtractText extracts the text of each page of the PDF at srcPath.
// The returned slice has one entry per page, in page order. Pages with
// no text content are kept as empty strings so indices stay aligned
// with the rendered page images.
func (e *Extractor) ExtractText(ctx context.Context, srcPath string) ([]string, error) {
	if srcPath == "" {
		return nil, ErrSourceRequired
	}
	if _, err := os.Stat(srcPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, srcPath)
	}

	// "-" writes to stdout; pdftotext separates pages with form feeds.
	// #nosec G204 - binary path is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.pdfToTextPath, "-layout", srcPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pdftotext cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("pdftotext failed: %w, stderr: %s", err, stderr.String())
	}

	pages := splitPages(stdout.String())
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	return pages, nil
}

// RenderImages renders each page of the PDF at srcPath to a PNG file
// under outDir and returns the image paths in page order.
func (e *Extractor) RenderImages(ctx context.Context, srcPath, outDir string) ([]string, error) {
	if srcPath == "" {
		return nil, ErrSourceRequired
	}
	if _, err := os.Stat(srcPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, srcPath)
	}
	if err := os.MkdirAll(outDir, 0750); err != nil {
		return nil, fmt.Errorf("document: create output dir: %w", err)
	}

	prefix := filepath.Join(outDir, "slide")

	// pdftoppm writes one PNG per page as <prefix>-<n>.png.
	// #nosec G204 - binary path is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.pdfToPpmPath, "-png", "-r", "150", srcPath, prefix)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pdftoppm cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("pdftoppm failed: %w, stderr: %s", err, stderr.String())
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("document: glob rendered pages: %w", err)
	}
	if len(matches) == 0 {
		return nil, ErrNoPages
	}

	// pdftoppm zero-pads page numbers to a fixed width for a given
	// document, so lexicographic order matches page order.
	sort.Strings(matches)
	return matches, nil
}

// splitPages splits pdftotext output on form feed markers into one
// string per page, trimming surrounding whitespace from each page.
func splitPages(raw string) []string {
	parts := strings.Split(raw, "\f")
	// pdftotext emits a trailing form feed after the last page.
	if len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}

	pages := make([]string, len(parts))
	for i, p := range parts {
		pages[i] = strings.TrimSpace(p)
	}
	return pages
}
