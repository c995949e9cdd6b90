// Package extract turns files on disk into the content elements the
// ingestion pipeline chunks and embeds. PDFs go through a plain-text
// page extractor; everything else is read as UTF-8 text.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/DreamCats/kbindex/internal/kb"
)

// Fallback extracts text content without any external parsing service.
// It never produces tables, images or formulas; those require a richer
// extractor.
type Fallback struct{}

func NewFallback() *Fallback {
	return &Fallback{}
}

// Extract reads a file and returns its content elements with a summary
// of what was found. A parseable file with no text yields zero elements,
// not an error.
func (f *Fallback) Extract(ctx context.Context, path string) ([]kb.ContentElement, kb.ExtractSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, kb.ExtractSummary{}, err
	}

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		elements, summary, err := extractPDF(path)
		if err == nil {
			return elements, summary, nil
		}
		// Fall through and try the file as plain text.
	}

	return extractPlainText(path)
}

func extractPlainText(path string) ([]kb.ContentElement, kb.ExtractSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kb.ExtractSummary{}, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, kb.ExtractSummary{}, nil
	}

	elements := []kb.ContentElement{{Kind: kb.ElementText, Text: text}}
	summary := kb.ExtractSummary{
		HasText:       true,
		ElementCounts: map[string]int{string(kb.ElementText): 1},
	}
	return elements, summary, nil
}

func extractPDF(path string) ([]kb.ContentElement, kb.ExtractSummary, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, kb.ExtractSummary{}, fmt.Errorf("open pdf %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	var elements []kb.ContentElement
	pageCount := reader.NumPage()

	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		// GetPlainText writes into the font map; it must be non-nil.
		text, err := page.GetPlainText(make(map[string]*pdf.Font))
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		elements = append(elements, kb.ContentElement{
			Kind: kb.ElementText,
			Text: text,
			Page: i,
		})
	}

	summary := kb.ExtractSummary{
		HasText:   len(elements) > 0,
		PageCount: pageCount,
	}
	if len(elements) > 0 {
		summary.ElementCounts = map[string]int{string(kb.ElementText): len(elements)}
	}
	return elements, summary, nil
}
