package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/tbourn/go-chatpdf-backend/internal/chunker"
)

// ErrNoText is returned when a document yields no extractable text.
var ErrNoText = errors.New("document contains no extractable text")

// Parser extracts per-page text from a local file.
type Parser interface {
	Pages(path string) ([]chunker.Page, error)
}

// PDFParser reads text-layer PDFs. Scanned pages without text are skipped.
type PDFParser struct{}

// Pages returns the plain text of every page that has any, numbered from 1.
func (PDFParser) Pages(path string) (pages []chunker.Page, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	// The reader panics on some malformed documents.
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("parse pdf: %v", rec)
		}
	}()

	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, chunker.Page{Number: i, Text: text})
	}
	if len(pages) == 0 {
		return nil, ErrNoText
	}
	return pages, nil
}
