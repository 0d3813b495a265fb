package processing_engine

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"

	"github.com/legalworkflow/docprocessor/internal/core"
)

// ExtractedText is the result of text extraction. Encoding records which
// decode attempt succeeded for the plain-text family; Notes carries per-page
// diagnostics for PDFs.
type ExtractedText struct {
	Text     string
	Format   Format
	Encoding string
	Pages    int
	Notes    []string
}

// TextExtractor turns raw file bytes into plain text, dispatching on the
// declared filename extension. It is a pure function over its input; no
// temp files, no shared state.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract branches by format. Unsupported formats never fail: they yield a
// short diagnostic placeholder so downstream chunking still produces at
// least one chunk.
func (e *TextExtractor) Extract(raw []byte, filename string) (*ExtractedText, error) {
	format := DetectFormat(filename)
	switch format {
	case FormatPlainText:
		return e.extractPlainText(raw), nil
	case FormatPDF:
		return e.extractPDF(raw)
	case FormatWord:
		return e.extractWord(raw, filename)
	default:
		logrus.WithField("filename", filename).Warn("unknown file type, using binary placeholder")
		return &ExtractedText{
			Text:   fmt.Sprintf("Binary file content (%d bytes)", len(raw)),
			Format: FormatUnsupported,
		}, nil
	}
}

// extractPlainText runs the ordered decode attempts: UTF-8 first, then
// Latin-1. Latin-1 maps every byte to the code point of the same value, so
// the fallback never drops bytes.
func (e *TextExtractor) extractPlainText(raw []byte) *ExtractedText {
	if utf8.Valid(raw) {
		return &ExtractedText{Text: string(raw), Format: FormatPlainText, Encoding: "utf-8"}
	}
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return &ExtractedText{Text: string(runes), Format: FormatPlainText, Encoding: "latin-1"}
}

// extractPDF walks the document page by page, prefixing each page's text
// with a marker so the chunker can realign chunk boundaries to pages. Pages
// with no extractable text (image-only, encrypted) get a diagnostic note and
// extraction continues; only a fully empty document is an error.
func (e *TextExtractor) extractPDF(raw []byte) (*ExtractedText, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	var notes []string
	total := reader.NumPage()

	for n := 1; n <= total; n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			notes = append(notes, fmt.Sprintf("page %d: not readable", n))
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			notes = append(notes, fmt.Sprintf("page %d: %v", n, err))
			continue
		}
		if strings.TrimSpace(pageText) == "" {
			notes = append(notes, fmt.Sprintf("page %d: no extractable text", n))
			continue
		}
		fmt.Fprintf(&b, "\n--- Page %d ---\n", n)
		b.WriteString(pageText)
		b.WriteString("\n")
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, fmt.Errorf("pdf with %d pages: %w", total, core.ErrNoExtractableText)
	}
	return &ExtractedText{Text: text, Format: FormatPDF, Pages: total, Notes: notes}, nil
}

// extractWord handles .docx through docconv. Legacy .doc/.rtf need external
// converters we do not ship, so they fall back to a labeled placeholder the
// same way unsupported binaries do.
func (e *TextExtractor) extractWord(raw []byte, filename string) (*ExtractedText, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".docx") {
		return &ExtractedText{
			Text:   fmt.Sprintf("Word document content (%d bytes) - text extraction not available", len(raw)),
			Format: FormatWord,
		}, nil
	}

	text, _, err := docconv.ConvertDocx(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("convert docx: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("docx: %w", core.ErrNoExtractableText)
	}
	return &ExtractedText{Text: normalizeParagraphs(text), Format: FormatWord}, nil
}

// normalizeParagraphs collapses runs of blank lines into single paragraph
// breaks so the chunker sees consistent boundaries.
func normalizeParagraphs(text string) string {
	lines := strings.Split(text, "\n")
	var paragraphs []string
	var current []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(current) > 0 {
				paragraphs = append(paragraphs, strings.Join(current, " "))
				current = current[:0]
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, strings.Join(current, " "))
	}
	return strings.Join(paragraphs, "\n\n")
}
