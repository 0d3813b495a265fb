package processing_engine

import (
	"path/filepath"
	"strings"
)

// Format is the closed set of document families the extractor dispatches
// over. Adding a format means adding a variant and a handler in the
// extractor, not threading conditionals through call sites.
type Format int

const (
	FormatPlainText Format = iota
	FormatPDF
	FormatWord
	FormatUnsupported
)

func (f Format) String() string {
	switch f {
	case FormatPlainText:
		return "plaintext"
	case FormatPDF:
		return "pdf"
	case FormatWord:
		return "word"
	default:
		return "unsupported"
	}
}

// DetectFormat resolves the format from the filename extension,
// case-insensitively. Unknown extensions map to FormatUnsupported, which the
// extractor handles fail-soft.
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".json", ".csv", ".log":
		return FormatPlainText
	case ".pdf":
		return FormatPDF
	case ".docx", ".doc", ".rtf":
		return FormatWord
	default:
		return FormatUnsupported
	}
}

// ContentType returns the MIME type used when archiving raw uploads.
func (f Format) ContentType() string {
	switch f {
	case FormatPlainText:
		return "text/plain"
	case FormatPDF:
		return "application/pdf"
	case FormatWord:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
