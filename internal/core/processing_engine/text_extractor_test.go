package processing_engine

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		filename string
		want     Format
	}{
		{"notes.txt", FormatPlainText},
		{"README.md", FormatPlainText},
		{"data.json", FormatPlainText},
		{"export.csv", FormatPlainText},
		{"server.log", FormatPlainText},
		{"contract.pdf", FormatPDF},
		{"CONTRACT.PDF", FormatPDF},
		{"report.docx", FormatWord},
		{"legacy.doc", FormatWord},
		{"memo.rtf", FormatWord},
		{"image.png", FormatUnsupported},
		{"noextension", FormatUnsupported},
	}
	for _, c := range cases {
		if got := DetectFormat(c.filename); got != c.want {
			t.Errorf("DetectFormat(%q) = %v, want %v", c.filename, got, c.want)
		}
	}
}

func TestExtractPlainTextUTF8(t *testing.T) {
	e := NewTextExtractor()
	out, err := e.Extract([]byte("Hello, world."), "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "Hello, world." {
		t.Errorf("Text = %q", out.Text)
	}
	if out.Format != FormatPlainText || out.Encoding != "utf-8" {
		t.Errorf("Format = %v, Encoding = %q", out.Format, out.Encoding)
	}
}

func TestExtractPlainTextLatin1Fallback(t *testing.T) {
	raw := []byte{'c', 'a', 'f', 0xE9} // "café" in Latin-1, invalid UTF-8
	if utf8.Valid(raw) {
		t.Fatal("fixture is unexpectedly valid UTF-8")
	}

	e := NewTextExtractor()
	out, err := e.Extract(raw, "menu.txt")
	if err != nil {
		t.Fatal(err)
	}
	if out.Encoding != "latin-1" {
		t.Errorf("Encoding = %q, want latin-1", out.Encoding)
	}
	if out.Text != "café" {
		t.Errorf("Text = %q, want café", out.Text)
	}
	if !utf8.ValidString(out.Text) {
		t.Error("fallback output is not valid UTF-8")
	}
}

func TestExtractUnsupportedUsesPlaceholder(t *testing.T) {
	e := NewTextExtractor()
	out, err := e.Extract([]byte{0x00, 0x01, 0x02, 0x03}, "blob.bin")
	if err != nil {
		t.Fatal(err)
	}
	if out.Format != FormatUnsupported {
		t.Errorf("Format = %v", out.Format)
	}
	if out.Text != "Binary file content (4 bytes)" {
		t.Errorf("Text = %q", out.Text)
	}
}

func TestExtractLegacyWordUsesPlaceholder(t *testing.T) {
	e := NewTextExtractor()
	out, err := e.Extract([]byte("old format"), "legacy.doc")
	if err != nil {
		t.Fatal(err)
	}
	if out.Format != FormatWord {
		t.Errorf("Format = %v", out.Format)
	}
	if !strings.Contains(out.Text, "text extraction not available") {
		t.Errorf("Text = %q", out.Text)
	}
}

func TestNormalizeParagraphs(t *testing.T) {
	in := "line one\nline two\n\n\n\nnext para\n"
	want := "line one line two\n\nnext para"
	if got := normalizeParagraphs(in); got != want {
		t.Errorf("normalizeParagraphs = %q, want %q", got, want)
	}
}

func TestExtractPDFRejectsGarbage(t *testing.T) {
	e := NewTextExtractor()
	if _, err := e.Extract([]byte("not a pdf"), "broken.pdf"); err == nil {
		t.Fatal("expected error for non-PDF bytes")
	}
}
