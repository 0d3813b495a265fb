package llm

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCapPromptKeepsRuneBoundaries(t *testing.T) {
	text := strings.Repeat("é", 150) // 2 bytes per rune
	got := capPrompt(text, 199)
	if !utf8.ValidString(got) {
		t.Fatalf("capPrompt produced invalid UTF-8: %q", got[len(got)-4:])
	}
	if len(got) != 198 {
		t.Errorf("len = %d, want backoff to 198", len(got))
	}
	if capPrompt("short", 200) != "short" {
		t.Error("short input must pass through untouched")
	}
}

func TestParseKeyPhrasesBareArray(t *testing.T) {
	phrases, err := parseKeyPhrases(`["payment terms", "liability", "termination"]`)
	if err != nil {
		t.Fatal(err)
	}
	if len(phrases) != 3 || phrases[0] != "payment terms" {
		t.Fatalf("phrases = %v", phrases)
	}
}

func TestParseKeyPhrasesWrappedObject(t *testing.T) {
	for _, raw := range []string{
		`{"keyphrases": ["a", "b"]}`,
		`{"phrases": ["a", "b"]}`,
		`{"key_phrases": ["a", "b"]}`,
		`{"anything": ["a", "b"]}`,
	} {
		phrases, err := parseKeyPhrases(raw)
		if err != nil {
			t.Errorf("parseKeyPhrases(%q): %v", raw, err)
			continue
		}
		if len(phrases) != 2 {
			t.Errorf("parseKeyPhrases(%q) = %v", raw, phrases)
		}
	}
}

func TestParseKeyPhrasesRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"a": 1, "b": 2}`} {
		if _, err := parseKeyPhrases(raw); err == nil {
			t.Errorf("parseKeyPhrases(%q) should fail", raw)
		}
	}
}

func TestParseKeyPhrasesCapsAndTrims(t *testing.T) {
	phrases, err := parseKeyPhrases(`[" a ", "", "b", "c", "d", "e", "f", "g", "h", "i", "j"]`)
	if err != nil {
		t.Fatal(err)
	}
	if len(phrases) != 8 {
		t.Fatalf("len = %d, want cap of 8", len(phrases))
	}
	if phrases[0] != "a" {
		t.Errorf("phrases[0] = %q, want trimmed", phrases[0])
	}
}

func TestFallbackKeyPhrasesFindsLegalTerms(t *testing.T) {
	text := "This Agreement sets the payment schedule and the liability of Acme Corporation upon termination."
	phrases := fallbackKeyPhrases(text)
	if len(phrases) == 0 || len(phrases) > 6 {
		t.Fatalf("phrases = %v", phrases)
	}

	joined := strings.Join(phrases, " ")
	if !strings.Contains(joined, "agreement") {
		t.Errorf("expected legal term in %v", phrases)
	}
}

func TestFallbackKeyPhrasesDefault(t *testing.T) {
	phrases := fallbackKeyPhrases("xyzzy 12345")
	if len(phrases) != 2 || phrases[0] != "document" {
		t.Fatalf("phrases = %v", phrases)
	}
}
