package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/legalworkflow/docprocessor/internal/core"
	"github.com/legalworkflow/docprocessor/internal/models"
)

type GeminiEnricher struct {
	client    *genai.Client
	modelName string
}

var _ core.Enricher = (*GeminiEnricher)(nil)

func NewGeminiEnricher(ctx context.Context, apiKey, modelName string) (*GeminiEnricher, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiEnricher{client: cl, modelName: modelName}, nil
}

func (g *GeminiEnricher) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

const keyPhrasePrompt = `You are an expert at extracting key phrases from legal documents.

Analyze the provided text and extract 5-8 key phrases that are most important for search and categorization. Focus on:

For Legal Documents:
- Legal terms and concepts
- Important names, entities, companies
- Dates, deadlines, time periods
- Contract clauses and obligations
- Monetary amounts or percentages
- Jurisdictions or legal references

For General Documents:
- Main topics and themes
- Important entities or names
- Key concepts and terminology
- Action items or requirements
- Technical terms specific to the domain

Return ONLY a simple JSON array of key phrases as strings. No explanations.

Example output format:
["phrase1", "phrase2", "phrase3", "phrase4", "phrase5"]

Text to analyze:
%s`

// Enrich derives a title and key phrases for one chunk. A cancelled or
// timed-out context is propagated so the caller records the chunk as
// failed; every other model hiccup degrades to the lexicon fallback so a
// flaky model never fails a chunk on its own.
func (g *GeminiEnricher) Enrich(ctx context.Context, chunkText string) (*models.Enrichment, error) {
	phrases, err := g.extractKeyPhrases(ctx, chunkText)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("enrichment call: %w", ctx.Err())
		}
		logrus.WithError(err).Warn("key phrase extraction failed, using lexicon fallback")
		phrases = fallbackKeyPhrases(chunkText)
	}

	title, err := g.generateTitle(ctx, chunkText)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("enrichment call: %w", ctx.Err())
		}
		logrus.WithError(err).Warn("title generation failed")
		title = ""
	}

	return &models.Enrichment{Title: title, KeyPhrases: phrases}, nil
}

// capPrompt limits prompt input to n bytes without splitting a rune.
func capPrompt(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}

func (g *GeminiEnricher) extractKeyPhrases(ctx context.Context, text string) ([]string, error) {
	text = capPrompt(text, 2000)

	m := g.client.GenerativeModel(g.modelName)
	m.SetTemperature(0.2)
	m.SetMaxOutputTokens(200)
	m.ResponseMIMEType = "application/json"

	resp, err := m.GenerateContent(ctx, genai.Text(fmt.Sprintf(keyPhrasePrompt, text)))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	raw := collectText(resp)
	phrases, err := parseKeyPhrases(raw)
	if err != nil {
		return nil, err
	}
	if len(phrases) == 0 {
		return []string{"document", "content"}, nil
	}
	return phrases, nil
}

func (g *GeminiEnricher) generateTitle(ctx context.Context, text string) (string, error) {
	text = capPrompt(text, 200)

	m := g.client.GenerativeModel(g.modelName)
	m.SetTemperature(0.1)
	m.SetMaxOutputTokens(20)

	prompt := fmt.Sprintf("Create a short descriptive title (3-6 words) for this legal text: %s...", text)
	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return strings.Trim(strings.TrimSpace(collectText(resp)), `"`), nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// parseKeyPhrases accepts the model's JSON in the shapes it actually
// produces: a bare array, or an object wrapping one under a known key.
func parseKeyPhrases(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty model response")
	}

	var arr []string
	if err := json.Unmarshal([]byte(raw), &arr); err == nil {
		return cleanPhrases(arr), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("unexpected model response: %w", err)
	}
	for _, key := range []string{"keyphrases", "phrases", "key_phrases"} {
		if v, ok := obj[key]; ok {
			if err := json.Unmarshal(v, &arr); err == nil {
				return cleanPhrases(arr), nil
			}
		}
	}
	if len(obj) == 1 {
		for _, v := range obj {
			if err := json.Unmarshal(v, &arr); err == nil {
				return cleanPhrases(arr), nil
			}
		}
	}
	return nil, fmt.Errorf("no key phrase array in model response")
}

func cleanPhrases(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
		if len(out) == 8 {
			break
		}
	}
	return out
}

var legalTerms = []string{
	"contract", "agreement", "terms", "conditions", "obligations", "rights",
	"payment", "delivery", "warranty", "liability", "indemnification",
	"confidentiality", "intellectual property", "termination", "breach",
	"damages", "jurisdiction", "governing law", "dispute resolution",
}

var capitalizedWord = regexp.MustCompile(`\b[A-Z][a-z]+\b`)

// fallbackKeyPhrases scans for known legal terms and leading capitalized
// words when the model is unavailable.
func fallbackKeyPhrases(text string) []string {
	var found []string
	lower := strings.ToLower(text)
	for _, term := range legalTerms {
		if strings.Contains(lower, term) {
			found = append(found, term)
		}
	}

	words := capitalizedWord.FindAllString(text, 3)
	for _, w := range words {
		if len(w) > 0 && unicode.IsUpper(rune(w[0])) {
			found = append(found, w)
		}
	}

	if len(found) == 0 {
		return []string{"document", "content"}
	}
	if len(found) > 6 {
		found = found[:6]
	}
	return found
}
