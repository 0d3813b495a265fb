package processing_engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	db "github.com/legalworkflow/docprocessor/internal/core/database"
	"github.com/legalworkflow/docprocessor/internal/models"
)

type fakeEnricher struct {
	calls  int
	failOn map[int]error // 1-based call number -> error
}

func (f *fakeEnricher) Enrich(ctx context.Context, chunkText string) (*models.Enrichment, error) {
	f.calls++
	if err, ok := f.failOn[f.calls]; ok {
		return nil, err
	}
	return &models.Enrichment{
		Title:      fmt.Sprintf("Title %d", f.calls),
		KeyPhrases: []string{"contract", "payment"},
	}, nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.5, 0.5, 0.5}, nil
}

type fakeIndex struct {
	uploaded []models.IndexDocument
	deleted  []string
	rejectID string
}

func (f *fakeIndex) Upload(ctx context.Context, docs []models.IndexDocument) ([]models.UploadResult, error) {
	results := make([]models.UploadResult, len(docs))
	for i, d := range docs {
		if d.ID == f.rejectID {
			results[i] = models.UploadResult{Key: d.ID, Succeeded: false, ErrorMessage: "schema mismatch"}
			continue
		}
		f.uploaded = append(f.uploaded, d)
		results[i] = models.UploadResult{Key: d.ID, Succeeded: true}
	}
	return results, nil
}

func (f *fakeIndex) DeleteByFilename(ctx context.Context, filename string) (int, error) {
	f.deleted = append(f.deleted, filename)
	return 2, nil
}

type fakeArchiver struct {
	keys []string
}

func (f *fakeArchiver) Archive(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	f.keys = append(f.keys, key)
	return "https://bucket/" + key, nil
}

func testConfig() ProcessConfig {
	return ProcessConfig{
		MaxChunkSize:    60,
		MinChunkSize:    10,
		PDFMaxChunkSize: 1500,
		PDFMinChunkSize: 200,
		PreviewChars:    200,
		EmbedDim:        3,
		CallTimeout:     5 * time.Second,
	}
}

// fiveParagraphs is sized so each paragraph becomes its own chunk under
// testConfig limits.
func fiveParagraphs() []byte {
	var paragraphs []string
	for i := 0; i < 5; i++ {
		paragraphs = append(paragraphs, fmt.Sprintf("p%d %s", i, strings.Repeat("w", 45)))
	}
	return []byte(strings.Join(paragraphs, "\n\n"))
}

func TestProcessHappyPath(t *testing.T) {
	ctx := context.Background()
	tracker := db.NewMemoryTracker()
	index := &fakeIndex{}
	p := NewDocumentProcessor(tracker, &fakeEnricher{}, &fakeEmbedder{}, index, nil, testConfig())

	result, err := p.Process(ctx, fiveParagraphs(), "contract.txt", false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != "success" {
		t.Fatalf("Status = %q", result.Status)
	}
	if result.ChunksCreated != 5 || result.SuccessfulUploads != 5 || result.FailedUploads != 0 {
		t.Fatalf("result = %+v", result)
	}
	if len(index.uploaded) != 5 {
		t.Fatalf("uploaded %d docs", len(index.uploaded))
	}

	doc, _ := tracker.GetDocumentByID(ctx, result.DocumentID)
	if doc.ProcessingStatus != models.DocStatusCompleted {
		t.Errorf("document status = %q", doc.ProcessingStatus)
	}

	chunks, _ := tracker.GetChunksByDocument(ctx, result.DocumentID)
	for i, ch := range chunks {
		if ch.UploadStatus != models.ChunkStatusSuccess {
			t.Errorf("chunk %d status = %q", i, ch.UploadStatus)
		}
		if ch.Title == "" || len(ch.KeyPhrases) == 0 {
			t.Errorf("chunk %d missing enrichment", i)
		}
	}
}

func TestProcessRecordsChunkFailureAndContinues(t *testing.T) {
	ctx := context.Background()
	tracker := db.NewMemoryTracker()
	enricher := &fakeEnricher{failOn: map[int]error{2: context.DeadlineExceeded}}
	p := NewDocumentProcessor(tracker, enricher, &fakeEmbedder{}, &fakeIndex{}, nil, testConfig())

	result, err := p.Process(ctx, fiveParagraphs(), "contract.txt", false)
	if err != nil {
		t.Fatal(err)
	}
	if result.SuccessfulUploads != 4 || result.FailedUploads != 1 {
		t.Fatalf("uploads = %d/%d, want 4/1", result.SuccessfulUploads, result.FailedUploads)
	}

	chunks, _ := tracker.GetChunksByDocument(ctx, result.DocumentID)
	if chunks[1].UploadStatus != models.ChunkStatusFailed {
		t.Fatalf("chunk 1 status = %q", chunks[1].UploadStatus)
	}
	if chunks[1].ErrorMessage == "" {
		t.Fatal("failed chunk has no error message")
	}

	doc, _ := tracker.GetDocumentByID(ctx, result.DocumentID)
	if doc.ProcessingStatus != models.DocStatusCompleted {
		t.Errorf("partial failure should still complete, status = %q", doc.ProcessingStatus)
	}
}

func TestProcessMarksDocumentFailedWhenNothingUploads(t *testing.T) {
	ctx := context.Background()
	tracker := db.NewMemoryTracker()
	enricher := &fakeEnricher{failOn: map[int]error{1: context.DeadlineExceeded}}
	cfg := testConfig()
	cfg.MaxChunkSize = 1000
	p := NewDocumentProcessor(tracker, enricher, &fakeEmbedder{}, &fakeIndex{}, nil, cfg)

	result, err := p.Process(ctx, []byte("Single paragraph of content."), "fail.txt", false)
	if err != nil {
		t.Fatal(err)
	}
	if result.SuccessfulUploads != 0 || result.FailedUploads != 1 {
		t.Fatalf("uploads = %d/%d", result.SuccessfulUploads, result.FailedUploads)
	}

	doc, _ := tracker.GetDocumentByID(ctx, result.DocumentID)
	if doc.ProcessingStatus != models.DocStatusFailed {
		t.Errorf("status = %q, want failed", doc.ProcessingStatus)
	}
}

func TestProcessSkipsDuplicateUpload(t *testing.T) {
	ctx := context.Background()
	tracker := db.NewMemoryTracker()
	index := &fakeIndex{}
	p := NewDocumentProcessor(tracker, &fakeEnricher{}, &fakeEmbedder{}, index, nil, testConfig())

	first, err := p.Process(ctx, fiveParagraphs(), "contract.txt", false)
	if err != nil {
		t.Fatal(err)
	}

	second, err := p.Process(ctx, fiveParagraphs(), "contract.txt", false)
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != "skipped" {
		t.Fatalf("Status = %q, want skipped", second.Status)
	}
	if second.DocumentID != first.DocumentID {
		t.Fatal("duplicate resolved to different document")
	}
	if len(index.uploaded) != 5 {
		t.Fatalf("duplicate triggered uploads: %d total", len(index.uploaded))
	}
	if len(index.deleted) != 0 {
		t.Fatal("skip should not touch the index")
	}
}

func TestProcessForceReindexReplacesChunks(t *testing.T) {
	ctx := context.Background()
	tracker := db.NewMemoryTracker()
	index := &fakeIndex{}
	p := NewDocumentProcessor(tracker, &fakeEnricher{}, &fakeEmbedder{}, index, nil, testConfig())

	first, err := p.Process(ctx, fiveParagraphs(), "contract.txt", false)
	if err != nil {
		t.Fatal(err)
	}

	second, err := p.Process(ctx, fiveParagraphs(), "contract.txt", true)
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != "success" {
		t.Fatalf("Status = %q", second.Status)
	}
	if len(index.deleted) != 1 || index.deleted[0] != "contract.txt" {
		t.Fatalf("deleted = %v, want [contract.txt]", index.deleted)
	}

	chunks, _ := tracker.GetChunksByDocument(ctx, first.DocumentID)
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks after reindex, got %d", len(chunks))
	}
}

func TestProcessSubstitutesZeroVectorOnEmbedFailure(t *testing.T) {
	ctx := context.Background()
	tracker := db.NewMemoryTracker()
	index := &fakeIndex{}
	cfg := testConfig()
	cfg.MaxChunkSize = 1000
	p := NewDocumentProcessor(tracker, &fakeEnricher{}, &fakeEmbedder{err: errors.New("quota exceeded")}, index, nil, cfg)

	result, err := p.Process(ctx, []byte("A single paragraph of content."), "embed.txt", false)
	if err != nil {
		t.Fatal(err)
	}
	if result.SuccessfulUploads != 1 {
		t.Fatalf("embedding failure must not fail the chunk: %+v", result)
	}
	if len(index.uploaded) != 1 {
		t.Fatal("no document uploaded")
	}

	emb := index.uploaded[0].Embedding
	if len(emb) != cfg.EmbedDim {
		t.Fatalf("embedding dim = %d, want %d", len(emb), cfg.EmbedDim)
	}
	for _, v := range emb {
		if v != 0 {
			t.Fatal("fallback embedding is not a zero vector")
		}
	}
}

func TestProcessIndexDocumentShape(t *testing.T) {
	ctx := context.Background()
	tracker := db.NewMemoryTracker()
	index := &fakeIndex{}
	cfg := testConfig()
	cfg.MaxChunkSize = 1000
	p := NewDocumentProcessor(tracker, &fakeEnricher{}, &fakeEmbedder{}, index, nil, cfg)

	_, err := p.Process(ctx, []byte("First sentence here. Second sentence follows."), "Legal Doc #1.txt", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(index.uploaded) != 1 {
		t.Fatalf("uploaded %d docs", len(index.uploaded))
	}

	doc := index.uploaded[0]
	if doc.ID != "legal_doc__1_1" {
		t.Errorf("ID = %q", doc.ID)
	}
	if doc.ParagraphID != "1" {
		t.Errorf("ParagraphID = %q", doc.ParagraphID)
	}
	if doc.Filename != "Legal Doc #1.txt" {
		t.Errorf("Filename = %q", doc.Filename)
	}
	if doc.Summary != "First sentence here." {
		t.Errorf("Summary = %q", doc.Summary)
	}
	if doc.Language != "en" || !doc.IsCompliant {
		t.Errorf("defaults not applied: %+v", doc)
	}
}

func TestProcessRejectedUploadMarksChunkFailed(t *testing.T) {
	ctx := context.Background()
	tracker := db.NewMemoryTracker()
	index := &fakeIndex{rejectID: "reject_1"}
	cfg := testConfig()
	cfg.MaxChunkSize = 1000
	p := NewDocumentProcessor(tracker, &fakeEnricher{}, &fakeEmbedder{}, index, nil, cfg)

	result, err := p.Process(ctx, []byte("Content that will be rejected."), "reject.txt", false)
	if err != nil {
		t.Fatal(err)
	}
	if result.FailedUploads != 1 || result.SuccessfulUploads != 0 {
		t.Fatalf("uploads = %d/%d", result.SuccessfulUploads, result.FailedUploads)
	}

	chunks, _ := tracker.GetChunksByDocument(ctx, result.DocumentID)
	if !strings.Contains(chunks[0].ErrorMessage, "schema mismatch") {
		t.Errorf("error message = %q", chunks[0].ErrorMessage)
	}
}

func TestProcessArchivesFirstUploadOnly(t *testing.T) {
	ctx := context.Background()
	tracker := db.NewMemoryTracker()
	archiver := &fakeArchiver{}
	p := NewDocumentProcessor(tracker, &fakeEnricher{}, &fakeEmbedder{}, &fakeIndex{}, archiver, testConfig())

	first, err := p.Process(ctx, fiveParagraphs(), "contract.txt", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(archiver.keys) != 1 {
		t.Fatalf("archived %d objects, want 1", len(archiver.keys))
	}

	doc, _ := tracker.GetDocumentByID(ctx, first.DocumentID)
	want := doc.FileHash + "/contract.txt"
	if archiver.keys[0] != want {
		t.Errorf("archive key = %q, want %q", archiver.keys[0], want)
	}

	if _, err := p.Process(ctx, fiveParagraphs(), "contract.txt", true); err != nil {
		t.Fatal(err)
	}
	if len(archiver.keys) != 1 {
		t.Fatal("reindex archived the upload again")
	}
}

func TestProcessEmptyDocumentFails(t *testing.T) {
	ctx := context.Background()
	p := NewDocumentProcessor(db.NewMemoryTracker(), &fakeEnricher{}, &fakeEmbedder{}, &fakeIndex{}, nil, testConfig())

	_, err := p.Process(ctx, []byte("   \n\n  "), "empty.txt", false)
	if err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	text := strings.Repeat("é", 200) // 2 bytes per rune
	got := truncate(text, 199)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate produced invalid UTF-8: %q", got[len(got)-4:])
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("got = %q, want ellipsis suffix", got)
	}
	if len(got) > 199+3 {
		t.Errorf("len = %d, exceeds cap", len(got))
	}
	if truncate("short", 100) != "short" {
		t.Error("short input must pass through untouched")
	}
}

func TestFirstSentenceMultibyte(t *testing.T) {
	text := strings.Repeat("ü", 120) // no sentence break, 240 bytes
	got := firstSentence(text)
	if !utf8.ValidString(got) {
		t.Fatalf("firstSentence produced invalid UTF-8: %q", got)
	}
}

func TestProcessPreviewIsValidUTF8(t *testing.T) {
	ctx := context.Background()
	tracker := db.NewMemoryTracker()
	cfg := testConfig()
	cfg.MaxChunkSize = 1000
	cfg.PreviewChars = 5 // lands mid-rune in the content below
	p := NewDocumentProcessor(tracker, &fakeEnricher{}, &fakeEmbedder{}, &fakeIndex{}, nil, cfg)

	result, err := p.Process(ctx, []byte(strings.Repeat("é", 40)+"."), "accents.txt", false)
	if err != nil {
		t.Fatal(err)
	}

	doc, _ := tracker.GetDocumentByID(ctx, result.DocumentID)
	if !utf8.ValidString(doc.ContentPreview) {
		t.Fatalf("content preview is invalid UTF-8: %q", doc.ContentPreview)
	}
}

func TestSanitizeDocumentKey(t *testing.T) {
	cases := map[string]string{
		"Legal Doc #1.txt":    "legal_doc__1",
		"contract.pdf":        "contract",
		"/tmp/Nested/File.md": "file",
		"UPPER-case_ok.txt":   "upper-case_ok",
	}
	for in, want := range cases {
		if got := sanitizeDocumentKey(in); got != want {
			t.Errorf("sanitizeDocumentKey(%q) = %q, want %q", in, got, want)
		}
	}
}
