package processing_engine

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/legalworkflow/docprocessor/internal/core"
	"github.com/legalworkflow/docprocessor/internal/models"
)

// ProcessConfig tunes the per-document pipeline.
//
// MaxChunkSize/MinChunkSize:       chunk bounds for text and word documents.
// PDFMaxChunkSize/PDFMinChunkSize: chunk bounds for PDFs (denser content).
// PreviewChars:                    length of the stored content preview.
// EmbedDim:                        embedding dimension, used for the zero
//                                  vector substituted on embedding failure.
// CallTimeout:                     bound on each external enrichment, embed
//                                  and upload call.
type ProcessConfig struct {
	MaxChunkSize    int
	MinChunkSize    int
	PDFMaxChunkSize int
	PDFMinChunkSize int
	PreviewChars    int
	EmbedDim        int
	CallTimeout     time.Duration
}

// DocumentProcessor runs one document through extract -> chunk -> track ->
// enrich -> upload, synchronously, chunk by chunk. A failed chunk is
// recorded and skipped, never fatal for the document.
type DocumentProcessor struct {
	tracker   core.Tracker
	enricher  core.Enricher
	embedder  core.Embedder
	index     core.IndexClient
	archiver  core.Archiver
	extractor *TextExtractor
	cfg       ProcessConfig
}

// NewDocumentProcessor wires the pipeline. archiver may be nil to disable
// raw-upload archival.
func NewDocumentProcessor(tracker core.Tracker, enricher core.Enricher, embedder core.Embedder, index core.IndexClient, archiver core.Archiver, cfg ProcessConfig) *DocumentProcessor {
	return &DocumentProcessor{
		tracker:   tracker,
		enricher:  enricher,
		embedder:  embedder,
		index:     index,
		archiver:  archiver,
		extractor: NewTextExtractor(),
		cfg:       cfg,
	}
}

var keyPattern = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// sanitizeDocumentKey turns a filename into a key the search index accepts.
func sanitizeDocumentKey(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return strings.ToLower(keyPattern.ReplaceAllString(base, "_"))
}

// firstSentence builds the chunk summary: the first sentence when there is
// more than one, otherwise a capped prefix.
func firstSentence(text string) string {
	if idx := strings.Index(text, ". "); idx >= 0 {
		return text[:idx+1]
	}
	return truncate(text, 100)
}

// truncate caps text at n bytes, backing off to the nearest rune start so
// the result is always valid UTF-8.
func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

// Process runs the full pipeline for one uploaded document.
//
// Extraction failure aborts the request before any chunk exists. A duplicate
// upload with forceReindex=false short-circuits with a "skipped" result.
// Per-chunk enrichment/upload failures are recorded on the chunk and counted,
// and processing continues; only tracker errors propagate.
func (p *DocumentProcessor) Process(ctx context.Context, raw []byte, filename string, forceReindex bool) (*models.ProcessResult, error) {
	log := logrus.WithField("filename", filename)

	extracted, err := p.extractor.Extract(raw, filename)
	if err != nil {
		return nil, err
	}
	log.WithField("format", extracted.Format.String()).Info("extracted document text")
	for _, note := range extracted.Notes {
		log.WithField("note", note).Warn("extraction diagnostic")
	}

	doc, existed, err := p.tracker.UpsertDocument(ctx, raw, filename, truncate(extracted.Text, p.cfg.PreviewChars))
	if err != nil {
		return nil, fmt.Errorf("upsert document: %w", err)
	}

	if existed && !forceReindex {
		log.WithField("document_id", doc.ID).Info("document already processed, skipping")
		return &models.ProcessResult{
			Status:     "skipped",
			Message:    fmt.Sprintf("document %s already processed; use force_reindex to reprocess", filename),
			Filename:   filename,
			DocumentID: doc.ID,
		}, nil
	}

	if existed && forceReindex {
		deleted, err := p.index.DeleteByFilename(ctx, filename)
		if err != nil {
			log.WithError(err).Warn("could not delete existing index entries")
		} else if deleted > 0 {
			log.WithField("deleted_chunks", deleted).Info("removed existing index entries")
		}
		if err := p.tracker.ReplaceChunks(ctx, doc.ID); err != nil {
			return nil, fmt.Errorf("replace chunks: %w", err)
		}
	}

	if !existed && p.archiver != nil {
		key := doc.FileHash + "/" + filepath.Base(filename)
		if _, err := p.archiver.Archive(ctx, key, raw, extracted.Format.ContentType()); err != nil {
			log.WithError(err).Warn("raw upload archival failed")
		}
	}

	maxSize, minSize := p.cfg.MaxChunkSize, p.cfg.MinChunkSize
	var chunkTexts []string
	if extracted.Format == FormatPDF {
		maxSize, minSize = p.cfg.PDFMaxChunkSize, p.cfg.PDFMinChunkSize
		chunkTexts = ChunkPDFText(extracted.Text, maxSize, minSize)
	} else {
		chunkTexts = ChunkText(extracted.Text, maxSize, minSize)
	}
	if len(chunkTexts) == 0 {
		return nil, fmt.Errorf("%s: %w", filename, core.ErrNoExtractableText)
	}

	chunks, err := p.tracker.RecordChunks(ctx, doc.ID, chunkTexts)
	if err != nil {
		return nil, fmt.Errorf("record chunks: %w", err)
	}

	session, err := p.tracker.StartSession(ctx, doc.ID, len(chunks))
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"session_id":  session.ID,
		"chunks":      len(chunks),
	}).Info("processing session started")

	baseKey := sanitizeDocumentKey(filename)
	result := &models.ProcessResult{
		Status:        "success",
		Filename:      filename,
		DocumentID:    doc.ID,
		ChunksCreated: len(chunks),
	}

	for i := range chunks {
		detail, ok := p.processChunk(ctx, &chunks[i], baseKey, filename, i)
		if ok {
			result.SuccessfulUploads++
		} else {
			result.FailedUploads++
		}
		result.ChunkDetails = append(result.ChunkDetails, detail)
	}

	if err := p.tracker.CloseSession(ctx, session.ID); err != nil {
		return nil, fmt.Errorf("close session: %w", err)
	}

	status := models.DocStatusCompleted
	if result.SuccessfulUploads == 0 && result.FailedUploads > 0 {
		status = models.DocStatusFailed
	}
	if err := p.tracker.MarkDocumentProcessed(ctx, doc.ID, status); err != nil {
		return nil, fmt.Errorf("mark document processed: %w", err)
	}

	result.Message = fmt.Sprintf("processed %s: %d chunks, %d uploaded, %d failed",
		filename, result.ChunksCreated, result.SuccessfulUploads, result.FailedUploads)
	log.WithFields(logrus.Fields{
		"successful_uploads": result.SuccessfulUploads,
		"failed_uploads":     result.FailedUploads,
	}).Info("processing session closed")
	return result, nil
}

// processChunk enriches, embeds and uploads a single chunk, then records the
// terminal status. The returned bool reports upload success.
func (p *DocumentProcessor) processChunk(ctx context.Context, chunk *models.Chunk, baseKey, filename string, ordinal int) (models.ChunkDetail, bool) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	detail := models.ChunkDetail{
		ChunkID:     fmt.Sprintf("%s_%d", baseKey, ordinal+1),
		Content:     truncate(chunk.ChunkContent, 500),
		ContentSize: chunk.ChunkSize,
	}

	fail := func(stage string, err error) (models.ChunkDetail, bool) {
		msg := fmt.Sprintf("%s: %v", stage, err)
		detail.Status = models.ChunkStatusFailed
		detail.Error = msg
		if terr := p.tracker.MarkChunkResult(ctx, chunk.ID, false, msg); terr != nil {
			logrus.WithError(terr).WithField("chunk_id", chunk.ID).Error("could not record chunk failure")
		}
		return detail, false
	}

	enrichment, err := p.enricher.Enrich(callCtx, chunk.ChunkContent)
	if err != nil {
		return fail("enrich", err)
	}
	if enrichment.Title == "" {
		enrichment.Title = fmt.Sprintf("Section %d", ordinal+1)
	}
	detail.Title = enrichment.Title
	detail.KeyPhrases = enrichment.KeyPhrases

	embedding, err := p.embedder.EmbedText(callCtx, chunk.ChunkContent)
	if err != nil {
		logrus.WithError(err).WithField("chunk_id", chunk.ID).Warn("embedding failed, using zero vector")
		embedding = make([]float32, p.cfg.EmbedDim)
	}

	indexDoc := models.IndexDocument{
		ID:                  detail.ChunkID,
		Title:               enrichment.Title,
		Paragraph:           chunk.ChunkContent,
		Summary:             firstSentence(chunk.ChunkContent),
		KeyPhrases:          enrichment.KeyPhrases,
		Filename:            filename,
		ParagraphID:         strconv.Itoa(ordinal + 1),
		Date:                time.Now().UTC().Format(time.RFC3339),
		Group:               []string{"legal"},
		Department:          "legal",
		Language:            "en",
		IsCompliant:         true,
		CompliantCollection: []string{strconv.Itoa(ordinal + 1)},
		Embedding:           embedding,
	}

	results, err := p.index.Upload(callCtx, []models.IndexDocument{indexDoc})
	if err != nil {
		return fail("upload", err)
	}
	if len(results) > 0 && !results[0].Succeeded {
		return fail("upload", fmt.Errorf("index rejected document: %s", results[0].ErrorMessage))
	}

	if err := p.tracker.RecordEnrichment(ctx, chunk.ID, enrichment.Title, enrichment.KeyPhrases, embedding); err != nil {
		logrus.WithError(err).WithField("chunk_id", chunk.ID).Error("could not record enrichment")
	}
	if err := p.tracker.MarkChunkResult(ctx, chunk.ID, true, ""); err != nil {
		logrus.WithError(err).WithField("chunk_id", chunk.ID).Error("could not record chunk success")
	}
	detail.Status = models.ChunkStatusSuccess
	return detail, true
}
