package core

import (
	"context"

	"github.com/legalworkflow/docprocessor/internal/models"
)

// Tracker defines all persistence operations over documents, chunks and
// processing sessions. It abstracts Postgres so higher layers never depend on
// a specific store; an in-memory implementation backs tests and DB-less runs.
type Tracker interface {
	// UpsertDocument hashes raw and either inserts a new pending Document or
	// returns the existing row for the same hash (existed=true). The race
	// between two identical uploads is resolved by the unique file_hash
	// constraint, not by a pre-check.
	UpsertDocument(ctx context.Context, raw []byte, filename, contentPreview string) (doc *models.Document, existed bool, err error)

	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	MarkDocumentProcessed(ctx context.Context, documentID, status string) error

	// RecordChunks inserts one pending Chunk per text with sequential
	// zero-based indices.
	RecordChunks(ctx context.Context, documentID string, chunkTexts []string) ([]models.Chunk, error)
	// ReplaceChunks deletes all chunks of a document ahead of a forced
	// reindex.
	ReplaceChunks(ctx context.Context, documentID string) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.Chunk, error)

	// MarkChunkResult sets the chunk's terminal upload status and atomically
	// increments the counter of the document's open session.
	MarkChunkResult(ctx context.Context, chunkID string, success bool, errorMessage string) error
	// RecordEnrichment stores the AI-derived title, key phrases and embedding
	// on the chunk row.
	RecordEnrichment(ctx context.Context, chunkID, title string, keyPhrases []string, embedding []float32) error

	StartSession(ctx context.Context, documentID string, totalChunks int) (*models.ProcessingSession, error)
	// CloseSession sets session_end exactly once; it fails with
	// ErrIncompleteSession while any chunk of the document is still pending.
	CloseSession(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (*models.ProcessingSession, error)

	Stats(ctx context.Context) (*models.TrackerStats, error)

	Close() error
}

// Enricher derives a title and key phrases for one chunk of text.
type Enricher interface {
	Enrich(ctx context.Context, chunkText string) (*models.Enrichment, error)
}

// Embedder produces a vector embedding for one chunk of text.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// IndexClient wraps the external search index service.
type IndexClient interface {
	// Upload sends enriched documents and reports per-document verdicts.
	Upload(ctx context.Context, docs []models.IndexDocument) ([]models.UploadResult, error)
	// DeleteByFilename removes every indexed chunk of the named file and
	// returns how many were deleted.
	DeleteByFilename(ctx context.Context, filename string) (int, error)
}

// Archiver stores a copy of the raw upload in object storage.
type Archiver interface {
	Archive(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
}
