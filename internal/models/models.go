package models

import (
	"time"
)

// Document processing statuses.
const (
	DocStatusPending   = "pending"
	DocStatusCompleted = "completed"
	DocStatusFailed    = "failed"
)

// Chunk upload statuses.
const (
	ChunkStatusPending = "pending"
	ChunkStatusSuccess = "success"
	ChunkStatusFailed  = "failed"
)

// Document represents one uploaded source document. FileHash is the SHA-256
// digest of the raw bytes and is unique: re-uploading identical bytes resolves
// to the existing row instead of reprocessing.
type Document struct {
	ID               string     `db:"id" json:"id"`
	Filename         string     `db:"filename" json:"filename"`
	FileSize         int64      `db:"file_size" json:"file_size"`
	FileHash         string     `db:"file_hash" json:"file_hash"`
	ContentPreview   string     `db:"content_preview" json:"content_preview"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	ProcessedAt      *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	ProcessingStatus string     `db:"processing_status" json:"processing_status"`
}

// Chunk is one bounded slice of a document's extracted text. ChunkIndex is
// zero-based and contiguous within the document; ChunkSize equals
// len(ChunkContent). Title/KeyPhrases/Embedding are filled after enrichment.
type Chunk struct {
	ID           string    `db:"id" json:"id"`
	DocumentID   string    `db:"document_id" json:"document_id"`
	ChunkIndex   int       `db:"chunk_index" json:"chunk_index"`
	ChunkContent string    `db:"chunk_content" json:"chunk_content"`
	ChunkSize    int       `db:"chunk_size" json:"chunk_size"`
	ChunkHash    string    `db:"chunk_hash" json:"chunk_hash"`
	Title        string    `db:"title" json:"title,omitempty"`
	KeyPhrases   []string  `db:"key_phrases" json:"key_phrases,omitempty"`
	Embedding    []float32 `db:"embedding" json:"-"`
	UploadStatus string    `db:"upload_status" json:"upload_status"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ProcessingSession is one end-to-end attempt to chunk, enrich and index a
// document. SessionEnd stays nil while chunks are in flight; once set,
// SuccessfulChunks+FailedChunks equals TotalChunks.
type ProcessingSession struct {
	ID                    string     `db:"id" json:"id"`
	DocumentID            string     `db:"document_id" json:"document_id"`
	SessionStart          time.Time  `db:"session_start" json:"session_start"`
	SessionEnd            *time.Time `db:"session_end" json:"session_end,omitempty"`
	TotalChunks           int        `db:"total_chunks" json:"total_chunks"`
	SuccessfulChunks      int        `db:"successful_chunks" json:"successful_chunks"`
	FailedChunks          int        `db:"failed_chunks" json:"failed_chunks"`
	ProcessingTimeSeconds float64    `db:"processing_time_seconds" json:"processing_time_seconds"`
}

// TrackerStats are read-only aggregates over the tracker store.
type TrackerStats struct {
	TotalDocuments int     `json:"total_documents"`
	TotalChunks    int     `json:"total_chunks"`
	FailedChunks   int     `json:"failed_chunks"`
	AvgChunkSize   float64 `json:"avg_chunk_size"`
}

// Enrichment is the AI-derived metadata for one chunk.
type Enrichment struct {
	Title      string   `json:"title"`
	KeyPhrases []string `json:"keyphrases"`
}

// IndexDocument is the record shape the search index accepts. Field names
// follow the target index schema.
type IndexDocument struct {
	ID                     string    `json:"id"`
	Title                  string    `json:"title"`
	Paragraph              string    `json:"paragraph"`
	Summary                string    `json:"summary"`
	KeyPhrases             []string  `json:"keyphrases"`
	Filename               string    `json:"filename"`
	ParagraphID            string    `json:"ParagraphId"`
	Date                   string    `json:"date"`
	Group                  []string  `json:"group"`
	Department             string    `json:"department"`
	Language               string    `json:"language"`
	IsCompliant            bool      `json:"isCompliant"`
	IrrelevantCollection   []string  `json:"IrrelevantCollection"`
	NonCompliantCollection []string  `json:"NonCompliantCollection"`
	CompliantCollection    []string  `json:"CompliantCollection"`
	Embedding              []float32 `json:"embedding"`
}

// UploadResult reports the index service's verdict for one document.
type UploadResult struct {
	Key          string `json:"key"`
	Succeeded    bool   `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// ChunkDetail is the per-chunk slice of the aggregate HTTP response. Content
// is truncated for transport; ContentSize keeps the real length.
type ChunkDetail struct {
	ChunkID     string   `json:"chunk_id"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	ContentSize int      `json:"content_size"`
	KeyPhrases  []string `json:"keyphrases"`
	Status      string   `json:"status"`
	Error       string   `json:"error,omitempty"`
}

// ProcessResult is the aggregate outcome of processing one document. Partial
// success (some failed uploads) is a normal, reportable outcome.
type ProcessResult struct {
	Status            string        `json:"status"`
	Message           string        `json:"message"`
	Filename          string        `json:"filename"`
	DocumentID        string        `json:"document_id"`
	ChunksCreated     int           `json:"chunks_created"`
	SuccessfulUploads int           `json:"successful_uploads"`
	FailedUploads     int           `json:"failed_uploads"`
	ChunkDetails      []ChunkDetail `json:"chunk_details,omitempty"`
}
