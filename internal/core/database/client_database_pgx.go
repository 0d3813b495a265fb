package db

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/legalworkflow/docprocessor/internal/config"
	"github.com/legalworkflow/docprocessor/internal/core"
	"github.com/legalworkflow/docprocessor/internal/models"
)

// DatabaseClient is the Postgres-backed Tracker.
type DatabaseClient struct {
	db *sql.DB
}

var _ core.Tracker = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// UpsertDocument inserts a pending Document keyed by the content hash. A
// concurrent identical upload loses the insert race on the unique file_hash
// constraint and falls through to reading the winner's row.
func (c *DatabaseClient) UpsertDocument(ctx context.Context, raw []byte, filename, contentPreview string) (*models.Document, bool, error) {
	fileHash := hashBytes(raw)

	doc := &models.Document{
		ID:               uuid.NewString(),
		Filename:         filename,
		FileSize:         int64(len(raw)),
		FileHash:         fileHash,
		ContentPreview:   contentPreview,
		CreatedAt:        time.Now().UTC(),
		ProcessingStatus: models.DocStatusPending,
	}

	const q = `
		INSERT INTO documents (id, filename, file_size, file_hash, content_preview, created_at, processing_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.Filename, doc.FileSize, doc.FileHash, doc.ContentPreview, doc.CreatedAt, doc.ProcessingStatus)
	if err == nil {
		return doc, false, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, err
	}

	existing, err := c.getDocumentByHash(ctx, fileHash)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("document with hash %s vanished after conflict", fileHash)
	}
	return existing, true, nil
}

const documentColumns = `id, filename, file_size, file_hash, content_preview, created_at, processed_at, processing_status`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID, &d.Filename, &d.FileSize, &d.FileHash, &d.ContentPreview,
		&d.CreatedAt, &d.ProcessedAt, &d.ProcessingStatus,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) getDocumentByHash(ctx context.Context, fileHash string) (*models.Document, error) {
	d, err := scanDocument(c.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE file_hash = $1`, fileHash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	d, err := scanDocument(c.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (c *DatabaseClient) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) MarkDocumentProcessed(ctx context.Context, documentID, status string) error {
	const q = `
		UPDATE documents
		SET processing_status = $2, processed_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, documentID, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", documentID)
	}
	return nil
}

// RecordChunks inserts chunks in a single transaction with sequential
// zero-based indices.
func (c *DatabaseClient) RecordChunks(ctx context.Context, documentID string, chunkTexts []string) ([]models.Chunk, error) {
	if len(chunkTexts) == 0 {
		return nil, nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}

	const q = `
		INSERT INTO chunks
			(id, document_id, chunk_index, chunk_content, chunk_size, chunk_hash, upload_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	defer stmt.Close()

	chunks := make([]models.Chunk, 0, len(chunkTexts))
	for i, text := range chunkTexts {
		ch := models.Chunk{
			ID:           uuid.NewString(),
			DocumentID:   documentID,
			ChunkIndex:   i,
			ChunkContent: text,
			ChunkSize:    len(text),
			ChunkHash:    hashBytes([]byte(text)),
			UploadStatus: models.ChunkStatusPending,
			CreatedAt:    time.Now().UTC(),
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.ChunkIndex, ch.ChunkContent, ch.ChunkSize, ch.ChunkHash, ch.UploadStatus, ch.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		chunks = append(chunks, ch)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (c *DatabaseClient) ReplaceChunks(ctx context.Context, documentID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	return err
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.Chunk, error) {
	const q = `
		SELECT id, document_id, chunk_index, chunk_content, chunk_size, chunk_hash,
		       COALESCE(title, ''), key_phrases, upload_status, COALESCE(error_message, ''), created_at
		FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var ch models.Chunk
		var phrases sql.NullString
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &ch.ChunkContent, &ch.ChunkSize, &ch.ChunkHash,
			&ch.Title, &phrases, &ch.UploadStatus, &ch.ErrorMessage, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		if phrases.Valid && phrases.String != "" {
			if err := json.Unmarshal([]byte(phrases.String), &ch.KeyPhrases); err != nil {
				return nil, fmt.Errorf("decode key phrases for chunk %s: %w", ch.ID, err)
			}
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// MarkChunkResult sets the terminal upload status and bumps the counter of
// the document's open session in the same transaction. The increment is a
// single UPDATE so concurrent chunk results never lose updates.
func (c *DatabaseClient) MarkChunkResult(ctx context.Context, chunkID string, success bool, errorMessage string) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	status := models.ChunkStatusSuccess
	counter := "successful_chunks"
	if !success {
		status = models.ChunkStatusFailed
		counter = "failed_chunks"
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE chunks SET upload_status = $2, error_message = NULLIF($3, '') WHERE id = $1`,
		chunkID, status, errorMessage)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("chunk not found: %s", chunkID)
	}

	q := fmt.Sprintf(`
		UPDATE processing_sessions
		SET %s = %s + 1
		WHERE document_id = (SELECT document_id FROM chunks WHERE id = $1)
		  AND session_end IS NULL
	`, counter, counter)
	if _, err := tx.ExecContext(ctx, q, chunkID); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (c *DatabaseClient) RecordEnrichment(ctx context.Context, chunkID, title string, keyPhrases []string, embedding []float32) error {
	phrases, err := json.Marshal(keyPhrases)
	if err != nil {
		return fmt.Errorf("encode key phrases: %w", err)
	}
	const q = `
		UPDATE chunks
		SET title = $2, key_phrases = $3, embedding = $4
		WHERE id = $1
	`
	vec := pgvector.NewVector(embedding)
	_, err = c.db.ExecContext(ctx, q, chunkID, title, string(phrases), vec)
	return err
}

func (c *DatabaseClient) StartSession(ctx context.Context, documentID string, totalChunks int) (*models.ProcessingSession, error) {
	session := &models.ProcessingSession{
		ID:           uuid.NewString(),
		DocumentID:   documentID,
		SessionStart: time.Now().UTC(),
		TotalChunks:  totalChunks,
	}
	const q = `
		INSERT INTO processing_sessions (id, document_id, session_start, total_chunks)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := c.db.ExecContext(ctx, q, session.ID, session.DocumentID, session.SessionStart, session.TotalChunks); err != nil {
		return nil, err
	}
	return session, nil
}

// CloseSession sets session_end exactly once. Any chunk of the document
// still pending makes it fail with ErrIncompleteSession: the caller closed
// the session out of order.
func (c *DatabaseClient) CloseSession(ctx context.Context, sessionID string) error {
	var pending int
	const checkQ = `
		SELECT COUNT(*)
		FROM chunks c
		JOIN processing_sessions s ON s.document_id = c.document_id
		WHERE s.id = $1 AND c.upload_status = $2
	`
	if err := c.db.QueryRowContext(ctx, checkQ, sessionID, models.ChunkStatusPending).Scan(&pending); err != nil {
		return err
	}
	if pending > 0 {
		return fmt.Errorf("session %s has %d pending chunks: %w", sessionID, pending, core.ErrIncompleteSession)
	}

	const q = `
		UPDATE processing_sessions
		SET session_end = now(),
		    processing_time_seconds = EXTRACT(EPOCH FROM (now() - session_start))
		WHERE id = $1 AND session_end IS NULL
	`
	res, err := c.db.ExecContext(ctx, q, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := c.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM processing_sessions WHERE id = $1)`, sessionID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("session not found: %s", sessionID)
		}
		return fmt.Errorf("session %s: %w", sessionID, core.ErrSessionClosed)
	}
	return nil
}

func (c *DatabaseClient) GetSession(ctx context.Context, sessionID string) (*models.ProcessingSession, error) {
	const q = `
		SELECT id, document_id, session_start, session_end, total_chunks,
		       successful_chunks, failed_chunks, COALESCE(processing_time_seconds, 0)
		FROM processing_sessions
		WHERE id = $1
	`
	var s models.ProcessingSession
	err := c.db.QueryRowContext(ctx, q, sessionID).Scan(
		&s.ID, &s.DocumentID, &s.SessionStart, &s.SessionEnd, &s.TotalChunks,
		&s.SuccessfulChunks, &s.FailedChunks, &s.ProcessingTimeSeconds,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *DatabaseClient) Stats(ctx context.Context) (*models.TrackerStats, error) {
	const q = `
		SELECT
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(*) FROM chunks WHERE upload_status = 'failed'),
			COALESCE((SELECT AVG(chunk_size) FROM chunks), 0)
	`
	var s models.TrackerStats
	if err := c.db.QueryRowContext(ctx, q).Scan(&s.TotalDocuments, &s.TotalChunks, &s.FailedChunks, &s.AvgChunkSize); err != nil {
		return nil, err
	}
	return &s, nil
}
