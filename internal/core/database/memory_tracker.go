package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/legalworkflow/docprocessor/internal/core"
	"github.com/legalworkflow/docprocessor/internal/models"
)

// MemoryTracker is an in-memory Tracker with the same semantics as the
// Postgres client. It backs unit tests and DB-less local runs; state is lost
// on restart.
type MemoryTracker struct {
	mu        sync.Mutex
	documents map[string]*models.Document          // by id
	byHash    map[string]string                    // file_hash -> document id
	chunks    map[string]*models.Chunk             // by id
	sessions  map[string]*models.ProcessingSession // by id
}

var _ core.Tracker = (*MemoryTracker)(nil)

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		documents: make(map[string]*models.Document),
		byHash:    make(map[string]string),
		chunks:    make(map[string]*models.Chunk),
		sessions:  make(map[string]*models.ProcessingSession),
	}
}

func (m *MemoryTracker) Close() error { return nil }

func (m *MemoryTracker) UpsertDocument(_ context.Context, raw []byte, filename, contentPreview string) (*models.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fileHash := hashBytes(raw)
	if id, ok := m.byHash[fileHash]; ok {
		d := *m.documents[id]
		return &d, true, nil
	}

	doc := &models.Document{
		ID:               uuid.NewString(),
		Filename:         filename,
		FileSize:         int64(len(raw)),
		FileHash:         fileHash,
		ContentPreview:   contentPreview,
		CreatedAt:        time.Now().UTC(),
		ProcessingStatus: models.DocStatusPending,
	}
	m.documents[doc.ID] = doc
	m.byHash[fileHash] = doc.ID
	d := *doc
	return &d, false, nil
}

func (m *MemoryTracker) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, nil
	}
	d := *doc
	return &d, nil
}

func (m *MemoryTracker) ListDocuments(_ context.Context) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Document, 0, len(m.documents))
	for _, d := range m.documents {
		out = append(out, *d)
	}
	return out, nil
}

func (m *MemoryTracker) MarkDocumentProcessed(_ context.Context, documentID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[documentID]
	if !ok {
		return fmt.Errorf("document not found: %s", documentID)
	}
	now := time.Now().UTC()
	doc.ProcessedAt = &now
	doc.ProcessingStatus = status
	return nil
}

func (m *MemoryTracker) RecordChunks(_ context.Context, documentID string, chunkTexts []string) ([]models.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[documentID]; !ok {
		return nil, fmt.Errorf("document not found: %s", documentID)
	}

	chunks := make([]models.Chunk, 0, len(chunkTexts))
	for i, text := range chunkTexts {
		ch := &models.Chunk{
			ID:           uuid.NewString(),
			DocumentID:   documentID,
			ChunkIndex:   i,
			ChunkContent: text,
			ChunkSize:    len(text),
			ChunkHash:    hashBytes([]byte(text)),
			UploadStatus: models.ChunkStatusPending,
			CreatedAt:    time.Now().UTC(),
		}
		m.chunks[ch.ID] = ch
		chunks = append(chunks, *ch)
	}
	return chunks, nil
}

func (m *MemoryTracker) ReplaceChunks(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.chunks {
		if ch.DocumentID == documentID {
			delete(m.chunks, id)
		}
	}
	return nil
}

func (m *MemoryTracker) GetChunksByDocument(_ context.Context, documentID string) ([]models.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Chunk
	for _, ch := range m.chunks {
		if ch.DocumentID == documentID {
			out = append(out, *ch)
		}
	}
	// map iteration is unordered; restore chunk order
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (m *MemoryTracker) MarkChunkResult(_ context.Context, chunkID string, success bool, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.chunks[chunkID]
	if !ok {
		return fmt.Errorf("chunk not found: %s", chunkID)
	}
	if success {
		ch.UploadStatus = models.ChunkStatusSuccess
		ch.ErrorMessage = ""
	} else {
		ch.UploadStatus = models.ChunkStatusFailed
		ch.ErrorMessage = errorMessage
	}
	for _, s := range m.sessions {
		if s.DocumentID == ch.DocumentID && s.SessionEnd == nil {
			if success {
				s.SuccessfulChunks++
			} else {
				s.FailedChunks++
			}
		}
	}
	return nil
}

func (m *MemoryTracker) RecordEnrichment(_ context.Context, chunkID, title string, keyPhrases []string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.chunks[chunkID]
	if !ok {
		return fmt.Errorf("chunk not found: %s", chunkID)
	}
	ch.Title = title
	ch.KeyPhrases = append([]string(nil), keyPhrases...)
	ch.Embedding = append([]float32(nil), embedding...)
	return nil
}

func (m *MemoryTracker) StartSession(_ context.Context, documentID string, totalChunks int) (*models.ProcessingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[documentID]; !ok {
		return nil, fmt.Errorf("document not found: %s", documentID)
	}
	s := &models.ProcessingSession{
		ID:           uuid.NewString(),
		DocumentID:   documentID,
		SessionStart: time.Now().UTC(),
		TotalChunks:  totalChunks,
	}
	m.sessions[s.ID] = s
	out := *s
	return &out, nil
}

func (m *MemoryTracker) CloseSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	if s.SessionEnd != nil {
		return fmt.Errorf("session %s: %w", sessionID, core.ErrSessionClosed)
	}
	pending := 0
	for _, ch := range m.chunks {
		if ch.DocumentID == s.DocumentID && ch.UploadStatus == models.ChunkStatusPending {
			pending++
		}
	}
	if pending > 0 {
		return fmt.Errorf("session %s has %d pending chunks: %w", sessionID, pending, core.ErrIncompleteSession)
	}
	now := time.Now().UTC()
	s.SessionEnd = &now
	s.ProcessingTimeSeconds = now.Sub(s.SessionStart).Seconds()
	return nil
}

func (m *MemoryTracker) GetSession(_ context.Context, sessionID string) (*models.ProcessingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := *s
	return &out, nil
}

func (m *MemoryTracker) Stats(_ context.Context) (*models.TrackerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.TrackerStats{
		TotalDocuments: len(m.documents),
		TotalChunks:    len(m.chunks),
	}
	totalSize := 0
	for _, ch := range m.chunks {
		totalSize += ch.ChunkSize
		if ch.UploadStatus == models.ChunkStatusFailed {
			stats.FailedChunks++
		}
	}
	if stats.TotalChunks > 0 {
		stats.AvgChunkSize = float64(totalSize) / float64(stats.TotalChunks)
	}
	return stats, nil
}
