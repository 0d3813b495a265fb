package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/legalworkflow/docprocessor/internal/config"
	"github.com/legalworkflow/docprocessor/internal/core"
	db "github.com/legalworkflow/docprocessor/internal/core/database"
	"github.com/legalworkflow/docprocessor/internal/core/llm"
	objectclient "github.com/legalworkflow/docprocessor/internal/core/object-client"
	"github.com/legalworkflow/docprocessor/internal/core/processing_engine"
	"github.com/legalworkflow/docprocessor/internal/core/search"
)

type App struct {
	Tracker   core.Tracker
	Processor *processing_engine.DocumentProcessor
	Server    *Server
}

// NewApp wires every component from config. Without DATABASE_URL the
// tracker runs in memory; without ARCHIVE_BUCKET raw uploads are not
// archived.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	var tracker core.Tracker
	if cfg.DatabaseURL != "" {
		dbClient, err := db.NewDatabaseClient(appCtx, cfg)
		if err != nil {
			return nil, fmt.Errorf("initialize database: %w", err)
		}
		logrus.Info("database initialized and ready")
		tracker = dbClient
	} else {
		logrus.Warn("DATABASE_URL not set, tracking in memory")
		tracker = db.NewMemoryTracker()
	}

	enricher, err := llm.NewGeminiEnricher(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("initialize enricher: %w", err)
	}

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}

	indexClient := search.NewIndexClient(cfg.SearchEndpoint, cfg.SearchAPIKey, cfg.SearchIndex)

	var archiver core.Archiver
	if cfg.ArchiveBucket != "" {
		s3, err := objectclient.NewS3Archiver(appCtx, cfg)
		if err != nil {
			return nil, fmt.Errorf("initialize archiver: %w", err)
		}
		archiver = s3
	} else {
		logrus.Info("ARCHIVE_BUCKET not set, raw uploads will not be archived")
	}

	processor := processing_engine.NewDocumentProcessor(tracker, enricher, embedder, indexClient, archiver, processing_engine.ProcessConfig{
		MaxChunkSize:    cfg.MaxChunkSize,
		MinChunkSize:    cfg.MinChunkSize,
		PDFMaxChunkSize: cfg.PDFMaxChunkSize,
		PDFMinChunkSize: cfg.PDFMinChunkSize,
		PreviewChars:    cfg.PreviewChars,
		EmbedDim:        cfg.EmbedDim,
		CallTimeout:     cfg.CallTimeout,
	})

	server := NewServer(cfg, tracker, processor, indexClient)

	return &App{Tracker: tracker, Processor: processor, Server: server}, nil
}

func (a *App) Close() {
	if a.Tracker != nil {
		_ = a.Tracker.Close()
	}
}
