package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/legalworkflow/docprocessor/internal/api/handlers"
	"github.com/legalworkflow/docprocessor/internal/config"
	"github.com/legalworkflow/docprocessor/internal/core"
	"github.com/legalworkflow/docprocessor/internal/core/processing_engine"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes. The request timeout is generous
// because processing runs synchronously within the request.
func NewServer(cfg *config.Config, tracker core.Tracker, processor *processing_engine.DocumentProcessor, index core.IndexClient) *Server {
	docHandler := handlers.NewDocumentHandler(tracker, processor, index)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", docHandler.Health)
		api.Post("/process-document", docHandler.ProcessDocument)
		api.Get("/documents", docHandler.GetDocuments)
		api.Get("/documents/{id}/chunks", docHandler.GetDocumentChunks)
		api.Delete("/documents/{filename}", docHandler.DeleteDocument)
		api.Get("/stats", docHandler.GetStats)
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	logrus.Infof("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
