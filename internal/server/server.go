package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/treshel/botboard/internal/models"
	"github.com/treshel/botboard/internal/pipeline"
	"github.com/treshel/botboard/internal/storage"
)

// IngestionRunner launches one ingestion run; *pipeline.Reconciler
// satisfies it.
type IngestionRunner interface {
	Run(ctx context.Context, voiceflowProjectID string) (*pipeline.RunReport, error)
}

// KnowledgeSyncer pushes a replaced FAQ set to the platform's
// knowledge base; *voiceflow.Client satisfies it.
type KnowledgeSyncer interface {
	ReplaceFAQ(ctx context.Context, apiKey string, entries []models.KnowledgeEntry) error
}

type Server struct {
	store          storage.Storage
	runner         IngestionRunner
	knowledge      KnowledgeSyncer
	logger         *zap.Logger
	webhookTimeout time.Duration
}

func New(store storage.Storage, runner IngestionRunner, knowledge KnowledgeSyncer, webhookTimeout time.Duration, logger *zap.Logger) *Server {
	if webhookTimeout <= 0 {
		webhookTimeout = 25 * time.Second
	}
	return &Server{
		store:          store,
		runner:         runner,
		knowledge:      knowledge,
		logger:         logger,
		webhookTimeout: webhookTimeout,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/webhook/voiceflow", s.handleWebhook)

	r.Route("/api/transcripts", func(r chi.Router) {
		r.Get("/", s.handleListTranscripts)
		r.Get("/{transcriptNumber}", s.handleGetTranscript)
		r.Put("/{transcriptNumber}/bookmark", s.handleBookmark)
		r.Put("/{transcriptNumber}/archive", s.handleArchive)
	})

	r.Route("/api/projects/{slug}", func(r chi.Router) {
		r.Get("/analytics/languages", s.handleLanguageDistribution)
		r.Get("/analytics/messages", s.handleDailyMessageCounts)
		r.Get("/knowledge", s.handleGetKnowledge)
		r.Put("/knowledge", s.handlePutKnowledge)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) projectFromSlug(w http.ResponseWriter, r *http.Request, slug string) (*models.Project, bool) {
	if slug == "" {
		writeError(w, http.StatusBadRequest, "Invalid project slug")
		return nil, false
	}

	project, err := s.store.GetProjectBySlug(r.Context(), slug)
	if errors.Is(err, storage.ErrProjectNotFound) {
		writeError(w, http.StatusNotFound, "Project not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("failed to load project", zap.String("slug", slug), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load project")
		return nil, false
	}

	return project, true
}
