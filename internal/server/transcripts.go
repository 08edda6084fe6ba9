package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/treshel/botboard/internal/models"
	"github.com/treshel/botboard/internal/storage"
)

func (s *Server) handleListTranscripts(w http.ResponseWriter, r *http.Request) {
	project, ok := s.projectFromSlug(w, r, r.URL.Query().Get("projectSlug"))
	if !ok {
		return
	}

	transcripts, err := s.store.ListTranscripts(r.Context(), project.ID)
	if err != nil {
		s.logger.Error("failed to list transcripts",
			zap.Int64("project_id", project.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch transcripts")
		return
	}
	if transcripts == nil {
		transcripts = []*models.Transcript{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": transcripts})
}

func transcriptNumberParam(r *http.Request) (int, bool) {
	number, err := strconv.Atoi(chi.URLParam(r, "transcriptNumber"))
	if err != nil || number <= 0 {
		return 0, false
	}
	return number, true
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	project, ok := s.projectFromSlug(w, r, r.URL.Query().Get("projectSlug"))
	if !ok {
		return
	}

	number, ok := transcriptNumberParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid transcript number")
		return
	}

	transcript, turns, err := s.store.GetTranscript(r.Context(), project.ID, number)
	if errors.Is(err, storage.ErrTranscriptNotFound) {
		writeError(w, http.StatusNotFound, "Transcript not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to fetch transcript",
			zap.Int64("project_id", project.ID),
			zap.Int("transcript_number", number),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch transcript")
		return
	}
	if turns == nil {
		turns = []*models.Turn{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"transcript": transcript,
			"turns":      turns,
		},
	})
}

type bookmarkBody struct {
	ProjectSlug string `json:"projectSlug"`
	Bookmarked  *bool  `json:"bookmarked"`
}

func (s *Server) handleBookmark(w http.ResponseWriter, r *http.Request) {
	var body bookmarkBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Bookmarked == nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	project, ok := s.projectFromSlug(w, r, body.ProjectSlug)
	if !ok {
		return
	}

	number, ok := transcriptNumberParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid transcript number")
		return
	}

	err := s.store.SetBookmarked(r.Context(), project.ID, number, *body.Bookmarked)
	if errors.Is(err, storage.ErrTranscriptNotFound) {
		writeError(w, http.StatusNotFound, "Transcript not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to update bookmark",
			zap.Int64("project_id", project.ID),
			zap.Int("transcript_number", number),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to update bookmark")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type archiveBody struct {
	ProjectSlug string `json:"projectSlug"`
	Archived    *bool  `json:"archived"`
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	var body archiveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Archived == nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	project, ok := s.projectFromSlug(w, r, body.ProjectSlug)
	if !ok {
		return
	}

	number, ok := transcriptNumberParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid transcript number")
		return
	}

	err := s.store.SetArchived(r.Context(), project.ID, number, *body.Archived)
	if errors.Is(err, storage.ErrTranscriptNotFound) {
		writeError(w, http.StatusNotFound, "Transcript not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to update archive flag",
			zap.Int64("project_id", project.ID),
			zap.Int("transcript_number", number),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to update archive flag")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleLanguageDistribution(w http.ResponseWriter, r *http.Request) {
	project, ok := s.projectFromSlug(w, r, chi.URLParam(r, "slug"))
	if !ok {
		return
	}

	counts, err := s.store.LanguageDistribution(r.Context(), project.ID)
	if err != nil {
		s.logger.Error("failed to fetch language distribution",
			zap.Int64("project_id", project.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch analytics")
		return
	}
	if counts == nil {
		counts = []storage.LanguageCount{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": counts})
}

func (s *Server) handleDailyMessageCounts(w http.ResponseWriter, r *http.Request) {
	project, ok := s.projectFromSlug(w, r, chi.URLParam(r, "slug"))
	if !ok {
		return
	}

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 365 {
			writeError(w, http.StatusBadRequest, "Invalid days parameter")
			return
		}
		days = parsed
	}

	stats, err := s.store.DailyMessageCounts(r.Context(), project.ID, days)
	if err != nil {
		s.logger.Error("failed to fetch daily message counts",
			zap.Int64("project_id", project.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch analytics")
		return
	}
	if stats == nil {
		stats = []storage.DailyMessageStat{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": stats})
}
