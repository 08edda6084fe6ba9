package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/treshel/botboard/internal/models"
)

func (s *Server) handleGetKnowledge(w http.ResponseWriter, r *http.Request) {
	project, ok := s.projectFromSlug(w, r, chi.URLParam(r, "slug"))
	if !ok {
		return
	}

	kb, err := s.store.GetKnowledgeBase(r.Context(), project.ID)
	if err != nil {
		s.logger.Error("failed to fetch knowledge base",
			zap.Int64("project_id", project.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch knowledge base")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": kb})
}

type knowledgeEntryBody struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type putKnowledgeBody struct {
	Name    string               `json:"name"`
	Entries []knowledgeEntryBody `json:"entries"`
}

// handlePutKnowledge replaces a project's FAQ set. The local store is
// the source of truth; the push to the Voiceflow knowledge base is
// best effort and only logged on failure.
func (s *Server) handlePutKnowledge(w http.ResponseWriter, r *http.Request) {
	project, ok := s.projectFromSlug(w, r, chi.URLParam(r, "slug"))
	if !ok {
		return
	}

	var body putKnowledgeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	entries := make([]models.KnowledgeEntry, 0, len(body.Entries))
	for _, entry := range body.Entries {
		question := strings.TrimSpace(entry.Question)
		answer := strings.TrimSpace(entry.Answer)
		if question == "" || answer == "" {
			writeError(w, http.StatusBadRequest, "Entries need both question and answer")
			return
		}
		entries = append(entries, models.KnowledgeEntry{Question: question, Answer: answer})
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		name = "FAQs"
	}

	if err := s.store.ReplaceKnowledgeBase(r.Context(), project.ID, name, entries); err != nil {
		s.logger.Error("failed to replace knowledge base",
			zap.Int64("project_id", project.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save knowledge base")
		return
	}

	if s.knowledge != nil {
		if err := s.knowledge.ReplaceFAQ(r.Context(), project.VoiceflowAPIKey, entries); err != nil {
			s.logger.Warn("failed to push FAQ to Voiceflow knowledge base",
				zap.Int64("project_id", project.ID), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
