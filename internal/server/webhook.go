package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type webhookBody struct {
	VoiceflowProjectID string `json:"voiceflowProjectId"`
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleWebhook accepts the platform's trigger and launches the
// ingestion pipeline in the background. The upstream caller enforces
// a short response budget, so the run is not awaited: the handler
// races completion against a timeout only to pick the response
// message. The run continues either way; late failures are logged
// with the run id and surface nowhere else.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var body webhookBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if body.VoiceflowProjectID == "" {
		writeError(w, http.StatusBadRequest, "voiceflowProjectId is required")
		return
	}

	// Detached from the request context: the response being written
	// must not cancel the run.
	done := make(chan error, 1)
	go func() {
		report, err := s.runner.Run(context.Background(), body.VoiceflowProjectID)
		if err != nil {
			s.logger.Error("ingestion run failed",
				zap.String("voiceflow_project_id", body.VoiceflowProjectID),
				zap.Error(err))
			done <- err
			return
		}
		if len(report.Failures) > 0 {
			s.logger.Warn("ingestion run finished with dead-lettered transcripts",
				zap.String("run_id", report.RunID),
				zap.Int("failed", len(report.Failures)))
		}
		done <- nil
	}()

	timer := time.NewTimer(s.webhookTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Error processing webhook")
			return
		}
		writeJSON(w, http.StatusOK, webhookResponse{
			Success: true,
			Message: "Webhook processed successfully",
		})
	case <-timer.C:
		writeJSON(w, http.StatusOK, webhookResponse{
			Success: true,
			Message: "Webhook received, processing in background",
		})
	}
}
