package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/treshel/botboard/internal/classifier"
	"github.com/treshel/botboard/internal/models"
	"github.com/treshel/botboard/internal/storage"
	"github.com/treshel/botboard/internal/voiceflow"
)

// TranscriptSource is the slice of the Voiceflow client the
// reconciler consumes; *voiceflow.Client satisfies it.
type TranscriptSource interface {
	ListTranscripts(ctx context.Context, projectID, apiKey string, opts voiceflow.ListOptions) ([]voiceflow.TranscriptSummary, error)
	GetTranscriptTurns(ctx context.Context, projectID, transcriptID, apiKey string) ([]voiceflow.Turn, error)
}

// Options tunes batching and throttling. The delays exist only to
// stay under the platform's rate limit; they are not a correctness
// mechanism.
type Options struct {
	BatchSize  int
	ItemDelay  time.Duration
	BatchDelay time.Duration
	// HistoryDays bounds the listing window; zero lists everything.
	HistoryDays int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	return o
}

// Failure is one dead-letter entry of a run: a transcript that could
// not be ingested while the rest of the batch continued.
type Failure struct {
	VoiceflowTranscriptID string `json:"voiceflow_transcript_id"`
	Error                 string `json:"error"`
}

// RunReport summarizes one ingestion run. Fire-and-forget callers log
// it; nothing else observes a run's outcome.
type RunReport struct {
	RunID     string        `json:"run_id"`
	ProjectID int64         `json:"project_id"`
	Listed    int           `json:"listed"`
	Processed int           `json:"processed"`
	Failures  []Failure     `json:"failures,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Reconciler is the ingestion orchestrator: it lists transcripts from
// the platform, diffs them against the local store, classifies new
// content, and persists each transcript in its own transaction.
type Reconciler struct {
	source     TranscriptSource
	classifier classifier.Classifier
	store      storage.Storage
	logger     *zap.Logger
	opts       Options
}

func NewReconciler(source TranscriptSource, clf classifier.Classifier, store storage.Storage, opts Options, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		source:     source,
		classifier: clf,
		store:      store,
		logger:     logger,
		opts:       opts.withDefaults(),
	}
}

// Run ingests every listed transcript of the given Voiceflow project.
// A missing project aborts the run; any single transcript's failure
// is recorded in the report and the batch continues.
func (r *Reconciler) Run(ctx context.Context, voiceflowProjectID string) (*RunReport, error) {
	report := &RunReport{
		RunID: uuid.NewString(),
	}
	started := time.Now()
	logger := r.logger.With(
		zap.String("run_id", report.RunID),
		zap.String("voiceflow_project_id", voiceflowProjectID),
	)

	project, err := r.store.GetProjectByVoiceflowID(ctx, voiceflowProjectID)
	if err != nil {
		return nil, fmt.Errorf("resolve project %q: %w", voiceflowProjectID, err)
	}
	report.ProjectID = project.ID

	var listOpts voiceflow.ListOptions
	if r.opts.HistoryDays > 0 {
		now := time.Now()
		listOpts.StartDate = now.AddDate(0, 0, -r.opts.HistoryDays)
		listOpts.EndDate = now.AddDate(0, 0, 1)
	}

	summaries, err := r.source.ListTranscripts(ctx, project.VoiceflowProjectID, project.VoiceflowAPIKey, listOpts)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	report.Listed = len(summaries)
	logger.Info("starting ingestion run", zap.Int("transcripts", len(summaries)))

	// Oldest first, so transcript numbers are assigned in
	// conversation order.
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})

	for i := 0; i < len(summaries); i += r.opts.BatchSize {
		end := i + r.opts.BatchSize
		if end > len(summaries) {
			end = len(summaries)
		}

		for j, summary := range summaries[i:end] {
			if summary.ID == "" {
				logger.Warn("skipping transcript summary without id")
				continue
			}

			if err := r.processTranscript(ctx, project, summary); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					report.Elapsed = time.Since(started)
					return report, err
				}
				logger.Error("failed to process transcript",
					zap.String("voiceflow_transcript_id", summary.ID),
					zap.Error(err))
				report.Failures = append(report.Failures, Failure{
					VoiceflowTranscriptID: summary.ID,
					Error:                 err.Error(),
				})
				continue
			}
			report.Processed++

			if i+j+1 < len(summaries) {
				if err := sleep(ctx, r.opts.ItemDelay); err != nil {
					report.Elapsed = time.Since(started)
					return report, err
				}
			}
		}

		if end < len(summaries) {
			if err := sleep(ctx, r.opts.BatchDelay); err != nil {
				report.Elapsed = time.Since(started)
				return report, err
			}
		}
	}

	report.Elapsed = time.Since(started)
	logger.Info("ingestion run finished",
		zap.Int("listed", report.Listed),
		zap.Int("processed", report.Processed),
		zap.Int("failed", len(report.Failures)),
		zap.Duration("elapsed", report.Elapsed))
	return report, nil
}

// processTranscript runs the per-transcript reconciliation: re-fetch
// the full turn list, diff out new turns, recompute metrics over the
// whole conversation, classify when the conversation grew, and write
// everything in one transaction.
func (r *Reconciler) processTranscript(ctx context.Context, project *models.Project, summary voiceflow.TranscriptSummary) error {
	state, err := r.store.GetTranscriptState(ctx, project.ID, summary.ID)
	if err != nil {
		return fmt.Errorf("load transcript state: %w", err)
	}

	// Always re-fetch: turns may have been appended since the last run.
	turns, err := r.source.GetTranscriptTurns(ctx, project.VoiceflowProjectID, summary.ID, project.VoiceflowAPIKey)
	if err != nil {
		return fmt.Errorf("fetch turns: %w", err)
	}

	newTurns := make([]models.Turn, 0, len(turns))
	for i, turn := range turns {
		if turn.TurnID == "" {
			continue
		}
		if state != nil {
			if _, seen := state.TurnIDs[turn.TurnID]; seen {
				continue
			}
		}
		newTurns = append(newTurns, models.Turn{
			VoiceflowTurnID: turn.TurnID,
			Type:            turn.Type,
			Payload:         turn.Payload,
			StartTime:       turn.StartTime,
			Sequence:        i,
			Format:          turn.Format,
		})
	}

	metrics := ComputeMetrics(turns)
	classification := r.classify(ctx, summary.ID, state, turns)

	name := summary.Name
	if name == "" && classification != nil && classification.Name != "unknown" {
		name = classification.Name
	}
	if name == "" && state != nil {
		name = state.Transcript.Name
	}

	saved, err := r.store.SaveTranscript(ctx, storage.SaveTranscriptParams{
		ProjectID:             project.ID,
		VoiceflowTranscriptID: summary.ID,
		Name:                  name,
		Image:                 summary.Image,
		ReportTags:            summary.ReportTags,
		Metadata: models.TranscriptMetadata{
			CreatorID: summary.CreatorID,
			Unread:    summary.Unread,
		},
		CreatedAt:      summary.CreatedAt,
		Metrics:        metrics,
		Classification: classification,
		NewTurns:       newTurns,
	})
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}

	r.logger.Debug("saved transcript",
		zap.Int64("transcript_id", saved.ID),
		zap.Int("transcript_number", saved.TranscriptNumber),
		zap.Int("new_turns", len(newTurns)))
	return nil
}

// classify decides whether to re-run classification and returns nil
// whenever the stored values should be kept: unchanged conversations,
// empty conversations, and classifier failures.
func (r *Reconciler) classify(ctx context.Context, transcriptID string, state *storage.TranscriptState, turns []voiceflow.Turn) *models.Classification {
	grown := state == nil || len(turns) > len(state.TurnIDs)
	if !grown {
		return nil
	}

	messages := voiceflow.ExtractMessages(turns)
	if len(messages) == 0 {
		return nil
	}

	result, err := r.classifier.Classify(ctx, messages)
	if err != nil {
		r.logger.Warn("classification failed, keeping stored values",
			zap.String("voiceflow_transcript_id", transcriptID),
			zap.Error(err))
		return nil
	}
	return &result
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
