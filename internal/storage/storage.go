package storage

import (
	"context"
	"errors"
	"time"

	"github.com/treshel/botboard/internal/models"
)

// ErrProjectNotFound means no project row matches the lookup key.
// The pipeline treats it as fatal for the run.
var ErrProjectNotFound = errors.New("project not found")

// ErrTranscriptNotFound means no transcript row matches the lookup key.
var ErrTranscriptNotFound = errors.New("transcript not found")

// TranscriptState is what the reconciler needs to know about an
// already-ingested transcript before deciding what to write.
type TranscriptState struct {
	Transcript models.Transcript
	// TurnIDs holds the Voiceflow turn ids already stored for the
	// transcript, for diffing out new turns.
	TurnIDs map[string]struct{}
}

// SaveTranscriptParams is the transactional write unit of one
// ingestion step. Classification nil means "keep whatever is stored";
// NewTurns carries only turns not yet persisted.
type SaveTranscriptParams struct {
	ProjectID             int64
	VoiceflowTranscriptID string
	Name                  string
	Image                 string
	ReportTags            []string
	Metadata              models.TranscriptMetadata
	CreatedAt             time.Time
	Metrics               models.Metrics
	Classification        *models.Classification
	NewTurns              []models.Turn
}

// LanguageCount is one bucket of the language distribution.
type LanguageCount struct {
	Language string `json:"language"`
	Count    int    `json:"count"`
}

// DailyMessageStat is one day of average message counts.
type DailyMessageStat struct {
	Date               string  `json:"date"`
	AverageCount       float64 `json:"average_count"`
	TotalConversations int     `json:"total_conversations"`
}

type Storage interface {
	// Projects are created out of band by an administrator; the
	// pipeline only reads them and bumps the transcript counter.
	CreateProject(ctx context.Context, project *models.Project) error
	GetProjectByVoiceflowID(ctx context.Context, voiceflowProjectID string) (*models.Project, error)
	GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error)

	// GetTranscriptState returns nil when the transcript has never
	// been ingested.
	GetTranscriptState(ctx context.Context, projectID int64, voiceflowTranscriptID string) (*TranscriptState, error)

	// SaveTranscript runs one transcript's reconciliation write in a
	// single transaction: transcript-number allocation for new
	// transcripts, upsert of the transcript row, and insert of the
	// new turns with duplicate protection.
	SaveTranscript(ctx context.Context, params SaveTranscriptParams) (*models.Transcript, error)

	ListTranscripts(ctx context.Context, projectID int64) ([]*models.Transcript, error)
	GetTranscript(ctx context.Context, projectID int64, transcriptNumber int) (*models.Transcript, []*models.Turn, error)
	SetBookmarked(ctx context.Context, projectID int64, transcriptNumber int, bookmarked bool) error
	SetArchived(ctx context.Context, projectID int64, transcriptNumber int, archived bool) error

	LanguageDistribution(ctx context.Context, projectID int64) ([]LanguageCount, error)
	DailyMessageCounts(ctx context.Context, projectID int64, days int) ([]DailyMessageStat, error)

	GetKnowledgeBase(ctx context.Context, projectID int64) (*models.KnowledgeBase, error)
	ReplaceKnowledgeBase(ctx context.Context, projectID int64, name string, entries []models.KnowledgeEntry) error

	Close() error
}
