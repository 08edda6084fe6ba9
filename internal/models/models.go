package models

import (
	"encoding/json"
	"time"
)

// Project is one tenant: a customer's Voiceflow agent plus the
// credentials needed to pull its transcripts.
type Project struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Slug               string `json:"slug"`
	VoiceflowProjectID string `json:"voiceflow_project_id"`
	VoiceflowAPIKey    string `json:"-"`
	// LastTranscriptNumber only ever increases; it is the source of
	// the per-project human-facing transcript numbering.
	LastTranscriptNumber int `json:"last_transcript_number"`
}

// TranscriptMetadata is the free-form metadata carried over from the
// Voiceflow transcript summary.
type TranscriptMetadata struct {
	CreatorID string `json:"creator_id,omitempty"`
	Unread    bool   `json:"unread"`
}

// Transcript is one full conversation session, cached locally and
// enriched with computed metrics and LLM-derived classification.
type Transcript struct {
	ID                    int64              `json:"id"`
	ProjectID             int64              `json:"project_id"`
	VoiceflowTranscriptID string             `json:"voiceflow_transcript_id"`
	TranscriptNumber      int                `json:"transcript_number"`
	Name                  string             `json:"name,omitempty"`
	Image                 string             `json:"image,omitempty"`
	Language              string             `json:"language,omitempty"`
	Topic                 string             `json:"topic,omitempty"`
	MessageCount          int                `json:"message_count"`
	IsComplete            bool               `json:"is_complete"`
	FirstResponse         *time.Time         `json:"first_response,omitempty"`
	LastResponse          *time.Time         `json:"last_response,omitempty"`
	Duration              *int               `json:"duration,omitempty"`
	Metadata              TranscriptMetadata `json:"metadata"`
	ReportTags            []string           `json:"report_tags"`
	Bookmarked            bool               `json:"bookmarked"`
	IsArchived            bool               `json:"is_archived"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// Turn is one message or event inside a transcript. Rows are
// append-only: a turn is inserted once per Voiceflow turn id and
// never updated.
type Turn struct {
	ID              int64           `json:"id"`
	TranscriptID    int64           `json:"transcript_id"`
	VoiceflowTurnID string          `json:"voiceflow_turn_id"`
	Type            string          `json:"type"`
	Payload         json.RawMessage `json:"payload"`
	StartTime       time.Time       `json:"start_time"`
	Sequence        int             `json:"sequence"`
	Format          string          `json:"format"`
}

// Metrics are the values computed over a transcript's full turn list.
type Metrics struct {
	MessageCount  int        `json:"message_count"`
	FirstResponse *time.Time `json:"first_response"`
	LastResponse  *time.Time `json:"last_response"`
	Duration      *int       `json:"duration"`
	IsComplete    bool       `json:"is_complete"`
}

// Classification is the LLM-derived triple for a transcript.
type Classification struct {
	Language string `json:"language"`
	Topic    string `json:"topic"`
	Name     string `json:"name"`
}

// KnowledgeBase is a project's FAQ set. Saves replace the whole set.
type KnowledgeBase struct {
	ID        int64            `json:"id"`
	ProjectID int64            `json:"project_id"`
	Name      string           `json:"name"`
	Entries   []KnowledgeEntry `json:"entries"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type KnowledgeEntry struct {
	ID       int64  `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
