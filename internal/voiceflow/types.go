package voiceflow

import (
	"encoding/json"
	"time"
)

// TranscriptSummary is one entry of the transcript-list endpoint.
type TranscriptSummary struct {
	ID         string    `json:"_id"`
	Name       string    `json:"name,omitempty"`
	Image      string    `json:"image,omitempty"`
	CreatorID  string    `json:"creatorID,omitempty"`
	Unread     bool      `json:"unread,omitempty"`
	ReportTags []string  `json:"reportTags,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Turn is one raw turn of the transcript-detail endpoint. Payload is
// kept opaque here; extraction decodes it per variant.
type Turn struct {
	TurnID    string          `json:"turnID"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	StartTime time.Time       `json:"startTime"`
	Format    string          `json:"format"`
}

// Turn type markers as delivered by the platform.
const (
	TurnTypeText    = "text"
	TurnTypeRequest = "request"
	TurnTypeChoice  = "choice"
)

// payload is the decoded superset of the shapes the platform sends.
// Real payloads populate only one of the variants; extraction probes
// them in a fixed order.
type payload struct {
	Message string        `json:"message,omitempty"`
	Text    string        `json:"text,omitempty"`
	Type    string        `json:"type,omitempty"`
	Data    *payloadData  `json:"data,omitempty"`
	Inner   *innerPayload `json:"payload,omitempty"`
}

type payloadData struct {
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
}

type innerPayload struct {
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
	Query   string `json:"query,omitempty"`
	Label   string `json:"label,omitempty"`
	Slate   *slate `json:"slate,omitempty"`
}

// slate is the rich-text block structure of bot utterances.
type slate struct {
	Content []slateBlock `json:"content"`
}

type slateBlock struct {
	Children []slateNode `json:"children"`
}

type slateNode struct {
	Text       string      `json:"text,omitempty"`
	Type       string      `json:"type,omitempty"`
	URL        string      `json:"url,omitempty"`
	FontWeight string      `json:"fontWeight,omitempty"`
	Children   []slateNode `json:"children,omitempty"`
}
