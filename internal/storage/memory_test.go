package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treshel/botboard/internal/models"
)

func newTestProject(t *testing.T, store *MemoryStorage) *models.Project {
	t.Helper()
	project := &models.Project{
		Name:               "Acme Support",
		Slug:               "acme-support",
		VoiceflowProjectID: "vf-proj-1",
		VoiceflowAPIKey:    "VF.key",
	}
	require.NoError(t, store.CreateProject(context.Background(), project))
	return project
}

func saveParams(projectID int64, vfID string, turnIDs ...string) SaveTranscriptParams {
	turns := make([]models.Turn, 0, len(turnIDs))
	start := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	for i, id := range turnIDs {
		turns = append(turns, models.Turn{
			VoiceflowTurnID: id,
			Type:            "text",
			Payload:         json.RawMessage(`{"message":"hi"}`),
			StartTime:       start.Add(time.Duration(i) * time.Second),
			Sequence:        i,
			Format:          "message",
		})
	}
	return SaveTranscriptParams{
		ProjectID:             projectID,
		VoiceflowTranscriptID: vfID,
		Name:                  "chat",
		CreatedAt:             start,
		Metrics:               models.Metrics{MessageCount: len(turnIDs)},
		NewTurns:              turns,
	}
}

func TestSaveTranscriptAllocatesSequentialNumbers(t *testing.T) {
	store := NewMemoryStorage()
	project := newTestProject(t, store)
	ctx := context.Background()

	first, err := store.SaveTranscript(ctx, saveParams(project.ID, "vf-1", "t-1"))
	require.NoError(t, err)
	second, err := store.SaveTranscript(ctx, saveParams(project.ID, "vf-2", "t-2"))
	require.NoError(t, err)

	assert.Equal(t, 1, first.TranscriptNumber)
	assert.Equal(t, 2, second.TranscriptNumber)

	stored, err := store.GetProjectByVoiceflowID(ctx, project.VoiceflowProjectID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.LastTranscriptNumber)
}

func TestSaveTranscriptKeepsNumberAndCreatedAt(t *testing.T) {
	store := NewMemoryStorage()
	project := newTestProject(t, store)
	ctx := context.Background()

	params := saveParams(project.ID, "vf-1", "t-1")
	first, err := store.SaveTranscript(ctx, params)
	require.NoError(t, err)

	// Re-ingestion with a drifted createdAt must not renumber or
	// shift the creation time.
	params.CreatedAt = params.CreatedAt.Add(time.Hour)
	second, err := store.SaveTranscript(ctx, params)
	require.NoError(t, err)

	assert.Equal(t, first.TranscriptNumber, second.TranscriptNumber)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	stored, err := store.GetProjectByVoiceflowID(ctx, project.VoiceflowProjectID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.LastTranscriptNumber)
}

func TestSaveTranscriptDeduplicatesTurns(t *testing.T) {
	store := NewMemoryStorage()
	project := newTestProject(t, store)
	ctx := context.Background()

	_, err := store.SaveTranscript(ctx, saveParams(project.ID, "vf-1", "t-1", "t-2"))
	require.NoError(t, err)
	// Redelivery carries the same turn ids plus one new turn.
	saved, err := store.SaveTranscript(ctx, saveParams(project.ID, "vf-1", "t-1", "t-2", "t-3"))
	require.NoError(t, err)

	_, turns, err := store.GetTranscript(ctx, project.ID, saved.TranscriptNumber)
	require.NoError(t, err)
	require.Len(t, turns, 3)

	seen := make(map[string]int)
	for _, turn := range turns {
		seen[turn.VoiceflowTurnID]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "turn %s duplicated", id)
	}
}

func TestSaveTranscriptPreservesClassificationWhenNil(t *testing.T) {
	store := NewMemoryStorage()
	project := newTestProject(t, store)
	ctx := context.Background()

	params := saveParams(project.ID, "vf-1", "t-1")
	params.Classification = &models.Classification{Language: "en", Topic: "💭 billing issue"}
	_, err := store.SaveTranscript(ctx, params)
	require.NoError(t, err)

	update := saveParams(project.ID, "vf-1")
	update.Classification = nil
	saved, err := store.SaveTranscript(ctx, update)
	require.NoError(t, err)

	assert.Equal(t, "en", saved.Language)
	assert.Equal(t, "💭 billing issue", saved.Topic)
}

func TestSaveTranscriptUnknownProject(t *testing.T) {
	store := NewMemoryStorage()
	_, err := store.SaveTranscript(context.Background(), saveParams(42, "vf-1", "t-1"))
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestGetTranscriptState(t *testing.T) {
	store := NewMemoryStorage()
	project := newTestProject(t, store)
	ctx := context.Background()

	state, err := store.GetTranscriptState(ctx, project.ID, "vf-1")
	require.NoError(t, err)
	assert.Nil(t, state)

	_, err = store.SaveTranscript(ctx, saveParams(project.ID, "vf-1", "t-1", "t-2"))
	require.NoError(t, err)

	state, err = store.GetTranscriptState(ctx, project.ID, "vf-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 1, state.Transcript.TranscriptNumber)
	assert.Contains(t, state.TurnIDs, "t-1")
	assert.Contains(t, state.TurnIDs, "t-2")
}

func TestBookmarkAndArchive(t *testing.T) {
	store := NewMemoryStorage()
	project := newTestProject(t, store)
	ctx := context.Background()

	saved, err := store.SaveTranscript(ctx, saveParams(project.ID, "vf-1", "t-1"))
	require.NoError(t, err)

	require.NoError(t, store.SetBookmarked(ctx, project.ID, saved.TranscriptNumber, true))
	transcript, _, err := store.GetTranscript(ctx, project.ID, saved.TranscriptNumber)
	require.NoError(t, err)
	assert.True(t, transcript.Bookmarked)

	require.NoError(t, store.SetArchived(ctx, project.ID, saved.TranscriptNumber, true))
	listed, err := store.ListTranscripts(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, listed)

	assert.ErrorIs(t, store.SetBookmarked(ctx, project.ID, 999, true), ErrTranscriptNotFound)
}

func TestListTranscriptsNewestFirst(t *testing.T) {
	store := NewMemoryStorage()
	project := newTestProject(t, store)
	ctx := context.Background()

	older := saveParams(project.ID, "vf-old", "t-1")
	older.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := saveParams(project.ID, "vf-new", "t-2")
	newer.CreatedAt = time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)

	_, err := store.SaveTranscript(ctx, older)
	require.NoError(t, err)
	_, err = store.SaveTranscript(ctx, newer)
	require.NoError(t, err)

	listed, err := store.ListTranscripts(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "vf-new", listed[0].VoiceflowTranscriptID)
	assert.Equal(t, "vf-old", listed[1].VoiceflowTranscriptID)
}

func TestLanguageDistribution(t *testing.T) {
	store := NewMemoryStorage()
	project := newTestProject(t, store)
	ctx := context.Background()

	for i, lang := range []string{"en", "en", "de", ""} {
		params := saveParams(project.ID, "vf-"+string(rune('a'+i)), "t-"+string(rune('a'+i)))
		if lang != "" {
			params.Classification = &models.Classification{Language: lang, Topic: "topic"}
		}
		_, err := store.SaveTranscript(ctx, params)
		require.NoError(t, err)
	}

	counts, err := store.LanguageDistribution(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, LanguageCount{Language: "en", Count: 2}, counts[0])
	assert.Equal(t, LanguageCount{Language: "de", Count: 1}, counts[1])
}

func TestReplaceKnowledgeBase(t *testing.T) {
	store := NewMemoryStorage()
	project := newTestProject(t, store)
	ctx := context.Background()

	entries := []models.KnowledgeEntry{
		{Question: "What are your hours?", Answer: "9 to 5"},
		{Question: "Where are you located?", Answer: "Berlin"},
	}
	require.NoError(t, store.ReplaceKnowledgeBase(ctx, project.ID, "FAQs", entries))

	// Replace is total: the old set is gone.
	replacement := []models.KnowledgeEntry{{Question: "Do you ship abroad?", Answer: "Yes"}}
	require.NoError(t, store.ReplaceKnowledgeBase(ctx, project.ID, "FAQs", replacement))

	kb, err := store.GetKnowledgeBase(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, kb.Entries, 1)
	assert.Equal(t, "Do you ship abroad?", kb.Entries[0].Question)
}
