package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/treshel/botboard/internal/models"
	"github.com/treshel/botboard/internal/pipeline"
	"github.com/treshel/botboard/internal/storage"
)

type fakeRunner struct {
	report *pipeline.RunReport
	err    error
	delay  time.Duration
	calls  chan string
}

func (f *fakeRunner) Run(ctx context.Context, voiceflowProjectID string) (*pipeline.RunReport, error) {
	if f.calls != nil {
		f.calls <- voiceflowProjectID
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	report := f.report
	if report == nil {
		report = &pipeline.RunReport{RunID: "run-1"}
	}
	return report, nil
}

type fakeSyncer struct {
	entries []models.KnowledgeEntry
	apiKey  string
	calls   int
}

func (f *fakeSyncer) ReplaceFAQ(ctx context.Context, apiKey string, entries []models.KnowledgeEntry) error {
	f.calls++
	f.apiKey = apiKey
	f.entries = entries
	return nil
}

func setup(t *testing.T, runner IngestionRunner, syncer KnowledgeSyncer) (*httptest.Server, *storage.MemoryStorage, *models.Project) {
	t.Helper()

	store := storage.NewMemoryStorage()
	project := &models.Project{
		Name:               "Acme Support",
		Slug:               "acme-support",
		VoiceflowProjectID: "vf-proj-1",
		VoiceflowAPIKey:    "VF.key",
	}
	require.NoError(t, store.CreateProject(context.Background(), project))

	srv := New(store, runner, syncer, 200*time.Millisecond, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store, project
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestWebhookInvalidJSON(t *testing.T) {
	ts, _, _ := setup(t, &fakeRunner{}, nil)

	resp, err := http.Post(ts.URL+"/api/webhook/voiceflow", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid JSON", decodeBody(t, resp)["error"])
}

func TestWebhookMissingProjectID(t *testing.T) {
	ts, _, _ := setup(t, &fakeRunner{}, nil)

	resp, err := http.Post(ts.URL+"/api/webhook/voiceflow", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestWebhookProcessedWithinTimeout(t *testing.T) {
	runner := &fakeRunner{calls: make(chan string, 1)}
	ts, _, _ := setup(t, runner, nil)

	resp, err := http.Post(ts.URL+"/api/webhook/voiceflow", "application/json",
		strings.NewReader(`{"voiceflowProjectId":"vf-proj-1"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Webhook processed successfully", body["message"])
	assert.Equal(t, "vf-proj-1", <-runner.calls)
}

func TestWebhookSlowRunAcknowledgedEarly(t *testing.T) {
	runner := &fakeRunner{delay: time.Second}
	ts, _, _ := setup(t, runner, nil)

	resp, err := http.Post(ts.URL+"/api/webhook/voiceflow", "application/json",
		strings.NewReader(`{"voiceflowProjectId":"vf-proj-1"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "Webhook received, processing in background", body["message"])
}

func TestListTranscripts(t *testing.T) {
	ts, store, project := setup(t, &fakeRunner{}, nil)

	_, err := store.SaveTranscript(context.Background(), storage.SaveTranscriptParams{
		ProjectID:             project.ID,
		VoiceflowTranscriptID: "vf-1",
		Name:                  "billing chat",
		CreatedAt:             time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC),
		Metrics:               models.Metrics{MessageCount: 3},
	})
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/transcripts?projectSlug=acme-support")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	data, ok := body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
}

func TestListTranscriptsUnknownProject(t *testing.T) {
	ts, _, _ := setup(t, &fakeRunner{}, nil)

	resp, err := http.Get(ts.URL + "/api/transcripts?projectSlug=nope")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func putJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestBookmarkTranscript(t *testing.T) {
	ts, store, project := setup(t, &fakeRunner{}, nil)

	saved, err := store.SaveTranscript(context.Background(), storage.SaveTranscriptParams{
		ProjectID:             project.ID,
		VoiceflowTranscriptID: "vf-1",
	})
	require.NoError(t, err)

	resp := putJSON(t, ts.URL+"/api/transcripts/1/bookmark",
		`{"projectSlug":"acme-support","bookmarked":true}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	transcript, _, err := store.GetTranscript(context.Background(), project.ID, saved.TranscriptNumber)
	require.NoError(t, err)
	assert.True(t, transcript.Bookmarked)
}

func TestBookmarkMissingFlag(t *testing.T) {
	ts, _, _ := setup(t, &fakeRunner{}, nil)

	resp := putJSON(t, ts.URL+"/api/transcripts/1/bookmark", `{"projectSlug":"acme-support"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestBookmarkUnknownTranscript(t *testing.T) {
	ts, _, _ := setup(t, &fakeRunner{}, nil)

	resp := putJSON(t, ts.URL+"/api/transcripts/42/bookmark",
		`{"projectSlug":"acme-support","bookmarked":true}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestReplaceKnowledgeBasePushesToVoiceflow(t *testing.T) {
	syncer := &fakeSyncer{}
	ts, store, project := setup(t, &fakeRunner{}, syncer)

	resp := putJSON(t, ts.URL+"/api/projects/acme-support/knowledge",
		`{"entries":[{"question":"What are your hours?","answer":"9 to 5"}]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	kb, err := store.GetKnowledgeBase(context.Background(), project.ID)
	require.NoError(t, err)
	require.Len(t, kb.Entries, 1)
	assert.Equal(t, "What are your hours?", kb.Entries[0].Question)

	assert.Equal(t, 1, syncer.calls)
	assert.Equal(t, "VF.key", syncer.apiKey)
	require.Len(t, syncer.entries, 1)
}

func TestReplaceKnowledgeBaseRejectsBlankEntries(t *testing.T) {
	ts, _, _ := setup(t, &fakeRunner{}, &fakeSyncer{})

	resp := putJSON(t, ts.URL+"/api/projects/acme-support/knowledge",
		`{"entries":[{"question":"  ","answer":"9 to 5"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAnalyticsEndpoints(t *testing.T) {
	ts, store, project := setup(t, &fakeRunner{}, nil)

	_, err := store.SaveTranscript(context.Background(), storage.SaveTranscriptParams{
		ProjectID:             project.ID,
		VoiceflowTranscriptID: "vf-1",
		CreatedAt:             time.Now(),
		Metrics:               models.Metrics{MessageCount: 4},
		Classification:        &models.Classification{Language: "en", Topic: "💭 billing issue"},
	})
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/projects/acme-support/analytics/languages")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	data, ok := body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)

	resp, err = http.Get(ts.URL + "/api/projects/acme-support/analytics/messages?days=7")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	data, ok = body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)

	resp, err = http.Get(ts.URL + "/api/projects/acme-support/analytics/messages?days=0")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
