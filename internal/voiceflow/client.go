package voiceflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/treshel/botboard/pkg/retry"
)

// Client talks to the Voiceflow transcript and knowledge-base APIs.
// Credentials are per project, so every call takes the project's API
// key rather than binding one at construction.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      retry.Policy
	logger     *zap.Logger
}

func NewClient(baseURL string, policy retry.Policy, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      policy,
		logger:     logger,
	}
}

// ListOptions bounds the transcript list by creation date. Zero
// values list the full history.
type ListOptions struct {
	StartDate time.Time
	EndDate   time.Time
}

// ListTranscripts fetches the transcript summaries for a Voiceflow
// project. A non-array body is treated as no data: the platform
// returns an object on some error paths and the list shape has
// drifted before.
func (c *Client) ListTranscripts(ctx context.Context, projectID, apiKey string, opts ListOptions) ([]TranscriptSummary, error) {
	endpoint := fmt.Sprintf("%s/v2/transcripts/%s", c.baseURL, url.PathEscape(projectID))
	if !opts.StartDate.IsZero() && !opts.EndDate.IsZero() {
		endpoint += fmt.Sprintf("?startDate=%s&endDate=%s",
			opts.StartDate.Format("2006-01-02"), opts.EndDate.Format("2006-01-02"))
	}

	body, err := c.get(ctx, endpoint, apiKey)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	var summaries []TranscriptSummary
	if !looksLikeArray(body) {
		c.logger.Warn("unexpected transcript list response shape, treating as empty",
			zap.String("project_id", projectID))
		return summaries, nil
	}
	if err := json.Unmarshal(body, &summaries); err != nil {
		return nil, fmt.Errorf("decode transcript list: %w", err)
	}
	return summaries, nil
}

// GetTranscriptTurns fetches the ordered raw turns of one transcript.
func (c *Client) GetTranscriptTurns(ctx context.Context, projectID, transcriptID, apiKey string) ([]Turn, error) {
	endpoint := fmt.Sprintf("%s/v2/transcripts/%s/%s",
		c.baseURL, url.PathEscape(projectID), url.PathEscape(transcriptID))

	body, err := c.get(ctx, endpoint, apiKey)
	if err != nil {
		return nil, fmt.Errorf("get transcript turns: %w", err)
	}

	var turns []Turn
	if !looksLikeArray(body) {
		c.logger.Warn("unexpected transcript content response shape, treating as empty",
			zap.String("transcript_id", transcriptID))
		return turns, nil
	}
	if err := json.Unmarshal(body, &turns); err != nil {
		return nil, fmt.Errorf("decode transcript turns: %w", err)
	}
	return turns, nil
}

// get issues an authenticated GET with the shared retry policy. Any
// non-2xx status counts as a retryable failure.
func (c *Client) get(ctx context.Context, endpoint, apiKey string) ([]byte, error) {
	var body []byte
	err := c.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// looksLikeArray reports whether a JSON body is a top-level array.
func looksLikeArray(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}
