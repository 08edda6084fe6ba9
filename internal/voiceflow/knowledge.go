package voiceflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/treshel/botboard/internal/models"
)

const faqDocumentName = "FAQs"

type knowledgeDocument struct {
	DocumentID string `json:"documentID"`
	Data       struct {
		Name string `json:"name"`
	} `json:"data"`
}

type knowledgeDocumentList struct {
	Data []knowledgeDocument `json:"data"`
}

type faqItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type faqUpload struct {
	Data struct {
		Name   string `json:"name"`
		Schema struct {
			SearchableFields []string `json:"searchableFields"`
			MetadataFields   []string `json:"metadataFields"`
		} `json:"schema"`
		Items []faqItem `json:"items"`
	} `json:"data"`
}

// ReplaceFAQ pushes a project's FAQ set to the Voiceflow knowledge
// base: the existing FAQ document, if any, is deleted and a fresh
// table document is uploaded. A failed delete is logged but does not
// stop the upload; the stale document is shadowed by the new one.
func (c *Client) ReplaceFAQ(ctx context.Context, apiKey string, entries []models.KnowledgeEntry) error {
	docID, err := c.findFAQDocumentID(ctx, apiKey)
	if err != nil {
		c.logger.Warn("failed to look up existing FAQ document", zap.Error(err))
	}

	if docID != "" {
		if err := c.deleteDocument(ctx, apiKey, docID); err != nil {
			c.logger.Warn("failed to delete existing FAQ document",
				zap.String("document_id", docID), zap.Error(err))
		}
	}

	return c.uploadFAQ(ctx, apiKey, entries)
}

// findFAQDocumentID returns the document id of the FAQ table, or ""
// when the knowledge base is empty or has no FAQ document. A 404 from
// the platform means an empty knowledge base, not an error.
func (c *Client) findFAQDocumentID(ctx context.Context, apiKey string) (string, error) {
	endpoint := c.baseURL + "/v1/knowledge-base/docs?page=1&limit=100"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("list knowledge-base docs: unexpected status %d", resp.StatusCode)
	}

	var list knowledgeDocumentList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", fmt.Errorf("decode knowledge-base doc list: %w", err)
	}

	for _, doc := range list.Data {
		if doc.Data.Name == faqDocumentName {
			return doc.DocumentID, nil
		}
	}
	return "", nil
}

func (c *Client) deleteDocument(ctx context.Context, apiKey, documentID string) error {
	endpoint := fmt.Sprintf("%s/v1/knowledge-base/docs/%s", c.baseURL, url.PathEscape(documentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delete knowledge-base doc: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) uploadFAQ(ctx context.Context, apiKey string, entries []models.KnowledgeEntry) error {
	var upload faqUpload
	upload.Data.Name = faqDocumentName
	upload.Data.Schema.SearchableFields = []string{"question", "answer"}
	upload.Data.Schema.MetadataFields = []string{}
	upload.Data.Items = make([]faqItem, 0, len(entries))
	for _, entry := range entries {
		upload.Data.Items = append(upload.Data.Items, faqItem{
			Question: entry.Question,
			Answer:   entry.Answer,
		})
	}

	payload, err := json.Marshal(upload)
	if err != nil {
		return fmt.Errorf("encode FAQ upload: %w", err)
	}

	endpoint := c.baseURL + "/v1/knowledge-base/docs/upload/table"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload FAQ document: unexpected status %d", resp.StatusCode)
	}
	return nil
}
