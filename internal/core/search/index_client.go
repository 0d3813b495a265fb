package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/legalworkflow/docprocessor/internal/core"
	"github.com/legalworkflow/docprocessor/internal/models"
)

const apiVersion = "2023-11-01"

// IndexClient talks to the search service's REST API. Uploads use the
// mergeOrUpload action so reprocessing a document overwrites its entries
// in place.
type IndexClient struct {
	endpoint  string
	apiKey    string
	indexName string
	http      *http.Client
}

var _ core.IndexClient = (*IndexClient)(nil)

func NewIndexClient(endpoint, apiKey, indexName string) *IndexClient {
	return &IndexClient{
		endpoint:  strings.TrimRight(endpoint, "/"),
		apiKey:    apiKey,
		indexName: indexName,
		http:      &http.Client{Timeout: 60 * time.Second},
	}
}

type uploadAction struct {
	Action string `json:"@search.action"`
	models.IndexDocument
}

type deleteAction struct {
	Action string `json:"@search.action"`
	ID     string `json:"id"`
}

type batchResponse struct {
	Value []models.UploadResult `json:"value"`
}

func (c *IndexClient) docsURL(suffix string) string {
	return fmt.Sprintf("%s/indexes('%s')/docs/%s?api-version=%s", c.endpoint, c.indexName, suffix, apiVersion)
}

func (c *IndexClient) post(ctx context.Context, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	// 207 carries per-document verdicts in the body
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusMultiStatus {
		return fmt.Errorf("search service returned %d: %s", resp.StatusCode, truncateBody(raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func truncateBody(raw []byte) string {
	const max = 512
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}

func (c *IndexClient) Upload(ctx context.Context, docs []models.IndexDocument) ([]models.UploadResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	actions := make([]uploadAction, len(docs))
	for i, d := range docs {
		actions[i] = uploadAction{Action: "mergeOrUpload", IndexDocument: d}
	}

	var out batchResponse
	if err := c.post(ctx, c.docsURL("index"), map[string]any{"value": actions}, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

type searchHit struct {
	ID string `json:"id"`
}

type searchResponse struct {
	Value []searchHit `json:"value"`
}

const searchPageSize = 1000

// DeleteByFilename looks up every indexed entry for the file and deletes
// them in batches, re-querying until the filter returns no hits so
// documents with more chunks than one search page are fully cleared.
// Single quotes in the filename are doubled for the OData filter.
func (c *IndexClient) DeleteByFilename(ctx context.Context, filename string) (int, error) {
	escaped := strings.ReplaceAll(filename, "'", "''")
	query := map[string]any{
		"filter": fmt.Sprintf("filename eq '%s'", escaped),
		"select": "id",
		"top":    searchPageSize,
	}

	total := 0
	for {
		var found searchResponse
		if err := c.post(ctx, c.docsURL("search"), query, &found); err != nil {
			return total, fmt.Errorf("lookup indexed chunks: %w", err)
		}
		if len(found.Value) == 0 {
			break
		}

		actions := make([]deleteAction, len(found.Value))
		for i, hit := range found.Value {
			actions[i] = deleteAction{Action: "delete", ID: hit.ID}
		}
		if err := c.post(ctx, c.docsURL("index"), map[string]any{"value": actions}, nil); err != nil {
			return total, fmt.Errorf("delete indexed chunks: %w", err)
		}
		total += len(actions)

		if len(found.Value) < searchPageSize {
			break
		}
	}

	if total > 0 {
		logrus.WithFields(logrus.Fields{
			"filename": filename,
			"deleted":  total,
		}).Info("removed stale index entries")
	}
	return total, nil
}
