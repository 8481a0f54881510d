// Package queryengine names the external SQL query engine collaborator and
// provides the HTTP forwarder plus a deterministic stub for tests and local
// development. The engine itself is out of scope.
package queryengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/tracefold/app-server/config"
)

// Client executes an SQL-style analytical query scoped to a project.
type Client interface {
	Query(ctx context.Context, projectID uuid.UUID, query string) (json.RawMessage, error)
}

// HTTPClient forwards queries to the query engine backend.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	maxResult  int64
}

// NewHTTPClient builds a forwarder from configuration.
func NewHTTPClient(cfg config.QueryEngineConfig) *HTTPClient {
	return &HTTPClient{
		baseURL:    cfg.URL,
		httpClient: &http.Client{Timeout: cfg.MaxExecutionTime},
		maxResult:  cfg.MaxResultBytes,
	}
}

// Query implements Client.
func (c *HTTPClient) Query(ctx context.Context, projectID uuid.UUID, query string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{
		"projectId": projectID.String(),
		"query":     query,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query engine request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("query engine returned %d: %s", resp.StatusCode, string(respBody))
	}

	result, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResult))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(result), nil
}

// Mock is a deterministic stub returning an empty result set.
type Mock struct{}

// Query implements Client.
func (Mock) Query(_ context.Context, projectID uuid.UUID, query string) (json.RawMessage, error) {
	result, err := json.Marshal(map[string]interface{}{
		"projectId": projectID,
		"query":     query,
		"rows":      []interface{}{},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
