package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tracefold/app-server/dataplane"
	"github.com/tracefold/app-server/db"
)

// Data plane relay endpoints for blob operations.
const (
	dataPlaneUploadPath   = "/api/v1/storage/upload"
	dataPlaneDownloadPath = "/api/v1/storage/download"
)

// DataPlaneStorage relays blob operations to a HYBRID workspace's data
// plane.
type DataPlaneStorage struct {
	httpClient *http.Client
	minter     *dataplane.TokenMinter
	config     *db.WorkspaceDeployment
}

// NewDataPlaneStorage builds a relay client for one workspace.
func NewDataPlaneStorage(httpClient *http.Client, minter *dataplane.TokenMinter, config *db.WorkspaceDeployment) *DataPlaneStorage {
	return &DataPlaneStorage{
		httpClient: httpClient,
		minter:     minter,
		config:     config,
	}
}

func (d *DataPlaneStorage) resolveURLAndToken() (string, string, error) {
	if d.config.DataPlaneURL == nil || d.config.DataPlaneURLNonce == nil {
		return "", "", fmt.Errorf("data plane URL is not configured for workspace %s", d.config.WorkspaceID)
	}
	baseURL, err := dataplane.DecryptWorkspaceString(
		d.config.WorkspaceID, *d.config.DataPlaneURLNonce, *d.config.DataPlaneURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to decrypt data plane URL: %w", err)
	}
	token, err := d.minter.GenerateAuthToken(d.config)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate auth token: %w", err)
	}
	return baseURL, token, nil
}

// Store implements Storage. The data plane responds with the payload URL as
// plain text.
func (d *DataPlaneStorage) Store(ctx context.Context, bucket, key string, data []byte) (string, error) {
	baseURL, token, err := d.resolveURLAndToken()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]string{
		"bucket": bucket,
		"key":    key,
		"data":   base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+dataPlaneUploadPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("data plane upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("data plane returned %d: %s", resp.StatusCode, string(respBody))
	}

	url, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(url), nil
}

// GetStream implements Storage.
func (d *DataPlaneStorage) GetStream(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	baseURL, token, err := d.resolveURLAndToken()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+dataPlaneDownloadPath, nil)
	if err != nil {
		return nil, err
	}
	query := req.URL.Query()
	query.Set("bucket", bucket)
	query.Set("key", key)
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("data plane download failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("data plane returned %d: %s", resp.StatusCode, string(respBody))
	}
	return resp.Body, nil
}

// GetSize implements Storage.
func (d *DataPlaneStorage) GetSize(ctx context.Context, bucket, key string) (int64, error) {
	stream, err := d.GetStream(ctx, bucket, key)
	if err != nil {
		return 0, err
	}
	defer stream.Close()
	size, err := io.Copy(io.Discard, stream)
	if err != nil {
		return 0, err
	}
	return size, nil
}
