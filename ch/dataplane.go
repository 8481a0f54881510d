package ch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tracefold/app-server/dataplane"
	"github.com/tracefold/app-server/db"
)

// dataPlaneWritePath is the relay endpoint for columnar writes.
const dataPlaneWritePath = "/api/v1/ch/write"

// DataPlaneClickhouse relays columnar writes to a HYBRID workspace's data
// plane over HTTPS with a short-lived Ed25519-signed bearer token.
type DataPlaneClickhouse struct {
	httpClient *http.Client
	minter     *dataplane.TokenMinter
	config     *db.WorkspaceDeployment
}

// NewDataPlaneClickhouse builds a relay client for one workspace.
func NewDataPlaneClickhouse(httpClient *http.Client, minter *dataplane.TokenMinter, config *db.WorkspaceDeployment) *DataPlaneClickhouse {
	return &DataPlaneClickhouse{
		httpClient: httpClient,
		minter:     minter,
		config:     config,
	}
}

// insertBatch POSTs one table's rows to the data plane write endpoint.
func (d *DataPlaneClickhouse) insertBatch(ctx context.Context, batch DataPlaneBatch) error {
	if d.config.DataPlaneURL == nil || d.config.DataPlaneURLNonce == nil {
		return fmt.Errorf("data plane URL is not configured for workspace %s", d.config.WorkspaceID)
	}

	baseURL, err := dataplane.DecryptWorkspaceString(
		d.config.WorkspaceID, *d.config.DataPlaneURLNonce, *d.config.DataPlaneURL)
	if err != nil {
		return fmt.Errorf("failed to decrypt data plane URL: %w", err)
	}

	token, err := d.minter.GenerateAuthToken(d.config)
	if err != nil {
		return fmt.Errorf("failed to generate auth token: %w", err)
	}

	body, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+dataPlaneWritePath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("data plane request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("data plane returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
