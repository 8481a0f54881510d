package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeploymentMode selects the write path for a workspace: CLOUD writes go
// straight to the columnar/blob backends, HYBRID writes are relayed through
// the workspace's own data plane.
type DeploymentMode string

const (
	DeploymentModeCloud  DeploymentMode = "CLOUD"
	DeploymentModeHybrid DeploymentMode = "HYBRID"
)

// Workspace is the top-level tenancy entity.
type Workspace struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string    `json:"name"`
	BytesIngested int64     `json:"bytesIngested"`
	BytesLimit    int64     `json:"bytesLimit"`
	StepsCount    int64     `json:"stepsCount"`
	StepsLimit    int64     `json:"stepsLimit"`
	CreatedAt     time.Time `json:"createdAt"`
}

// TableName implements gorm's Tabler.
func (Workspace) TableName() string { return "workspaces" }

// WorkspaceDeployment is the per-workspace routing configuration. For HYBRID
// workspaces the data plane URL and the Ed25519 signing key are stored
// envelope-encrypted (hex ciphertext + hex nonce) under the process-wide AEAD
// key, with the workspace id bound as additional authenticated data.
type WorkspaceDeployment struct {
	WorkspaceID       uuid.UUID      `gorm:"type:uuid;primaryKey" json:"workspaceId"`
	Mode              DeploymentMode `json:"mode"`
	DataPlaneURL      *string        `json:"dataPlaneUrl,omitempty"`
	DataPlaneURLNonce *string        `json:"dataPlaneUrlNonce,omitempty"`
	PrivateKey        *string        `json:"privateKey,omitempty"`
	PrivateKeyNonce   *string        `json:"privateKeyNonce,omitempty"`
	PublicKey         *string        `json:"publicKey,omitempty"`
}

// TableName implements gorm's Tabler.
func (WorkspaceDeployment) TableName() string { return "workspace_deployments" }

// GetWorkspaceDeploymentByProjectID resolves the deployment configuration for
// the workspace owning the project. Workspaces without a deployment row
// default to CLOUD.
func GetWorkspaceDeploymentByProjectID(ctx context.Context, d *DB, projectID uuid.UUID) (*WorkspaceDeployment, error) {
	type row struct {
		WorkspaceID       uuid.UUID
		Mode              *DeploymentMode
		DataPlaneURL      *string
		DataPlaneURLNonce *string
		PrivateKey        *string
		PrivateKeyNonce   *string
		PublicKey         *string
	}

	var r row
	err := d.Gorm.WithContext(ctx).
		Table("projects").
		Select(`projects.workspace_id,
			workspace_deployments.mode,
			workspace_deployments.data_plane_url,
			workspace_deployments.data_plane_url_nonce,
			workspace_deployments.private_key,
			workspace_deployments.private_key_nonce,
			workspace_deployments.public_key`).
		Joins("LEFT JOIN workspace_deployments ON workspace_deployments.workspace_id = projects.workspace_id").
		Where("projects.id = ?", projectID).
		Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace deployment for project %s: %w", projectID, err)
	}

	deployment := &WorkspaceDeployment{
		WorkspaceID:       r.WorkspaceID,
		Mode:              DeploymentModeCloud,
		DataPlaneURL:      r.DataPlaneURL,
		DataPlaneURLNonce: r.DataPlaneURLNonce,
		PrivateKey:        r.PrivateKey,
		PrivateKeyNonce:   r.PrivateKeyNonce,
		PublicKey:         r.PublicKey,
	}
	if r.Mode != nil {
		deployment.Mode = *r.Mode
	}
	return deployment, nil
}

// AddWorkspaceBytesIngested bumps the durable usage counter for a workspace.
func AddWorkspaceBytesIngested(ctx context.Context, d *DB, workspaceID uuid.UUID, bytes int64) error {
	err := d.Gorm.WithContext(ctx).
		Model(&Workspace{}).
		Where("id = ?", workspaceID).
		UpdateColumn("bytes_ingested", gorm.Expr("bytes_ingested + ?", bytes)).Error
	if err != nil {
		return fmt.Errorf("failed to add bytes ingested for workspace %s: %w", workspaceID, err)
	}
	return nil
}
