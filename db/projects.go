package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project is a tenancy entity owning all ingested data. It belongs to
// exactly one workspace.
type Project struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `json:"name"`
	WorkspaceID uuid.UUID `gorm:"type:uuid" json:"workspaceId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TableName implements gorm's Tabler.
func (Project) TableName() string { return "projects" }

// GetProject looks up a project by id.
func GetProject(ctx context.Context, d *DB, projectID uuid.UUID) (*Project, error) {
	var project Project
	err := d.Gorm.WithContext(ctx).First(&project, "id = ?", projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", projectID, err)
	}
	return &project, nil
}
