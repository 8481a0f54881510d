package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProjectAPIKey is a project-scoped API key. Only the SHA3-256 hash of the
// raw key is stored; the raw value is returned to the creator exactly once.
type ProjectAPIKey struct {
	Hash      string    `gorm:"primaryKey" json:"hash"`
	Shorthand string    `json:"shorthand"`
	ProjectID uuid.UUID `gorm:"type:uuid" json:"projectId"`
	Name      *string   `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName implements gorm's Tabler.
func (ProjectAPIKey) TableName() string { return "project_api_keys" }

// GetProjectAPIKeyByHash looks up an API key by its hash.
func GetProjectAPIKeyByHash(ctx context.Context, d *DB, hash string) (*ProjectAPIKey, error) {
	var key ProjectAPIKey
	err := d.Gorm.WithContext(ctx).First(&key, "hash = ?", hash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project api key: %w", err)
	}
	return &key, nil
}

// CreateProjectAPIKey stores a new key row.
func CreateProjectAPIKey(ctx context.Context, d *DB, key *ProjectAPIKey) error {
	if err := d.Gorm.WithContext(ctx).Create(key).Error; err != nil {
		return fmt.Errorf("failed to create project api key: %w", err)
	}
	return nil
}

// DeleteProjectAPIKey removes a key row by hash.
func DeleteProjectAPIKey(ctx context.Context, d *DB, hash string) error {
	if err := d.Gorm.WithContext(ctx).Delete(&ProjectAPIKey{}, "hash = ?", hash).Error; err != nil {
		return fmt.Errorf("failed to delete project api key: %w", err)
	}
	return nil
}
