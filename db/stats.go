package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WorkspaceLimitsExceeded reports which workspace caps are currently hit.
type WorkspaceLimitsExceeded struct {
	Steps         bool `json:"steps"`
	BytesIngested bool `json:"bytesIngested"`
}

// IsWorkspaceOverLimit compares a workspace's usage counters against its
// limits. A limit of zero means unlimited.
func IsWorkspaceOverLimit(ctx context.Context, d *DB, workspaceID uuid.UUID) (*WorkspaceLimitsExceeded, error) {
	var workspace Workspace
	err := d.Gorm.WithContext(ctx).First(&workspace, "id = ?", workspaceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace %s: %w", workspaceID, err)
	}

	return &WorkspaceLimitsExceeded{
		Steps:         workspace.StepsLimit > 0 && workspace.StepsCount >= workspace.StepsLimit,
		BytesIngested: workspace.BytesLimit > 0 && workspace.BytesIngested >= workspace.BytesLimit,
	}, nil
}

// EvaluatorScore is a computed score attached to a span, mirrored into the
// columnar evaluator_scores table by the evaluator consumer.
type EvaluatorScore struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid" json:"projectId"`
	SpanID    uuid.UUID `gorm:"type:uuid" json:"spanId"`
	Name      string    `json:"name"`
	Score     float64   `json:"score"`
	Source    string    `json:"source"`
}

// TableName implements gorm's Tabler.
func (EvaluatorScore) TableName() string { return "evaluator_scores" }

// CreateEvaluatorScores inserts computed evaluator scores.
func CreateEvaluatorScores(ctx context.Context, d *DB, scores []EvaluatorScore) error {
	if len(scores) == 0 {
		return nil
	}
	if err := d.Gorm.WithContext(ctx).Create(&scores).Error; err != nil {
		return fmt.Errorf("failed to create evaluator scores: %w", err)
	}
	return nil
}
