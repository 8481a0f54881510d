package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Evaluation groups datapoints produced by one evaluation run.
type Evaluation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid" json:"projectId"`
	Name      string    `json:"name"`
	GroupName string    `json:"groupName"`
	Metadata  JSONMap   `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName implements gorm's Tabler.
func (Evaluation) TableName() string { return "evaluations" }

// EvaluationDatapoint is a single datapoint within an evaluation.
type EvaluationDatapoint struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	EvaluationID   uuid.UUID  `gorm:"type:uuid" json:"evaluationId"`
	ProjectID      uuid.UUID  `gorm:"type:uuid" json:"projectId"`
	Index          int64      `json:"index"`
	Data           JSONMap    `gorm:"type:jsonb" json:"data"`
	Target         JSONMap    `gorm:"type:jsonb" json:"target,omitempty"`
	ExecutorOutput JSONMap    `gorm:"type:jsonb" json:"executorOutput,omitempty"`
	TraceID        *uuid.UUID `gorm:"type:uuid" json:"traceId,omitempty"`
	Scores         Float64Map `gorm:"type:jsonb" json:"scores,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// TableName implements gorm's Tabler.
func (EvaluationDatapoint) TableName() string { return "evaluation_datapoints" }

// CreateEvaluation inserts a new evaluation.
func CreateEvaluation(ctx context.Context, d *DB, evaluation *Evaluation) error {
	if err := d.Gorm.WithContext(ctx).Create(evaluation).Error; err != nil {
		return fmt.Errorf("failed to create evaluation: %w", err)
	}
	return nil
}

// GetEvaluation looks up a project-scoped evaluation by id.
func GetEvaluation(ctx context.Context, d *DB, projectID, evaluationID uuid.UUID) (*Evaluation, error) {
	var evaluation Evaluation
	err := d.Gorm.WithContext(ctx).
		First(&evaluation, "id = ? AND project_id = ?", evaluationID, projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluation %s: %w", evaluationID, err)
	}
	return &evaluation, nil
}

// UpsertEvaluationDatapoints inserts datapoints, replacing any existing rows
// with the same id.
func UpsertEvaluationDatapoints(ctx context.Context, d *DB, points []EvaluationDatapoint) error {
	if len(points) == 0 {
		return nil
	}
	err := d.Gorm.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"data", "target", "executor_output", "trace_id", "scores", "index",
			}),
		}).
		Create(&points).Error
	if err != nil {
		return fmt.Errorf("failed to upsert evaluation datapoints: %w", err)
	}
	return nil
}

// UpdateEvaluationDatapoint sets the executor output and scores of one
// datapoint.
func UpdateEvaluationDatapoint(ctx context.Context, d *DB, projectID, evaluationID, datapointID uuid.UUID, executorOutput JSONMap, scores Float64Map) error {
	updates := map[string]interface{}{"scores": scores}
	if executorOutput != nil {
		updates["executor_output"] = executorOutput
	}
	result := d.Gorm.WithContext(ctx).
		Model(&EvaluationDatapoint{}).
		Where("id = ? AND evaluation_id = ? AND project_id = ?", datapointID, evaluationID, projectID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update evaluation datapoint %s: %w", datapointID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
