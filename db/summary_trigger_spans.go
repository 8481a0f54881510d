package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SummaryTriggerSpan is a declarative rule pairing a span name with a signal
// definition. Spans matching the name schedule downstream analysis.
type SummaryTriggerSpan struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID  uuid.UUID `gorm:"type:uuid" json:"projectId"`
	SpanName   string    `json:"spanName"`
	SignalName string    `json:"signalName"`
	Prompt     string    `json:"prompt"`
	// StructuredOutputSchema is a JSON schema the downstream analyzer must
	// conform its output to.
	StructuredOutputSchema JSONMap   `gorm:"type:jsonb" json:"structuredOutputSchema,omitempty"`
	Filters                JSONMap   `gorm:"type:jsonb" json:"filters,omitempty"`
	CreatedAt              time.Time `json:"createdAt"`
}

// TableName implements gorm's Tabler.
func (SummaryTriggerSpan) TableName() string { return "summary_trigger_spans" }

// GetSummaryTriggerSpans lists a project's trigger rules.
func GetSummaryTriggerSpans(ctx context.Context, d *DB, projectID uuid.UUID) ([]SummaryTriggerSpan, error) {
	var triggers []SummaryTriggerSpan
	err := d.Gorm.WithContext(ctx).
		Find(&triggers, "project_id = ?", projectID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get summary trigger spans for project %s: %w", projectID, err)
	}
	return triggers, nil
}
