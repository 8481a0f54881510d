package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LabelingQueue is a named per-project queue of spans awaiting human labels.
type LabelingQueue struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid" json:"projectId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName implements gorm's Tabler.
func (LabelingQueue) TableName() string { return "labeling_queues" }

// LabelingQueueEntry references a span pushed into a labeling queue.
type LabelingQueueEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	QueueID   uuid.UUID `gorm:"type:uuid" json:"queueId"`
	SpanID    uuid.UUID `gorm:"type:uuid" json:"spanId"`
	Metadata  JSONMap   `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName implements gorm's Tabler.
func (LabelingQueueEntry) TableName() string { return "labeling_queue_entries" }

// GetLabelingQueueByName looks up a project's labeling queue by name.
func GetLabelingQueueByName(ctx context.Context, d *DB, projectID uuid.UUID, name string) (*LabelingQueue, error) {
	var queue LabelingQueue
	err := d.Gorm.WithContext(ctx).
		First(&queue, "project_id = ? AND name = ?", projectID, name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get labeling queue %q: %w", name, err)
	}
	return &queue, nil
}

// AppendLabelingQueueEntries appends entries referencing freshly recorded
// spans.
func AppendLabelingQueueEntries(ctx context.Context, d *DB, entries []LabelingQueueEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := d.Gorm.WithContext(ctx).Create(&entries).Error; err != nil {
		return fmt.Errorf("failed to append labeling queue entries: %w", err)
	}
	return nil
}
