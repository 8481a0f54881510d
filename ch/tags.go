package ch

import (
	"github.com/google/uuid"
)

// CHTag is a row of the tags table: one tag name attached to one span.
type CHTag struct {
	ID        uuid.UUID `ch:"id" json:"id"`
	ProjectID uuid.UUID `ch:"project_id" json:"project_id"`
	SpanID    uuid.UUID `ch:"span_id" json:"span_id"`
	Name      string    `ch:"name" json:"name"`
	Source    string    `ch:"source" json:"source"`
	CreatedAt int64     `ch:"created_at" json:"created_at"`
}

// Table implements Insertable.
func (CHTag) Table() Table { return TableTags }

// AsyncInsert implements Insertable.
func (CHTag) AsyncInsert() bool { return false }
