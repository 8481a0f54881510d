package ch

import (
	"github.com/google/uuid"

	"github.com/tracefold/app-server/spans"
)

// CHEvent is a row of the events table: one span event.
type CHEvent struct {
	ID         uuid.UUID `ch:"id" json:"id"`
	SpanID     uuid.UUID `ch:"span_id" json:"span_id"`
	TraceID    uuid.UUID `ch:"trace_id" json:"trace_id"`
	ProjectID  uuid.UUID `ch:"project_id" json:"project_id"`
	Name       string    `ch:"name" json:"name"`
	Timestamp  int64     `ch:"timestamp" json:"timestamp"`
	Attributes string    `ch:"attributes" json:"attributes"`
}

// Table implements Insertable.
func (CHEvent) Table() Table { return TableEvents }

// AsyncInsert implements Insertable.
func (CHEvent) AsyncInsert() bool { return false }

// CHEventFromSpanEvent converts a span event into its columnar row.
func CHEventFromSpanEvent(event *spans.SpanEvent) CHEvent {
	return CHEvent{
		ID:         event.ID,
		SpanID:     event.SpanID,
		TraceID:    event.TraceID,
		ProjectID:  event.ProjectID,
		Name:       event.Name,
		Timestamp:  event.Timestamp.UnixNano(),
		Attributes: jsonString(event.Attributes),
	}
}
