package ch

import (
	"github.com/google/uuid"
)

// CHBrowserEvent is a row of the browser_session_events table: one rrweb
// event of a recorded browser session. The event data blob is opaque.
type CHBrowserEvent struct {
	EventID   uuid.UUID `ch:"event_id" json:"event_id"`
	SessionID uuid.UUID `ch:"session_id" json:"session_id"`
	TraceID   uuid.UUID `ch:"trace_id" json:"trace_id"`
	ProjectID uuid.UUID `ch:"project_id" json:"project_id"`
	Timestamp int64     `ch:"timestamp" json:"timestamp"`
	EventType int32     `ch:"event_type" json:"event_type"`
	Data      string    `ch:"data" json:"data"`
	SizeBytes int64     `ch:"size_bytes" json:"size_bytes"`
}

// Table implements Insertable.
func (CHBrowserEvent) Table() Table { return TableBrowserSessionEvents }

// AsyncInsert implements Insertable. Browser events are high-volume and
// latency-insensitive, so they use the async insert path.
func (CHBrowserEvent) AsyncInsert() bool { return true }
