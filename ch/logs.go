package ch

import (
	"github.com/google/uuid"
)

// CHLog is a row of the logs table. It is a byte-for-byte copy of the log
// record with a size-bytes annotation.
type CHLog struct {
	LogID          uuid.UUID `ch:"log_id" json:"log_id"`
	ProjectID      uuid.UUID `ch:"project_id" json:"project_id"`
	TraceID        uuid.UUID `ch:"trace_id" json:"trace_id"`
	SpanID         uuid.UUID `ch:"span_id" json:"span_id"`
	Timestamp      int64     `ch:"timestamp" json:"timestamp"`
	ObservedTime   int64     `ch:"observed_timestamp" json:"observed_timestamp"`
	SeverityNumber int32     `ch:"severity_number" json:"severity_number"`
	SeverityText   string    `ch:"severity_text" json:"severity_text"`
	Body           string    `ch:"body" json:"body"`
	Attributes     string    `ch:"attributes" json:"attributes"`
	SizeBytes      int64     `ch:"size_bytes" json:"size_bytes"`
}

// Table implements Insertable.
func (CHLog) Table() Table { return TableLogs }

// AsyncInsert implements Insertable.
func (CHLog) AsyncInsert() bool { return false }
