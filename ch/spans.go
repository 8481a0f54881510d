package ch

import (
	"github.com/google/uuid"

	"github.com/tracefold/app-server/spans"
)

// CHSpan is a row of the spans table.
type CHSpan struct {
	SpanID       uuid.UUID `ch:"span_id" json:"span_id"`
	TraceID      uuid.UUID `ch:"trace_id" json:"trace_id"`
	ParentSpanID uuid.UUID `ch:"parent_span_id" json:"parent_span_id"`
	ProjectID    uuid.UUID `ch:"project_id" json:"project_id"`
	Name         string    `ch:"name" json:"name"`
	SpanType     string    `ch:"span_type" json:"span_type"`
	StartTime    int64     `ch:"start_time" json:"start_time"`
	EndTime      int64     `ch:"end_time" json:"end_time"`
	Attributes   string    `ch:"attributes" json:"attributes"`
	Input        string    `ch:"input" json:"input"`
	Output       string    `ch:"output" json:"output"`
	InputURL     string    `ch:"input_url" json:"input_url"`
	OutputURL    string    `ch:"output_url" json:"output_url"`
	Status       string    `ch:"status" json:"status"`
	SessionID    string    `ch:"session_id" json:"session_id"`
	UserID       string    `ch:"user_id" json:"user_id"`
	Path         string    `ch:"path" json:"path"`
	RequestModel string    `ch:"request_model" json:"request_model"`
	Provider     string    `ch:"provider" json:"provider"`
	InputTokens  int64     `ch:"input_tokens" json:"input_tokens"`
	OutputTokens int64     `ch:"output_tokens" json:"output_tokens"`
	TotalTokens  int64     `ch:"total_tokens" json:"total_tokens"`
	InputCost    float64   `ch:"input_cost" json:"input_cost"`
	OutputCost   float64   `ch:"output_cost" json:"output_cost"`
	TotalCost    float64   `ch:"total_cost" json:"total_cost"`
	SizeBytes    int64     `ch:"size_bytes" json:"size_bytes"`
}

// Table implements Insertable.
func (CHSpan) Table() Table { return TableSpans }

// AsyncInsert implements Insertable.
func (CHSpan) AsyncInsert() bool { return false }

// CHSpanFromSpan converts a processed span into its columnar row. Inputs and
// outputs spilled to blob storage arrive here as empty values with URLs set.
func CHSpanFromSpan(span *spans.Span) CHSpan {
	row := CHSpan{
		SpanID:       span.SpanID,
		TraceID:      span.TraceID,
		ParentSpanID: derefOr(span.ParentSpanID, uuid.Nil),
		ProjectID:    span.ProjectID,
		Name:         span.Name,
		SpanType:     string(span.SpanType),
		StartTime:    timeToNanoseconds(span.StartTime),
		EndTime:      timeToNanoseconds(span.EndTime),
		Attributes:   jsonString(map[string]interface{}(span.Attributes)),
		Input:        jsonString(span.Input),
		Output:       jsonString(span.Output),
		InputURL:     derefOr(span.InputURL, ""),
		OutputURL:    derefOr(span.OutputURL, ""),
		Status:       derefOr(span.Status, ""),
		SessionID:    derefOr(span.Attributes.SessionID(), ""),
		UserID:       derefOr(span.Attributes.UserID(), ""),
		Path:         span.Attributes.Path(),
		RequestModel: span.Attributes.RequestModel(),
		Provider:     span.Attributes.Provider(),
		InputTokens:  span.InputTokens,
		OutputTokens: span.OutputTokens,
		TotalTokens:  span.TotalTokens,
		InputCost:    span.InputCost,
		OutputCost:   span.OutputCost,
		TotalCost:    span.TotalCost,
		SizeBytes:    span.SizeBytes,
	}
	return row
}
