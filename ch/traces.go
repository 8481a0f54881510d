package ch

import (
	"github.com/google/uuid"

	"github.com/tracefold/app-server/spans"
)

// CHTrace is a row of the traces_replacing table. The table uses replacement
// semantics keyed by trace id, which makes cross-batch folding last-writer-
// wins safe.
type CHTrace struct {
	ID                uuid.UUID `ch:"id" json:"id"`
	ProjectID         uuid.UUID `ch:"project_id" json:"project_id"`
	StartTime         int64     `ch:"start_time" json:"start_time"`
	EndTime           int64     `ch:"end_time" json:"end_time"`
	InputTokens       int64     `ch:"input_tokens" json:"input_tokens"`
	OutputTokens      int64     `ch:"output_tokens" json:"output_tokens"`
	TotalTokens       int64     `ch:"total_tokens" json:"total_tokens"`
	InputCost         float64   `ch:"input_cost" json:"input_cost"`
	OutputCost        float64   `ch:"output_cost" json:"output_cost"`
	TotalCost         float64   `ch:"total_cost" json:"total_cost"`
	SessionID         string    `ch:"session_id" json:"session_id"`
	UserID            string    `ch:"user_id" json:"user_id"`
	TraceType         string    `ch:"trace_type" json:"trace_type"`
	Metadata          string    `ch:"metadata" json:"metadata"`
	HasBrowserSession uint8     `ch:"has_browser_session" json:"has_browser_session"`
	TopSpanID         uuid.UUID `ch:"top_span_id" json:"top_span_id"`
	TopSpanName       string    `ch:"top_span_name" json:"top_span_name"`
	TopSpanType       string    `ch:"top_span_type" json:"top_span_type"`
	Status            string    `ch:"status" json:"status"`
}

// Table implements Insertable.
func (CHTrace) Table() Table { return TableTraces }

// AsyncInsert implements Insertable.
func (CHTrace) AsyncInsert() bool { return false }

// CHTraceFromAttributes converts a folded trace aggregate into its columnar
// row.
func CHTraceFromAttributes(projectID uuid.UUID, attrs *spans.TraceAttributes) CHTrace {
	row := CHTrace{
		ID:           attrs.ID,
		ProjectID:    projectID,
		InputTokens:  attrs.InputTokenCount,
		OutputTokens: attrs.OutputTokenCount,
		TotalTokens:  attrs.TotalTokenCount,
		InputCost:    attrs.InputCost,
		OutputCost:   attrs.OutputCost,
		TotalCost:    attrs.TotalCost,
		SessionID:    derefOr(attrs.SessionID, ""),
		UserID:       derefOr(attrs.UserID, ""),
		TraceType:    string(derefOr(attrs.TraceType, spans.TraceTypeDefault)),
		Metadata:     jsonString(attrs.Metadata),
		TopSpanID:    derefOr(attrs.TopSpanID, uuid.Nil),
		TopSpanName:  derefOr(attrs.TopSpanName, ""),
		TopSpanType:  string(derefOr(attrs.TopSpanType, spans.SpanTypeDefault)),
		Status:       derefOr(attrs.Status, ""),
	}
	if attrs.StartTime != nil {
		row.StartTime = timeToNanoseconds(*attrs.StartTime)
	}
	if attrs.EndTime != nil {
		row.EndTime = timeToNanoseconds(*attrs.EndTime)
	}
	if attrs.HasBrowserSession != nil && *attrs.HasBrowserSession {
		row.HasBrowserSession = 1
	}
	return row
}
