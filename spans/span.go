// Package spans holds the span data model: the Span entity, its attribute
// promotion rules, OpenTelemetry conversion, span events, and the derived
// per-trace aggregate.
package spans

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

// SpanType classifies a span. The type is terminal: it never changes after
// insert.
type SpanType string

const (
	SpanTypeDefault    SpanType = "DEFAULT"
	SpanTypeLLM        SpanType = "LLM"
	SpanTypeTool       SpanType = "TOOL"
	SpanTypePipeline   SpanType = "PIPELINE"
	SpanTypeExecutor   SpanType = "EXECUTOR"
	SpanTypeEvaluator  SpanType = "EVALUATOR"
	SpanTypeEvaluation SpanType = "EVALUATION"
)

// SpanTypeFromString maps an lmnr.span.type attribute value to a SpanType,
// defaulting to Default for unknown values.
func SpanTypeFromString(raw string) SpanType {
	switch strings.ToUpper(raw) {
	case "LLM":
		return SpanTypeLLM
	case "TOOL":
		return SpanTypeTool
	case "PIPELINE":
		return SpanTypePipeline
	case "EXECUTOR":
		return SpanTypeExecutor
	case "EVALUATOR":
		return SpanTypeEvaluator
	case "EVALUATION":
		return SpanTypeEvaluation
	default:
		return SpanTypeDefault
	}
}

// Span is the unit of ingested telemetry. span_id is unique within
// (project_id, trace_id); start_time never exceeds end_time.
type Span struct {
	SpanID       uuid.UUID      `json:"spanId"`
	TraceID      uuid.UUID      `json:"traceId"`
	ParentSpanID *uuid.UUID     `json:"parentSpanId,omitempty"`
	ProjectID    uuid.UUID      `json:"projectId"`
	Name         string         `json:"name"`
	SpanType     SpanType       `json:"spanType"`
	StartTime    time.Time      `json:"startTime"`
	EndTime      time.Time      `json:"endTime"`
	Attributes   SpanAttributes `json:"attributes"`
	Input        interface{}    `json:"input,omitempty"`
	Output       interface{}    `json:"output,omitempty"`
	Status       *string        `json:"status,omitempty"`
	Events       []SpanEvent    `json:"events,omitempty"`
	InputURL     *string        `json:"inputUrl,omitempty"`
	OutputURL    *string        `json:"outputUrl,omitempty"`
	SizeBytes    int64          `json:"sizeBytes"`

	// Pricing fields attached during processing; zero until then.
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	TotalTokens  int64   `json:"totalTokens"`
	InputCost    float64 `json:"inputCost"`
	OutputCost   float64 `json:"outputCost"`
	TotalCost    float64 `json:"totalCost"`
}

// ShouldSave reports whether the span should be persisted. Spans flagged
// with the ignore attribute are dropped at admission.
func (s *Span) ShouldSave() bool {
	return !s.Attributes.ShouldIgnore()
}

// IsTopSpan reports whether the span is the parentless root of its trace.
func (s *Span) IsTopSpan() bool {
	return s.ParentSpanID == nil
}

// EstimatePayloadSize returns the JSON-encoded size of a span field, used
// against the inline budget for blob spill-out.
func EstimatePayloadSize(value interface{}) int64 {
	if value == nil {
		return 0
	}
	data, err := json.Marshal(value)
	if err != nil {
		return 0
	}
	return int64(len(data))
}

// SpanFromOtelSpan converts an OTLP span into the internal model. Token and
// cost fields remain unset until the processor attaches pricing.
func SpanFromOtelSpan(otelSpan *tracepb.Span, projectID uuid.UUID) *Span {
	attributes := make(map[string]interface{}, len(otelSpan.Attributes))
	for _, kv := range otelSpan.Attributes {
		attributes[kv.Key] = AnyValueToInterface(kv.Value)
	}
	attrs := NewSpanAttributes(attributes)

	span := &Span{
		SpanID:     SpanIDToUUID(otelSpan.SpanId),
		TraceID:    TraceIDToUUID(otelSpan.TraceId),
		ProjectID:  projectID,
		Name:       otelSpan.Name,
		SpanType:   attrs.SpanType(),
		StartTime:  time.Unix(0, int64(otelSpan.StartTimeUnixNano)).UTC(),
		EndTime:    time.Unix(0, int64(otelSpan.EndTimeUnixNano)).UTC(),
		Attributes: attrs,
	}

	if len(otelSpan.ParentSpanId) > 0 {
		parent := SpanIDToUUID(otelSpan.ParentSpanId)
		span.ParentSpanID = &parent
	}

	if otelSpan.Status != nil && otelSpan.Status.Code != tracepb.Status_STATUS_CODE_UNSET {
		status := strings.ToLower(strings.TrimPrefix(otelSpan.Status.Code.String(), "STATUS_CODE_"))
		span.Status = &status
	}

	for _, event := range otelSpan.Events {
		span.Events = append(span.Events, SpanEventFromOtel(event, span.SpanID, projectID, span.TraceID))
	}

	span.SizeBytes = EstimatePayloadSize(span.Attributes)

	return span
}
