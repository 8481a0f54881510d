package traces

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tracefold/app-server/pubsub"
	"github.com/tracefold/app-server/spans"
)

// SseMessage is the envelope published to the realtime fan-out. The SSE
// endpoint renders it as "event: {event_type}\ndata: {json}\n\n".
type SseMessage struct {
	EventType string      `json:"event_type"`
	Data      interface{} `json:"data"`
}

// spanLite is the lightweight span view carried in span_update events. Heavy
// input/output fields are intentionally excluded.
type spanLite struct {
	SpanID       uuid.UUID            `json:"spanId"`
	ParentSpanID *uuid.UUID           `json:"parentSpanId"`
	TraceID      uuid.UUID            `json:"traceId"`
	SpanType     spans.SpanType       `json:"spanType"`
	Name         string               `json:"name"`
	StartTime    string               `json:"startTime"`
	EndTime      string               `json:"endTime"`
	Attributes   spans.SpanAttributes `json:"attributes"`
	Status       *string              `json:"status"`
	ProjectID    uuid.UUID            `json:"projectId"`
	CreatedAt    string               `json:"createdAt"`
}

func spanToLite(span *spans.Span) spanLite {
	return spanLite{
		SpanID:       span.SpanID,
		ParentSpanID: span.ParentSpanID,
		TraceID:      span.TraceID,
		SpanType:     span.SpanType,
		Name:         span.Name,
		StartTime:    span.StartTime.Format("2006-01-02T15:04:05.999999999Z07:00"),
		EndTime:      span.EndTime.Format("2006-01-02T15:04:05.999999999Z07:00"),
		Attributes:   span.Attributes,
		Status:       span.Status,
		ProjectID:    span.ProjectID,
		CreatedAt:    span.StartTime.Format("2006-01-02T15:04:05.999999999Z07:00"),
	}
}

// sendSpanUpdates emits one span_update message per trace in the batch,
// keyed sse:{project_id}:trace_{trace_id}.
func sendSpanUpdates(ctx context.Context, ps pubsub.PubSub, projectID uuid.UUID, batch []*spans.Span) error {
	byTrace := make(map[uuid.UUID][]spanLite)
	for _, span := range batch {
		byTrace[span.TraceID] = append(byTrace[span.TraceID], spanToLite(span))
	}

	for traceID, liteSpans := range byTrace {
		message, err := json.Marshal(SseMessage{
			EventType: "span_update",
			Data:      map[string]interface{}{"spans": liteSpans},
		})
		if err != nil {
			return err
		}
		channel := pubsub.NewSseChannel(projectID, fmt.Sprintf("trace_%s", traceID))
		if err := ps.Publish(ctx, channel.String(), string(message)); err != nil {
			return err
		}
	}
	return nil
}

// sendTraceUpdates emits one trace_update message for the batch to
// sse:{project_id}:traces, excluding evaluation traces.
func sendTraceUpdates(ctx context.Context, ps pubsub.PubSub, projectID uuid.UUID, aggregates map[uuid.UUID]*spans.TraceAttributes) error {
	var traceRows []map[string]interface{}
	for _, attrs := range aggregates {
		// Rudimentary filter to keep evaluation traces off the traces table.
		if attrs.TopSpanName != nil && *attrs.TopSpanName == "evaluation" {
			continue
		}
		traceRows = append(traceRows, map[string]interface{}{
			"id":           attrs.ID,
			"startTime":    attrs.StartTime,
			"endTime":      attrs.EndTime,
			"sessionId":    attrs.SessionID,
			"inputTokens":  attrs.InputTokenCount,
			"outputTokens": attrs.OutputTokenCount,
			"totalTokens":  attrs.TotalTokenCount,
			"inputCost":    attrs.InputCost,
			"outputCost":   attrs.OutputCost,
			"totalCost":    attrs.TotalCost,
			"metadata":     attrs.Metadata,
			"topSpanId":    attrs.TopSpanID,
			"topSpanName":  attrs.TopSpanName,
			"topSpanType":  attrs.TopSpanType,
			"traceType":    attrs.TraceType,
			"status":       attrs.Status,
			"userId":       attrs.UserID,
		})
	}
	if len(traceRows) == 0 {
		return nil
	}

	message, err := json.Marshal(SseMessage{
		EventType: "trace_update",
		Data:      map[string]interface{}{"traces": traceRows},
	})
	if err != nil {
		return err
	}

	channel := pubsub.NewSseChannel(projectID, "traces")
	return ps.Publish(ctx, channel.String(), string(message))
}
