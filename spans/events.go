package spans

import (
	"time"

	"github.com/google/uuid"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

// SpanEvent is a point-in-time event attached to a span.
type SpanEvent struct {
	ID         uuid.UUID              `json:"id"`
	SpanID     uuid.UUID              `json:"spanId"`
	TraceID    uuid.UUID              `json:"traceId"`
	ProjectID  uuid.UUID              `json:"projectId"`
	Name       string                 `json:"name"`
	Timestamp  time.Time              `json:"timestamp"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// SpanEventFromOtel converts an OTLP span event.
func SpanEventFromOtel(event *tracepb.Span_Event, spanID uuid.UUID, projectID, traceID uuid.UUID) SpanEvent {
	attributes := make(map[string]interface{}, len(event.Attributes))
	for _, kv := range event.Attributes {
		attributes[kv.Key] = AnyValueToInterface(kv.Value)
	}
	return SpanEvent{
		ID:         uuid.New(),
		SpanID:     spanID,
		TraceID:    traceID,
		ProjectID:  projectID,
		Name:       event.Name,
		Timestamp:  time.Unix(0, int64(event.TimeUnixNano)).UTC(),
		Attributes: attributes,
	}
}

// SpanIDToUUID widens an 8-byte OTLP span id into a UUID by zero-padding the
// high bytes. Short or missing ids map to the nil UUID.
func SpanIDToUUID(spanID []byte) uuid.UUID {
	var id uuid.UUID
	if len(spanID) == 8 {
		copy(id[8:], spanID)
	}
	return id
}

// TraceIDToUUID converts a 16-byte OTLP trace id into a UUID.
func TraceIDToUUID(traceID []byte) uuid.UUID {
	var id uuid.UUID
	if len(traceID) == 16 {
		copy(id[:], traceID)
	}
	return id
}

// AnyValueToInterface converts an OTLP AnyValue into a plain Go value
// suitable for JSON encoding.
func AnyValueToInterface(value *commonpb.AnyValue) interface{} {
	if value == nil {
		return nil
	}
	switch v := value.Value.(type) {
	case *commonpb.AnyValue_StringValue:
		return v.StringValue
	case *commonpb.AnyValue_BoolValue:
		return v.BoolValue
	case *commonpb.AnyValue_IntValue:
		return v.IntValue
	case *commonpb.AnyValue_DoubleValue:
		return v.DoubleValue
	case *commonpb.AnyValue_ArrayValue:
		values := make([]interface{}, 0, len(v.ArrayValue.Values))
		for _, item := range v.ArrayValue.Values {
			values = append(values, AnyValueToInterface(item))
		}
		return values
	case *commonpb.AnyValue_KvlistValue:
		result := make(map[string]interface{}, len(v.KvlistValue.Values))
		for _, kv := range v.KvlistValue.Values {
			result[kv.Key] = AnyValueToInterface(kv.Value)
		}
		return result
	case *commonpb.AnyValue_BytesValue:
		return v.BytesValue
	default:
		return nil
	}
}
