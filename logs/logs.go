// Package logs contains the log ingestion pipeline: OTLP log decoding, the
// queue producer, and the consumer that copies records into columnar
// storage.
package logs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"

	"github.com/tracefold/app-server/spans"
)

// Queue wire names for the log pipeline.
const (
	LogsQueue      = "logs_queue"
	LogsExchange   = "logs_exchange"
	LogsRoutingKey = "logs_routing_key"
)

// LogRecord is the internal log model, a faithful copy of the OTLP record
// with ids resolved and a size annotation.
type LogRecord struct {
	LogID          uuid.UUID              `json:"logId"`
	ProjectID      uuid.UUID              `json:"projectId"`
	TraceID        uuid.UUID              `json:"traceId"`
	SpanID         uuid.UUID              `json:"spanId"`
	Timestamp      time.Time              `json:"timestamp"`
	ObservedTime   time.Time              `json:"observedTime"`
	SeverityNumber int32                  `json:"severityNumber"`
	SeverityText   string                 `json:"severityText"`
	Body           string                 `json:"body"`
	Attributes     map[string]interface{} `json:"attributes,omitempty"`
	SizeBytes      int64                  `json:"sizeBytes"`
}

// LogRecordFromOtel converts one OTLP log record.
func LogRecordFromOtel(record *logspb.LogRecord, projectID uuid.UUID) LogRecord {
	attributes := make(map[string]interface{}, len(record.Attributes))
	for _, kv := range record.Attributes {
		attributes[kv.Key] = spans.AnyValueToInterface(kv.Value)
	}

	body := ""
	if record.Body != nil {
		switch v := spans.AnyValueToInterface(record.Body).(type) {
		case string:
			body = v
		default:
			if data, err := json.Marshal(v); err == nil {
				body = string(data)
			}
		}
	}

	log := LogRecord{
		LogID:          uuid.New(),
		ProjectID:      projectID,
		TraceID:        spans.TraceIDToUUID(record.TraceId),
		SpanID:         spans.SpanIDToUUID(record.SpanId),
		Timestamp:      time.Unix(0, int64(record.TimeUnixNano)).UTC(),
		ObservedTime:   time.Unix(0, int64(record.ObservedTimeUnixNano)).UTC(),
		SeverityNumber: int32(record.SeverityNumber),
		SeverityText:   record.SeverityText,
		Body:           body,
		Attributes:     attributes,
	}

	size := int64(len(log.Body))
	if data, err := json.Marshal(log.Attributes); err == nil {
		size += int64(len(data))
	}
	log.SizeBytes = size

	return log
}
