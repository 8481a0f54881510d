package logs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"

	"github.com/tracefold/app-server/common"
	"github.com/tracefold/app-server/mq"
)

func TestLogRecordFromOtel(t *testing.T) {
	projectID := uuid.New()
	record := &logspb.LogRecord{
		TimeUnixNano:         1700000000000000000,
		ObservedTimeUnixNano: 1700000000500000000,
		SeverityNumber:       logspb.SeverityNumber_SEVERITY_NUMBER_ERROR,
		SeverityText:         "ERROR",
		Body: &commonpb.AnyValue{
			Value: &commonpb.AnyValue_StringValue{StringValue: "request failed"},
		},
		Attributes: []*commonpb.KeyValue{{
			Key:   "http.status_code",
			Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: 500}},
		}},
		TraceId: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanId:  []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}

	log := LogRecordFromOtel(record, projectID)

	assert.Equal(t, projectID, log.ProjectID)
	assert.Equal(t, "request failed", log.Body)
	assert.Equal(t, "ERROR", log.SeverityText)
	assert.Equal(t, int32(17), log.SeverityNumber)
	assert.Equal(t, int64(1700000000000000000), log.Timestamp.UnixNano())
	assert.Equal(t, int64(1700000000500000000), log.ObservedTime.UnixNano())
	assert.NotEqual(t, uuid.Nil, log.TraceID)
	assert.NotEqual(t, uuid.Nil, log.SpanID)
	assert.Greater(t, log.SizeBytes, int64(0))
}

func TestPushLogsToQueue(t *testing.T) {
	queue := mq.NewInMemoryQueue(common.Default())
	ctx := context.Background()

	receiver, err := queue.GetReceiver(ctx, LogsQueue, LogsExchange, LogsRoutingKey)
	require.NoError(t, err)

	projectID := uuid.New()
	request := &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{{
			ScopeLogs: []*logspb.ScopeLogs{{
				LogRecords: []*logspb.LogRecord{{
					TimeUnixNano: 1700000000000000000,
					Body: &commonpb.AnyValue{
						Value: &commonpb.AnyValue_StringValue{StringValue: "hello"},
					},
				}},
			}},
		}},
	}

	require.NoError(t, PushLogsToQueue(ctx, request, projectID, queue, common.Default()))

	delivery, err := receiver.Receive(ctx)
	require.NoError(t, err)

	var records []LogRecord
	require.NoError(t, json.Unmarshal(delivery.Data(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "hello", records[0].Body)
	assert.Equal(t, projectID, records[0].ProjectID)
}

func TestPushLogsToQueue_EmptyRequestPublishesNothing(t *testing.T) {
	queue := mq.NewInMemoryQueue(common.Default())
	// No receiver bound: a publish would error, so an empty request must
	// return before publishing.
	err := PushLogsToQueue(context.Background(), &collogspb.ExportLogsServiceRequest{}, uuid.New(), queue, common.Default())
	assert.NoError(t, err)
}
