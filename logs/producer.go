package logs

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"

	"github.com/tracefold/app-server/mq"
)

// PushLogsToQueue converts an OTLP logs export into log records and
// publishes them as a single payload, subject to the queue's max-payload
// cap.
func PushLogsToQueue(
	ctx context.Context,
	request *collogspb.ExportLogsServiceRequest,
	projectID uuid.UUID,
	queue mq.MessageQueue,
	logger *logrus.Logger,
) error {
	var records []LogRecord
	for _, resourceLogs := range request.ResourceLogs {
		for _, scopeLogs := range resourceLogs.ScopeLogs {
			for _, record := range scopeLogs.LogRecords {
				records = append(records, LogRecordFromOtel(record, projectID))
			}
		}
	}
	if len(records) == 0 {
		return nil
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return err
	}

	if int64(len(payload)) >= mq.MaxPayload() {
		logger.WithFields(logrus.Fields{
			"project_id":   projectID,
			"payload_size": len(payload),
			"log_count":    len(records),
		}).Warn("log payload exceeds queue limit, dropping")
		return nil
	}

	return queue.Publish(ctx, payload, LogsExchange, LogsRoutingKey)
}
