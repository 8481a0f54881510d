package logs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tracefold/app-server/cache"
	"github.com/tracefold/app-server/ch"
	"github.com/tracefold/app-server/db"
	"github.com/tracefold/app-server/traces"
	"github.com/tracefold/app-server/worker"
)

// LogHandler is the logs consumer: per batch it maps records to columnar
// rows, performs a single insert, and bumps the workspace usage counter.
type LogHandler struct {
	DB     *db.DB
	Cache  cache.Cache
	CH     *ch.Service
	Logger *logrus.Logger
}

// Interval implements worker.BatchHandler.
func (h *LogHandler) Interval() time.Duration {
	return time.Minute
}

// InitialState implements worker.BatchHandler.
func (h *LogHandler) InitialState() struct{} {
	return struct{}{}
}

// HandleMessage implements worker.BatchHandler. Each queue message carries a
// full batch of records and resolves on its own.
func (h *LogHandler) HandleMessage(ctx context.Context, delivery worker.Delivery[[]LogRecord], _ *struct{}) worker.HandlerResult[[]LogRecord] {
	records := delivery.Message
	if len(records) == 0 {
		return worker.AckResult([]worker.Delivery[[]LogRecord]{delivery})
	}

	byProject := make(map[uuid.UUID][]ch.CHLog)
	usage := make(map[uuid.UUID]int64)
	for _, record := range records {
		byProject[record.ProjectID] = append(byProject[record.ProjectID], ch.CHLog{
			LogID:          record.LogID,
			ProjectID:      record.ProjectID,
			TraceID:        record.TraceID,
			SpanID:         record.SpanID,
			Timestamp:      record.Timestamp.UnixNano(),
			ObservedTime:   record.ObservedTime.UnixNano(),
			SeverityNumber: record.SeverityNumber,
			SeverityText:   record.SeverityText,
			Body:           record.Body,
			Attributes:     jsonAttributes(record.Attributes),
			SizeBytes:      record.SizeBytes,
		})
		usage[record.ProjectID] += record.SizeBytes
	}

	for projectID, rows := range byProject {
		if err := ch.InsertBatch(ctx, h.CH, projectID, rows); err != nil {
			h.Logger.WithError(err).WithField("project_id", projectID).
				Warn("log insert failed, requeueing")
			return worker.RequeueResult([]worker.Delivery[[]LogRecord]{delivery})
		}
	}

	for projectID, bytes := range usage {
		h.bumpUsage(ctx, projectID, bytes)
	}

	return worker.AckResult([]worker.Delivery[[]LogRecord]{delivery})
}

// HandleInterval implements worker.BatchHandler.
func (h *LogHandler) HandleInterval(context.Context, *struct{}) worker.HandlerResult[[]LogRecord] {
	return worker.EmptyResult[[]LogRecord]()
}

func (h *LogHandler) bumpUsage(ctx context.Context, projectID uuid.UUID, bytes int64) {
	workspaceID, err := traces.GetWorkspaceIDForProjectID(ctx, h.DB, h.Cache, projectID)
	if err != nil {
		h.Logger.WithError(err).Error("failed to resolve workspace for log usage")
		return
	}

	counterKey := fmt.Sprintf("%s:%s", cache.WorkspaceBytesUsageCacheKey, workspaceID)
	if _, err := h.Cache.Increment(ctx, counterKey, bytes); err != nil {
		h.Logger.WithError(err).Error("failed to increment workspace usage counter")
	}
	if err := db.AddWorkspaceBytesIngested(ctx, h.DB, workspaceID, bytes); err != nil {
		h.Logger.WithError(err).Error("failed to persist workspace usage")
	}
	if _, err := traces.UpdateWorkspaceLimitExceeded(ctx, h.DB, h.Cache, projectID); err != nil {
		h.Logger.WithError(err).Error("failed to refresh workspace limit cache")
	}
}

func jsonAttributes(attributes map[string]interface{}) string {
	if len(attributes) == 0 {
		return "{}"
	}
	data, err := json.Marshal(attributes)
	if err != nil {
		return "{}"
	}
	return string(data)
}
