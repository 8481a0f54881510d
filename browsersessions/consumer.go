package browsersessions

import (
	"context"
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

// EventHandler is the browser-events consumer: it inserts one columnar row
// per event with the async-insert hint and sums size bytes into the
// workspace usage counter.
type EventHandler struct {
	DB     *db.DB
	Cache  cache.Cache
	CH     *ch.Service
	Logger *logrus.Logger
}

// Interval implements worker.BatchHandler.
func (h *EventHandler) Interval() time.Duration {
	return time.Minute
}

// InitialState implements worker.BatchHandler.
func (h *EventHandler) InitialState() struct{} {
	return struct{}{}
}

// HandleMessage implements worker.BatchHandler.
func (h *EventHandler) HandleMessage(ctx context.Context, delivery worker.Delivery[QueueEventMessage], _ *struct{}) worker.HandlerResult[QueueEventMessage] {
	message := delivery.Message
	if len(message.Batch.Events) == 0 {
		return worker.AckResult([]worker.Delivery[QueueEventMessage]{delivery})
	}

	rows := make([]ch.CHBrowserEvent, 0, len(message.Batch.Events))
	var totalBytes int64
	for _, event := range message.Batch.Events {
		size := int64(len(event.Data))
		totalBytes += size
		rows = append(rows, ch.CHBrowserEvent{
			EventID:   uuid.New(),
			SessionID: message.Batch.SessionID,
			TraceID:   message.Batch.TraceID,
			ProjectID: message.ProjectID,
			Timestamp: event.Timestamp,
			EventType: event.EventType,
			Data:      string(event.Data),
			SizeBytes: size,
		})
	}

	if err := ch.InsertBatch(ctx, h.CH, message.ProjectID, rows); err != nil {
		h.Logger.WithError(err).WithField("session_id", message.Batch.SessionID).
			Warn("browser event insert failed, requeueing")
		return worker.RequeueResult([]worker.Delivery[QueueEventMessage]{delivery})
	}

	h.bumpUsage(ctx, message.ProjectID, totalBytes)

	return worker.AckResult([]worker.Delivery[QueueEventMessage]{delivery})
}

// HandleInterval implements worker.BatchHandler.
func (h *EventHandler) HandleInterval(context.Context, *struct{}) worker.HandlerResult[QueueEventMessage] {
	return worker.EmptyResult[QueueEventMessage]()
}

func (h *EventHandler) bumpUsage(ctx context.Context, projectID uuid.UUID, bytes int64) {
	if bytes == 0 {
		return
	}
	workspaceID, err := traces.GetWorkspaceIDForProjectID(ctx, h.DB, h.Cache, projectID)
	if err != nil {
		h.Logger.WithError(err).Error("failed to resolve workspace for browser event usage")
		return
	}
	counterKey := fmt.Sprintf("%s:%s", cache.WorkspaceBytesUsageCacheKey, workspaceID)
	if _, err := h.Cache.Increment(ctx, counterKey, bytes); err != nil {
		h.Logger.WithError(err).Error("failed to increment workspace usage counter")
	}
	if err := db.AddWorkspaceBytesIngested(ctx, h.DB, workspaceID, bytes); err != nil {
		h.Logger.WithError(err).Error("failed to persist workspace usage")
	}
}
