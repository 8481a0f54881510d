// Package browsersessions contains the browser-session event pipeline:
// rrweb event batches queued at admission and copied into columnar storage
// one row per event.
package browsersessions

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/tracefold/app-server/mq"
)

// Queue wire names for the browser-session pipeline.
const (
	BrowserSessionsQueue      = "browser_sessions_queue"
	BrowserSessionsExchange   = "browser_sessions_exchange"
	BrowserSessionsRoutingKey = "browser_sessions_routing_key"
)

// RRWebEvent is one recorded browser event. The data blob is opaque.
type RRWebEvent struct {
	EventType int32           `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventBatch is the admitted unit: a batch of events for one session of one
// trace.
type EventBatch struct {
	Events    []RRWebEvent `json:"events"`
	SessionID uuid.UUID    `json:"sessionId"`
	TraceID   uuid.UUID    `json:"traceId"`
}

// QueueEventMessage pairs an event batch with its project.
type QueueEventMessage struct {
	Batch     EventBatch `json:"batch"`
	ProjectID uuid.UUID  `json:"project_id"`
}

// PublishEventBatch queues one message per admitted batch.
func PublishEventBatch(ctx context.Context, queue mq.MessageQueue, projectID uuid.UUID, batch EventBatch) error {
	payload, err := json.Marshal(QueueEventMessage{Batch: batch, ProjectID: projectID})
	if err != nil {
		return err
	}
	return queue.Publish(ctx, payload, BrowserSessionsExchange, BrowserSessionsRoutingKey)
}
