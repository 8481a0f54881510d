package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tracefold/app-server/db"
	"github.com/tracefold/app-server/spans"
	"github.com/tracefold/app-server/traces"
)

type queuePushItem struct {
	Payload  map[string]interface{} `json:"payload"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type queuePushRequest struct {
	Items     []queuePushItem `json:"items"`
	QueueName string          `json:"queueName"`
}

// handleQueuePush records one synthetic span per item and appends a
// labeling-queue entry referencing it.
func (s *Server) handleQueuePush(c echo.Context) error {
	var request queuePushRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid queue push request")
	}

	key := projectAPIKey(c)
	ctx := c.Request().Context()

	queue, err := db.GetLabelingQueueByName(ctx, s.DB, key.ProjectID, request.QueueName)
	if errors.Is(err, db.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "labeling queue not found")
	}
	if err != nil {
		s.Logger.WithError(err).Error("failed to look up labeling queue")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to look up labeling queue")
	}

	now := time.Now().UTC()
	messages := make([]traces.SpanMessage, 0, len(request.Items))
	entries := make([]db.LabelingQueueEntry, 0, len(request.Items))
	for _, item := range request.Items {
		span := &spans.Span{
			SpanID:     uuid.New(),
			TraceID:    uuid.New(),
			ProjectID:  key.ProjectID,
			Name:       request.QueueName,
			SpanType:   spans.SpanTypeDefault,
			StartTime:  now,
			EndTime:    now,
			Input:      item.Payload,
			Attributes: spans.NewSpanAttributes(nil),
		}
		messages = append(messages, traces.SpanMessage{Span: span})
		entries = append(entries, db.LabelingQueueEntry{
			ID:       uuid.New(),
			QueueID:  queue.ID,
			SpanID:   span.SpanID,
			Metadata: item.Metadata,
		})
	}

	if err := traces.PublishSpanMessages(ctx, messages, key.ProjectID, s.Queue, s.Logger); err != nil {
		s.Logger.WithError(err).Error("failed to record queue push spans")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record items")
	}

	if err := db.AppendLabelingQueueEntries(ctx, s.DB, entries); err != nil {
		s.Logger.WithError(err).Error("failed to append labeling queue entries")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to append entries")
	}

	return c.NoContent(http.StatusOK)
}
