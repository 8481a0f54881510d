package traces

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tracefold/app-server/worker"
)

// SpanBatchProcessor processes a flushed batch of span messages. Implemented
// by Processor; tests substitute stubs.
type SpanBatchProcessor interface {
	ProcessSpanMessages(ctx context.Context, messages []SpanMessage) error
}

// BatchingConfig controls when the span consumer flushes its accumulated
// deliveries.
type BatchingConfig struct {
	// Size is the span-count threshold that triggers a flush.
	Size int
	// FlushInterval flushes partial batches on a wall-clock cadence.
	FlushInterval time.Duration
}

// DefaultBatchingConfig returns the production batching parameters.
func DefaultBatchingConfig() BatchingConfig {
	return BatchingConfig{Size: 512, FlushInterval: 2 * time.Second}
}

// SpanHandler is the principal consumer: it accumulates span-message
// deliveries and flushes them through the Processor when the batch fills or
// the interval fires.
type SpanHandler struct {
	Processor SpanBatchProcessor
	Logger    *logrus.Logger
	Config    BatchingConfig
}

// Interval implements worker.BatchHandler.
func (h *SpanHandler) Interval() time.Duration {
	return h.Config.FlushInterval
}

// InitialState implements worker.BatchHandler.
func (h *SpanHandler) InitialState() []worker.Delivery[[]SpanMessage] {
	return nil
}

// HandleMessage implements worker.BatchHandler.
func (h *SpanHandler) HandleMessage(ctx context.Context, delivery worker.Delivery[[]SpanMessage], state *[]worker.Delivery[[]SpanMessage]) worker.HandlerResult[[]SpanMessage] {
	if len(delivery.Message) == 0 {
		return worker.AckResult([]worker.Delivery[[]SpanMessage]{delivery})
	}

	*state = append(*state, delivery)

	totalSpans := 0
	for _, pending := range *state {
		totalSpans += len(pending.Message)
	}
	if totalSpans >= h.Config.Size {
		return h.flush(ctx, state)
	}
	return worker.EmptyResult[[]SpanMessage]()
}

// HandleInterval implements worker.BatchHandler.
func (h *SpanHandler) HandleInterval(ctx context.Context, state *[]worker.Delivery[[]SpanMessage]) worker.HandlerResult[[]SpanMessage] {
	if len(*state) == 0 {
		return worker.EmptyResult[[]SpanMessage]()
	}
	return h.flush(ctx, state)
}

// flush processes the accumulated deliveries. The whole batch resolves
// together: ack on success, requeue on transient failure, reject on
// permanent failure.
func (h *SpanHandler) flush(ctx context.Context, state *[]worker.Delivery[[]SpanMessage]) worker.HandlerResult[[]SpanMessage] {
	deliveries := *state
	*state = nil

	var messages []SpanMessage
	for _, delivery := range deliveries {
		messages = append(messages, delivery.Message...)
	}

	err := h.Processor.ProcessSpanMessages(ctx, messages)
	switch {
	case err == nil:
		return worker.AckResult(deliveries)
	case worker.IsTransient(err):
		h.Logger.WithError(err).Warn("span batch failed transiently, requeueing")
		return worker.RequeueResult(deliveries)
	default:
		h.Logger.WithError(err).Error("span batch failed permanently, rejecting")
		return worker.RejectResult(deliveries)
	}
}
