package storage

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/tracefold/app-server/worker"
)

// PayloadHandler is the payloads consumer: it stores each queued payload
// through the routed blob backend, retrying transient failures with
// exponential backoff before requeueing.
type PayloadHandler struct {
	Service *Service
	Logger  *logrus.Logger
}

// Interval implements worker.BatchHandler. Payloads are handled per message;
// the tick only exists to satisfy the runtime.
func (h *PayloadHandler) Interval() time.Duration {
	return time.Minute
}

// InitialState implements worker.BatchHandler.
func (h *PayloadHandler) InitialState() struct{} {
	return struct{}{}
}

// HandleMessage implements worker.BatchHandler.
func (h *PayloadHandler) HandleMessage(ctx context.Context, delivery worker.Delivery[QueuePayloadMessage], _ *struct{}) worker.HandlerResult[QueuePayloadMessage] {
	message := delivery.Message

	projectID, err := ExtractProjectIDFromKey(message.Key)
	if err != nil {
		h.Logger.WithError(err).WithField("key", message.Key).
			Error("payload key is malformed, rejecting")
		return worker.RejectResult([]worker.Delivery[QueuePayloadMessage]{delivery})
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.Multiplier = 1.5
	policy.RandomizationFactor = 0.5
	policy.MaxElapsedTime = 10 * time.Second

	var url string
	store := func() error {
		var storeErr error
		url, storeErr = h.Service.Store(ctx, projectID, message.Bucket, message.Key, message.Data)
		if storeErr != nil {
			h.Logger.WithError(storeErr).WithField("key", message.Key).
				Warn("failed attempt to store payload, will retry")
		}
		return storeErr
	}

	if err := backoff.Retry(store, backoff.WithContext(policy, ctx)); err != nil {
		h.Logger.WithError(err).WithField("key", message.Key).
			Error("failed to store payload, requeueing")
		return worker.RequeueResult([]worker.Delivery[QueuePayloadMessage]{delivery})
	}

	h.Logger.WithField("url", url).Debug("stored payload")
	return worker.AckResult([]worker.Delivery[QueuePayloadMessage]{delivery})
}

// HandleInterval implements worker.BatchHandler.
func (h *PayloadHandler) HandleInterval(context.Context, *struct{}) worker.HandlerResult[QueuePayloadMessage] {
	return worker.EmptyResult[QueuePayloadMessage]()
}
