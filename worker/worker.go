package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/tracefold/app-server/mq"
)

// Worker is a single-goroutine consumer loop driving a BatchHandler. N
// workers of the same type share a queue; the queue distributes deliveries
// at-least-once. Within one worker, messages are dispatched in receive
// order.
type Worker[M, S any] struct {
	workerType WorkerType
	handler    BatchHandler[M, S]
	queue      mq.MessageQueue
	config     QueueConfig
	tracker    *Tracker
	logger     *logrus.Logger
}

// NewWorker creates a worker; Run starts it.
func NewWorker[M, S any](
	workerType WorkerType,
	handler BatchHandler[M, S],
	queue mq.MessageQueue,
	config QueueConfig,
	tracker *Tracker,
	logger *logrus.Logger,
) *Worker[M, S] {
	return &Worker[M, S]{
		workerType: workerType,
		handler:    handler,
		queue:      queue,
		config:     config,
		tracker:    tracker,
		logger:     logger,
	}
}

// Run consumes until the context is cancelled. On receiver end-of-stream it
// reconnects with exponential backoff and resets the handler state; unacked
// deliveries are then redelivered by the queue.
func (w *Worker[M, S]) Run(ctx context.Context) {
	handle := w.tracker.RegisterWorker(w.workerType)
	defer handle.Close()

	for {
		receiver, err := w.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.WithError(err).WithField("worker_type", w.workerType).
				Error("failed to connect receiver, giving up")
			return
		}

		w.consume(ctx, receiver)
		receiver.Close()

		if ctx.Err() != nil {
			return
		}
		w.logger.WithField("worker_type", w.workerType).
			Warn("receiver stream ended, reconnecting")
	}
}

// connect obtains a receiver, retrying with exponential backoff.
func (w *Worker[M, S]) connect(ctx context.Context) (mq.Receiver, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.Multiplier = 1.5
	policy.RandomizationFactor = 0.5
	policy.MaxElapsedTime = 10 * time.Second

	var receiver mq.Receiver
	operation := func() error {
		var err error
		receiver, err = w.queue.GetReceiver(ctx, w.config.QueueName, w.config.Exchange, w.config.RoutingKey)
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return receiver, nil
}

// consume runs the select loop over the receiver and the interval ticker
// until the stream ends or the context is cancelled. State lives entirely
// inside this call; reconnects start from InitialState.
func (w *Worker[M, S]) consume(ctx context.Context, receiver mq.Receiver) {
	state := w.handler.InitialState()

	ticker := time.NewTicker(w.handler.Interval())
	defer ticker.Stop()

	deliveries := make(chan mq.Delivery)
	pumpDone := make(chan struct{})
	pumpCtx, cancelPump := context.WithCancel(ctx)
	defer cancelPump()

	go func() {
		defer close(pumpDone)
		for {
			delivery, err := receiver.Receive(pumpCtx)
			if err != nil {
				return
			}
			select {
			case deliveries <- delivery:
			case <-pumpCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			// Allow the in-flight state to settle: resolve whatever the
			// handler decides on a final interval tick. Unacked
			// deliveries are redelivered by the broker.
			result := w.handler.HandleInterval(context.Background(), &state)
			w.applyResult(result)
			return

		case <-pumpDone:
			return

		case delivery := <-deliveries:
			result := w.dispatchMessage(ctx, delivery, &state)
			w.applyResult(result)

		case <-ticker.C:
			result := w.handler.HandleInterval(ctx, &state)
			w.applyResult(result)
		}
	}
}

// dispatchMessage decodes and handles one delivery. A decode failure rejects
// the delivery permanently; a handler panic requeues it.
func (w *Worker[M, S]) dispatchMessage(ctx context.Context, delivery mq.Delivery, state *S) (result HandlerResult[M]) {
	acker := delivery.Acker()

	var message M
	if err := json.Unmarshal(delivery.Data(), &message); err != nil {
		w.logger.WithError(err).WithField("worker_type", w.workerType).
			Error("failed to decode message, rejecting")
		return RejectResult([]Delivery[M]{{Message: message, Acker: acker}})
	}

	wrapped := Delivery[M]{Message: message, Acker: acker}

	defer func() {
		if r := recover(); r != nil {
			w.logger.WithField("worker_type", w.workerType).WithField("panic", r).
				Error("handler panicked, requeueing delivery")
			result = RequeueResult([]Delivery[M]{wrapped})
		}
	}()

	return w.handler.HandleMessage(ctx, wrapped, state)
}

// applyResult resolves ackers in order: ack, then reject, then requeue.
func (w *Worker[M, S]) applyResult(result HandlerResult[M]) {
	for _, delivery := range result.ToAck {
		if err := delivery.Acker.Ack(); err != nil {
			w.logger.WithError(err).Error("failed to ack delivery")
		}
	}
	for _, delivery := range result.ToReject {
		if err := delivery.Acker.Reject(false); err != nil {
			w.logger.WithError(err).Error("failed to reject delivery")
		}
	}
	for _, delivery := range result.ToRequeue {
		if err := delivery.Acker.Reject(true); err != nil {
			w.logger.WithError(err).Error("failed to requeue delivery")
		}
	}
}

// Spawn starts count workers of the given type, each with its own handler
// instance from the factory.
func Spawn[M, S any](
	ctx context.Context,
	workerType WorkerType,
	count int,
	factory func() BatchHandler[M, S],
	queue mq.MessageQueue,
	config QueueConfig,
	tracker *Tracker,
	logger *logrus.Logger,
) {
	for i := 0; i < count; i++ {
		w := NewWorker(workerType, factory(), queue, config, tracker, logger)
		logger.WithField("worker_type", workerType).WithField("instance", i).
			Info("spawning worker")
		go w.Run(ctx)
	}
}
