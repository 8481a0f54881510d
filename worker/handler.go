// Package worker provides the stateful batch worker runtime all queue
// consumers build on, plus the process-wide worker registry backing the
// health endpoints.
//
// A handler declares a message type, a per-worker state type, and two entry
// points: HandleMessage for each delivery and HandleInterval on a wall-clock
// cadence. Both return a HandlerResult that partitions the deliveries seen so
// far into acks, rejects, and requeues; the runtime resolves the attached
// ackers accordingly. Each delivery owns exactly one acker and no acker is
// ever resolved twice.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/tracefold/app-server/mq"
)

// HandlerError classifies consumer failures. Transient errors requeue the
// affected deliveries; permanent errors reject them without requeue.
type HandlerError struct {
	Err       error
	Transient bool
}

// Error implements error.
func (e *HandlerError) Error() string { return e.Err.Error() }

// Unwrap exposes the wrapped error.
func (e *HandlerError) Unwrap() error { return e.Err }

// NewTransientError wraps err as a retryable failure.
func NewTransientError(err error) *HandlerError {
	return &HandlerError{Err: err, Transient: true}
}

// NewPermanentError wraps err as an unrecoverable failure.
func NewPermanentError(err error) *HandlerError {
	return &HandlerError{Err: err, Transient: false}
}

// IsTransient reports whether err is a transient HandlerError.
func IsTransient(err error) bool {
	var handlerErr *HandlerError
	return errors.As(err, &handlerErr) && handlerErr.Transient
}

// Delivery pairs a decoded message with the acker of the queue delivery it
// arrived on.
type Delivery[M any] struct {
	Message M
	Acker   mq.Acker
}

// HandlerResult partitions deliveries into acknowledgement outcomes.
type HandlerResult[M any] struct {
	// ToAck holds successfully processed deliveries.
	ToAck []Delivery[M]
	// ToReject holds permanently failed deliveries (no requeue).
	ToReject []Delivery[M]
	// ToRequeue holds transiently failed deliveries (redelivered).
	ToRequeue []Delivery[M]
}

// EmptyResult resolves nothing; deliveries stay pending in the handler state.
func EmptyResult[M any]() HandlerResult[M] {
	return HandlerResult[M]{}
}

// AckResult acknowledges the given deliveries.
func AckResult[M any](deliveries []Delivery[M]) HandlerResult[M] {
	return HandlerResult[M]{ToAck: deliveries}
}

// RejectResult permanently discards the given deliveries.
func RejectResult[M any](deliveries []Delivery[M]) HandlerResult[M] {
	return HandlerResult[M]{ToReject: deliveries}
}

// RequeueResult sends the given deliveries back for redelivery.
func RequeueResult[M any](deliveries []Delivery[M]) HandlerResult[M] {
	return HandlerResult[M]{ToRequeue: deliveries}
}

// BatchHandler is implemented by each consumer. M is the queue message type,
// S the per-worker mutable state (typically the accumulating batch).
type BatchHandler[M, S any] interface {
	// Interval is the wall-clock cadence at which HandleInterval fires.
	Interval() time.Duration

	// InitialState returns fresh worker state. Called on worker start and
	// again after every reconnect.
	InitialState() S

	// HandleMessage folds one delivery into the state and decides which
	// pending deliveries to resolve.
	HandleMessage(ctx context.Context, delivery Delivery[M], state *S) HandlerResult[M]

	// HandleInterval fires on the interval tick, typically flushing
	// batches that have not filled up.
	HandleInterval(ctx context.Context, state *S) HandlerResult[M]
}

// QueueConfig names the queue a worker consumes from.
type QueueConfig struct {
	QueueName  string
	Exchange   string
	RoutingKey string
}
