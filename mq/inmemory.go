package mq

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// inMemoryChannelCapacity is the fixed capacity of each receiver channel.
// Publishers block when every bound receiver is full.
const inMemoryChannelCapacity = 100

// InMemoryQueue is the ephemeral in-process backend. Publish routes to the
// least-loaded receiver bound to the same (exchange, routing key) group;
// acks and rejects are no-ops. Message expiration is not supported.
type InMemoryQueue struct {
	logger *logrus.Logger

	mu      sync.Mutex
	senders map[string][]chan []byte
}

// NewInMemoryQueue creates an empty in-process queue.
func NewInMemoryQueue(logger *logrus.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		logger:  logger,
		senders: make(map[string][]chan []byte),
	}
}

func groupKey(exchange, routingKey string) string {
	return exchange + ":-:" + routingKey
}

// Publish implements MessageQueue. The receiver with the most free capacity
// wins; on a full group the send blocks until a slot frees up.
func (q *InMemoryQueue) Publish(ctx context.Context, message []byte, exchange, routingKey string) error {
	key := groupKey(exchange, routingKey)

	q.mu.Lock()
	channels := q.senders[key]
	if len(channels) == 0 {
		q.mu.Unlock()
		return fmt.Errorf("no queues exist for exchange %q and routing key %q", exchange, routingKey)
	}

	// Naive scan for the least busy receiver.
	target := channels[0]
	maxFree := cap(target) - len(target)
	for _, ch := range channels[1:] {
		if free := cap(ch) - len(ch); free > maxFree {
			maxFree = free
			target = ch
		}
	}
	q.mu.Unlock()

	data := make([]byte, len(message))
	copy(data, message)

	select {
	case target <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetReceiver implements MessageQueue. The queue name is ignored: in-process
// groups are identified by (exchange, routing key) alone.
func (q *InMemoryQueue) GetReceiver(_ context.Context, _, exchange, routingKey string) (Receiver, error) {
	ch := make(chan []byte, inMemoryChannelCapacity)

	q.mu.Lock()
	key := groupKey(exchange, routingKey)
	q.senders[key] = append(q.senders[key], ch)
	bound := len(q.senders[key])
	q.mu.Unlock()

	q.logger.WithFields(logrus.Fields{
		"exchange":    exchange,
		"routing_key": routingKey,
		"receivers":   bound,
	}).Debug("bound in-process receiver")

	return &inMemoryReceiver{ch: ch}, nil
}

// Close implements MessageQueue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for key, channels := range q.senders {
		for _, ch := range channels {
			close(ch)
		}
		delete(q.senders, key)
	}
	return nil
}

type inMemoryReceiver struct {
	ch chan []byte
}

// Receive implements Receiver.
func (r *inMemoryReceiver) Receive(ctx context.Context) (Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data, ok := <-r.ch:
		if !ok {
			return nil, ErrClosed
		}
		return &inMemoryDelivery{data: data}, nil
	}
}

// Close implements Receiver. The channel stays registered so that pending
// publishes do not panic; the process-lifetime backend never unbinds.
func (r *inMemoryReceiver) Close() error {
	return nil
}

type inMemoryDelivery struct {
	data []byte
}

// Acker implements Delivery.
func (d *inMemoryDelivery) Acker() Acker {
	return noopAcker{}
}

// Data implements Delivery.
func (d *inMemoryDelivery) Data() []byte {
	return d.data
}

// noopAcker resolves every acknowledgement operation to a no-op: the
// in-process bus has no redelivery.
type noopAcker struct{}

func (noopAcker) Ack() error                { return nil }
func (noopAcker) Nack(requeue bool) error   { return nil }
func (noopAcker) Reject(requeue bool) error { return nil }
