package mq

import (
	"context"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
)

// RabbitMQ is the durable queue backend. Exchanges are declared as durable
// direct exchanges on first use; queues are declared durable and bound on
// GetReceiver.
type RabbitMQ struct {
	connection AMQPConnection

	mu        sync.Mutex
	publisher AMQPChannel
}

// NewRabbitMQ connects to the broker at url.
func NewRabbitMQ(url string) (*RabbitMQ, error) {
	return NewRabbitMQWithDialer(url, &RealAMQPDialer{})
}

// NewRabbitMQWithDialer connects using an injected dialer. Used by tests.
func NewRabbitMQWithDialer(url string, dialer AMQPDialer) (*RabbitMQ, error) {
	conn, err := dialer.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return &RabbitMQ{connection: conn}, nil
}

// IsConnected reports whether the broker connection is still open. Used by
// the readiness probe.
func (r *RabbitMQ) IsConnected() bool {
	return r.connection != nil && !r.connection.IsClosed()
}

// Publish implements MessageQueue. Publishing is serialized over a single
// channel; AMQP channels are not safe for concurrent use.
func (r *RabbitMQ) Publish(_ context.Context, message []byte, exchange, routingKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.publisher == nil {
		ch, err := r.connection.Channel()
		if err != nil {
			return fmt.Errorf("failed to open a channel: %w", err)
		}
		r.publisher = ch
	}

	if err := r.declareExchange(r.publisher, exchange); err != nil {
		return err
	}

	err := r.publisher.Publish(
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         message,
		},
	)
	if err != nil {
		// Channel may be in a failed state; drop it so the next publish
		// opens a fresh one.
		r.publisher.Close()
		r.publisher = nil
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// GetReceiver implements MessageQueue. The queue is declared durable, bound
// to the exchange, and consumed with manual acknowledgement.
func (r *RabbitMQ) GetReceiver(_ context.Context, queueName, exchange, routingKey string) (Receiver, error) {
	ch, err := r.connection.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := r.declareExchange(ch, exchange); err != nil {
		ch.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(queueName, routingKey, exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := ch.Consume(
		queueName,
		routingKey, // consumer tag
		false,      // manual ack
		false,      // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to start consumer: %w", err)
	}

	return &rabbitReceiver{channel: ch, deliveries: deliveries}, nil
}

// Close implements MessageQueue.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.publisher != nil {
		r.publisher.Close()
		r.publisher = nil
	}
	if r.connection != nil {
		return r.connection.Close()
	}
	return nil
}

func (r *RabbitMQ) declareExchange(ch AMQPChannel, exchange string) error {
	// The default exchange cannot be declared.
	if exchange == "" {
		return nil
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}
	return nil
}

type rabbitReceiver struct {
	channel    AMQPChannel
	deliveries <-chan amqp.Delivery
}

// Receive implements Receiver.
func (r *rabbitReceiver) Receive(ctx context.Context) (Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case delivery, ok := <-r.deliveries:
		if !ok {
			return nil, ErrClosed
		}
		return &rabbitDelivery{delivery: delivery}, nil
	}
}

// Close implements Receiver.
func (r *rabbitReceiver) Close() error {
	return r.channel.Close()
}

type rabbitDelivery struct {
	delivery amqp.Delivery
}

// Acker implements Delivery.
func (d *rabbitDelivery) Acker() Acker {
	return &rabbitAcker{delivery: d.delivery}
}

// Data implements Delivery.
func (d *rabbitDelivery) Data() []byte {
	return d.delivery.Body
}

type rabbitAcker struct {
	delivery amqp.Delivery
}

func (a *rabbitAcker) Ack() error {
	if err := a.delivery.Ack(false); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

func (a *rabbitAcker) Nack(requeue bool) error {
	if err := a.delivery.Nack(false, requeue); err != nil {
		return fmt.Errorf("failed to nack message: %w", err)
	}
	return nil
}

func (a *rabbitAcker) Reject(requeue bool) error {
	if err := a.delivery.Reject(requeue); err != nil {
		return fmt.Errorf("failed to reject message: %w", err)
	}
	return nil
}
