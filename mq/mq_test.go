package mq

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracefold/app-server/common"
)

func TestInMemoryQueue_PublishWithoutReceiver(t *testing.T) {
	q := NewInMemoryQueue(common.Default())

	err := q.Publish(context.Background(), []byte("x"), "obs_exchange", "spans_routing_key")
	assert.Error(t, err)
}

func TestInMemoryQueue_PublishOrder(t *testing.T) {
	q := NewInMemoryQueue(common.Default())
	ctx := context.Background()

	receiver, err := q.GetReceiver(ctx, "spans_queue", "obs_exchange", "spans_routing_key")
	require.NoError(t, err)

	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, q.Publish(ctx, []byte(fmt.Sprintf("msg-%d", i)), "obs_exchange", "spans_routing_key"))
	}

	for i := 0; i < n; i++ {
		delivery, err := receiver.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("msg-%d", i), string(delivery.Data()))
	}
}

func TestInMemoryQueue_FanOutBalance(t *testing.T) {
	q := NewInMemoryQueue(common.Default())
	ctx := context.Background()

	r1, err := q.GetReceiver(ctx, "q", "ex", "rk")
	require.NoError(t, err)
	r2, err := q.GetReceiver(ctx, "q", "ex", "rk")
	require.NoError(t, err)

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, q.Publish(ctx, []byte("m"), "ex", "rk"))
	}

	// The least-loaded receiver wins each publish, so after convergence the
	// backlogs differ by at most one.
	b1 := len(r1.(*inMemoryReceiver).ch)
	b2 := len(r2.(*inMemoryReceiver).ch)
	assert.Equal(t, n, b1+b2)
	assert.LessOrEqual(t, b1-b2, 1)
	assert.LessOrEqual(t, b2-b1, 1)
}

func TestInMemoryQueue_RoutingIsolation(t *testing.T) {
	q := NewInMemoryQueue(common.Default())
	ctx := context.Background()

	spans, err := q.GetReceiver(ctx, "spans_queue", "obs_exchange", "spans_routing_key")
	require.NoError(t, err)
	_, err = q.GetReceiver(ctx, "logs_queue", "logs_exchange", "logs_routing_key")
	require.NoError(t, err)

	require.NoError(t, q.Publish(ctx, []byte("span"), "obs_exchange", "spans_routing_key"))

	delivery, err := spans.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "span", string(delivery.Data()))
}

func TestInMemoryQueue_AckerIsNoop(t *testing.T) {
	q := NewInMemoryQueue(common.Default())
	ctx := context.Background()

	receiver, err := q.GetReceiver(ctx, "q", "ex", "rk")
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, []byte("m"), "ex", "rk"))

	delivery, err := receiver.Receive(ctx)
	require.NoError(t, err)

	acker := delivery.Acker()
	assert.NoError(t, acker.Ack())
	assert.NoError(t, acker.Nack(true))
	assert.NoError(t, acker.Reject(false))
}

func TestInMemoryQueue_ReceiveCancelled(t *testing.T) {
	q := NewInMemoryQueue(common.Default())

	receiver, err := q.GetReceiver(context.Background(), "q", "ex", "rk")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = receiver.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInMemoryQueue_ReceiveAfterClose(t *testing.T) {
	q := NewInMemoryQueue(common.Default())
	ctx := context.Background()

	receiver, err := q.GetReceiver(ctx, "q", "ex", "rk")
	require.NoError(t, err)
	require.NoError(t, q.Close())

	_, err = receiver.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRabbitMQ_PublishDeclaresExchange(t *testing.T) {
	dialer := NewMockAMQPDialer()
	q, err := NewRabbitMQWithDialer("amqp://localhost:5672", dialer)
	require.NoError(t, err)

	err = q.Publish(context.Background(), []byte(`{"a":1}`), "obs_exchange", "spans_routing_key")
	require.NoError(t, err)

	ch := dialer.GetMockChannel()
	assert.True(t, ch.ExchangeDeclareCalled)
	assert.Equal(t, "obs_exchange", ch.LastExchangeName)
	assert.Equal(t, []string{"spans_routing_key"}, ch.PublishedKeys)
	require.Len(t, ch.PublishedMessages, 1)
	assert.Equal(t, `{"a":1}`, string(ch.PublishedMessages[0].Body))
}

func TestRabbitMQ_GetReceiverBindsQueue(t *testing.T) {
	dialer := NewMockAMQPDialer()
	q, err := NewRabbitMQWithDialer("amqp://localhost:5672", dialer)
	require.NoError(t, err)

	_, err = q.GetReceiver(context.Background(), "spans_queue", "obs_exchange", "spans_routing_key")
	require.NoError(t, err)

	ch := dialer.GetMockChannel()
	assert.True(t, ch.QueueDeclareCalled)
	assert.True(t, ch.QueueBindCalled)
	assert.True(t, ch.ConsumeCalled)
	assert.Equal(t, "spans_queue", ch.LastQueueName)
	assert.Equal(t, "obs_exchange", ch.LastExchange)
	assert.Equal(t, "spans_routing_key", ch.LastKey)
}

func TestMaxPayload_Default(t *testing.T) {
	t.Setenv("RABBITMQ_MAX_PAYLOAD", "")
	assert.Equal(t, int64(50*1024*1024), MaxPayload())

	t.Setenv("RABBITMQ_MAX_PAYLOAD", "1024")
	assert.Equal(t, int64(1024), MaxPayload())
}
