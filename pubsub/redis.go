package pubsub

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisPubSub is the remote fan-out backend built on Redis pattern
// subscriptions. Delivery order mirrors Redis's per-channel guarantee.
type RedisPubSub struct {
	client *redis.Client
	logger *logrus.Logger
}

// NewRedisPubSub connects to the Redis server at url.
func NewRedisPubSub(url string, logger *logrus.Logger) (*RedisPubSub, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &RedisPubSub{client: redis.NewClient(opts), logger: logger}, nil
}

// NewRedisPubSubWithClient wraps an existing client. Used by tests.
func NewRedisPubSubWithClient(client *redis.Client, logger *logrus.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, logger: logger}
}

// Publish implements PubSub.
func (p *RedisPubSub) Publish(ctx context.Context, channel, message string) error {
	if err := p.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %q: %w", channel, err)
	}
	return nil
}

// Subscribe implements PubSub via PSUBSCRIBE. It blocks until the context is
// cancelled.
func (p *RedisPubSub) Subscribe(ctx context.Context, pattern string, callback MessageFunc) error {
	sub := p.client.PSubscribe(ctx, pattern)
	defer sub.Close()

	p.logger.WithField("pattern", pattern).Debug("redis pub/sub subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			callback(msg.Channel, msg.Payload)
		}
	}
}
