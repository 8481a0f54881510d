package pubsub

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// subscriberBuffer bounds each subscriber's pending messages. A slow
// subscriber drops messages rather than blocking publishers.
const subscriberBuffer = 256

// InMemoryPubSub is the in-process fan-out backend: a map from pattern to
// subscriber channels. Messages on a channel are delivered to subscribers in
// publish order.
type InMemoryPubSub struct {
	logger *logrus.Logger

	mu          sync.Mutex
	subscribers map[string][]chan [2]string
}

// NewInMemoryPubSub creates an empty in-process pub/sub.
func NewInMemoryPubSub(logger *logrus.Logger) *InMemoryPubSub {
	return &InMemoryPubSub{
		logger:      logger,
		subscribers: make(map[string][]chan [2]string),
	}
}

// Publish implements PubSub.
func (p *InMemoryPubSub) Publish(_ context.Context, channel, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for pattern, subs := range p.subscribers {
		if !MatchesPattern(pattern, channel) {
			continue
		}
		for _, sub := range subs {
			select {
			case sub <- [2]string{channel, message}:
			default:
				p.logger.WithField("pattern", pattern).
					Warn("dropping message for slow in-memory subscriber")
			}
		}
	}
	return nil
}

// Subscribe implements PubSub. It blocks until the context is cancelled.
// There is no replay: only messages published while subscribed are seen.
func (p *InMemoryPubSub) Subscribe(ctx context.Context, pattern string, callback MessageFunc) error {
	sub := make(chan [2]string, subscriberBuffer)

	p.mu.Lock()
	p.subscribers[pattern] = append(p.subscribers[pattern], sub)
	p.mu.Unlock()

	p.logger.WithField("pattern", pattern).Debug("in-memory pub/sub subscribed")

	defer func() {
		p.mu.Lock()
		subs := p.subscribers[pattern]
		for i, s := range subs {
			if s == sub {
				p.subscribers[pattern] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case pair := <-sub:
			callback(pair[0], pair[1])
		}
	}
}
