// Package pubsub provides the realtime fan-out layer: a pub/sub surface
// multiplexed over either an in-process pattern map or Redis pattern
// subscriptions. SSE endpoints tail per-project subscription keys.
package pubsub

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SseChannel identifies a realtime channel. It serializes as
// "sse:{project_id}:{subscription_key}".
type SseChannel struct {
	ProjectID       uuid.UUID
	SubscriptionKey string
}

// NewSseChannel builds a channel for a project and subscription key.
func NewSseChannel(projectID uuid.UUID, subscriptionKey string) SseChannel {
	return SseChannel{ProjectID: projectID, SubscriptionKey: subscriptionKey}
}

// String implements fmt.Stringer.
func (c SseChannel) String() string {
	return fmt.Sprintf("sse:%s:%s", c.ProjectID, c.SubscriptionKey)
}

// ParseSseChannel parses a channel string. The format is exactly three
// ":"-separated segments with an "sse" prefix and a UUID project id.
func ParseSseChannel(channel string) (SseChannel, error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 || parts[0] != "sse" {
		return SseChannel{}, fmt.Errorf("invalid SSE channel format: %s", channel)
	}
	projectID, err := uuid.Parse(parts[1])
	if err != nil {
		return SseChannel{}, fmt.Errorf("invalid project_id in channel %s: %w", channel, err)
	}
	return SseChannel{ProjectID: projectID, SubscriptionKey: parts[2]}, nil
}

// ProjectPattern returns the subscription pattern matching every channel of
// one project.
func ProjectPattern(projectID uuid.UUID) string {
	return fmt.Sprintf("sse:%s:*", projectID)
}

// MessageFunc is invoked once per received message with the concrete channel
// and the payload.
type MessageFunc func(channel, message string)

// PubSub is the uniform surface over the fan-out backends.
type PubSub interface {
	// Publish sends message to everyone subscribed to a pattern matching
	// channel.
	Publish(ctx context.Context, channel, message string) error

	// Subscribe blocks, invoking callback for each message on a channel
	// matching pattern, until the context is cancelled.
	Subscribe(ctx context.Context, pattern string, callback MessageFunc) error
}

// MatchesPattern applies glob matching over ":"-separated parts: "*" matches
// exactly one part. Pattern and channel must have the same number of parts.
func MatchesPattern(pattern, channel string) bool {
	patternParts := strings.Split(pattern, ":")
	channelParts := strings.Split(channel, ":")
	if len(patternParts) != len(channelParts) {
		return false
	}
	for i, p := range patternParts {
		if p != "*" && p != channelParts[i] {
			return false
		}
	}
	return true
}
