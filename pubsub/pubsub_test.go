package pubsub

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracefold/app-server/common"
)

func TestSseChannel_RoundTrip(t *testing.T) {
	channel := NewSseChannel(uuid.New(), "traces")

	parsed, err := ParseSseChannel(channel.String())
	require.NoError(t, err)
	assert.Equal(t, channel, parsed)
}

func TestParseSseChannel_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		channel string
	}{
		{name: "WrongPrefix", channel: fmt.Sprintf("wss:%s:traces", uuid.New())},
		{name: "NonUUID", channel: "sse:not-a-uuid:traces"},
		{name: "TooFewSegments", channel: fmt.Sprintf("sse:%s", uuid.New())},
		{name: "TooManySegments", channel: fmt.Sprintf("sse:%s:traces:extra", uuid.New())},
		{name: "Empty", channel: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSseChannel(tt.channel)
			assert.Error(t, err)
		})
	}
}

func TestMatchesPattern(t *testing.T) {
	projectID := uuid.New().String()

	tests := []struct {
		pattern string
		channel string
		want    bool
	}{
		{"sse:*:*", "sse:" + projectID + ":traces", true},
		{"sse:*:*", "sse:" + projectID + ":trace_123", true},
		{"sse:*:*", "sse:" + projectID, false},
		{"sse:*:*", "sse:" + projectID + ":a:b", false},
		{"sse:" + projectID + ":*", "sse:" + projectID + ":traces", true},
		{"sse:" + projectID + ":*", "sse:" + uuid.New().String() + ":traces", false},
		{"sse:" + projectID + ":traces", "sse:" + projectID + ":traces", true},
		{"sse:" + projectID + ":traces", "sse:" + projectID + ":trace_1", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchesPattern(tt.pattern, tt.channel),
			"pattern %s vs channel %s", tt.pattern, tt.channel)
	}
}

func TestInMemoryPubSub_PublishSubscribe(t *testing.T) {
	ps := NewInMemoryPubSub(common.Default())
	projectID := uuid.New()
	channel := NewSseChannel(projectID, "traces").String()

	received := make(chan [2]string, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscribed := make(chan struct{})
	go func() {
		close(subscribed)
		_ = ps.Subscribe(ctx, ProjectPattern(projectID), func(ch, msg string) {
			received <- [2]string{ch, msg}
		})
	}()
	<-subscribed
	// Give the subscriber goroutine time to register.
	require.Eventually(t, func() bool {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		return len(ps.subscribers[ProjectPattern(projectID)]) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, ps.Publish(ctx, channel, "one"))
	require.NoError(t, ps.Publish(ctx, channel, "two"))

	for _, want := range []string{"one", "two"} {
		select {
		case pair := <-received:
			assert.Equal(t, channel, pair[0])
			assert.Equal(t, want, pair[1])
		case <-time.After(time.Second):
			t.Fatal("did not receive published message")
		}
	}
}

func TestInMemoryPubSub_NoCrossProjectDelivery(t *testing.T) {
	ps := NewInMemoryPubSub(common.Default())
	mine := uuid.New()
	other := uuid.New()

	received := make(chan string, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = ps.Subscribe(ctx, ProjectPattern(mine), func(_, msg string) {
			received <- msg
		})
	}()
	require.Eventually(t, func() bool {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		return len(ps.subscribers[ProjectPattern(mine)]) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, ps.Publish(ctx, NewSseChannel(other, "traces").String(), "not-mine"))
	require.NoError(t, ps.Publish(ctx, NewSseChannel(mine, "traces").String(), "mine"))

	select {
	case msg := <-received:
		assert.Equal(t, "mine", msg)
	case <-time.After(time.Second):
		t.Fatal("did not receive message")
	}
	assert.Empty(t, received)
}

func TestInMemoryPubSub_NoReplayAfterResubscribe(t *testing.T) {
	ps := NewInMemoryPubSub(common.Default())
	projectID := uuid.New()
	channel := NewSseChannel(projectID, "traces").String()

	// Publish with no subscriber: the message is lost, not replayed.
	require.NoError(t, ps.Publish(context.Background(), channel, "before"))

	received := make(chan string, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = ps.Subscribe(ctx, ProjectPattern(projectID), func(_, msg string) {
			received <- msg
		})
	}()
	require.Eventually(t, func() bool {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		return len(ps.subscribers[ProjectPattern(projectID)]) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, ps.Publish(ctx, channel, "after"))

	select {
	case msg := <-received:
		assert.Equal(t, "after", msg, "only messages published after subscribing arrive")
	case <-time.After(time.Second):
		t.Fatal("did not receive message")
	}
}

func TestInMemoryPubSub_SubscriberRemovedOnCancel(t *testing.T) {
	ps := NewInMemoryPubSub(common.Default())
	pattern := ProjectPattern(uuid.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = ps.Subscribe(ctx, pattern, func(string, string) {})
		close(done)
	}()
	require.Eventually(t, func() bool {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		return len(ps.subscribers[pattern]) == 1
	}, time.Second, time.Millisecond)

	cancel()
	<-done

	ps.mu.Lock()
	defer ps.mu.Unlock()
	assert.Empty(t, ps.subscribers[pattern])
}
