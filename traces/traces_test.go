package traces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tracefold/app-server/cache"
	"github.com/tracefold/app-server/common"
	"github.com/tracefold/app-server/db"
	"github.com/tracefold/app-server/mq"
	"github.com/tracefold/app-server/spans"
	"github.com/tracefold/app-server/storage"
	"github.com/tracefold/app-server/worker"
)

// capturingQueue records published payloads per (exchange, routing key).
type capturingQueue struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func newCapturingQueue() *capturingQueue {
	return &capturingQueue{payloads: make(map[string][][]byte)}
}

func (q *capturingQueue) Publish(_ context.Context, message []byte, exchange, routingKey string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := exchange + "/" + routingKey
	data := make([]byte, len(message))
	copy(data, message)
	q.payloads[key] = append(q.payloads[key], data)
	return nil
}

func (q *capturingQueue) GetReceiver(context.Context, string, string, string) (mq.Receiver, error) {
	return nil, errors.New("not implemented")
}

func (q *capturingQueue) Close() error { return nil }

func (q *capturingQueue) published(exchange, routingKey string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.payloads[exchange+"/"+routingKey]
}

func otelExportRequest(spanName string) *coltracepb.ExportTraceServiceRequest {
	return &coltracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{{
			ScopeSpans: []*tracepb.ScopeSpans{{
				Spans: []*tracepb.Span{{
					TraceId:           []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
					SpanId:            []byte{1, 2, 3, 4, 5, 6, 7, 8},
					Name:              spanName,
					StartTimeUnixNano: 1700000000000000000,
					EndTimeUnixNano:   1700000001000000000,
				}},
			}},
		}},
	}
}

func TestPushSpansToQueue_PublishesSingleMessage(t *testing.T) {
	queue := newCapturingQueue()
	projectID := uuid.New()

	err := PushSpansToQueue(context.Background(), otelExportRequest("chat"), projectID, queue, common.Default())
	require.NoError(t, err)

	published := queue.published(SpansExchange, SpansRoutingKey)
	require.Len(t, published, 1)

	var messages []SpanMessage
	require.NoError(t, json.Unmarshal(published[0], &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "chat", messages[0].Span.Name)
	assert.Equal(t, projectID, messages[0].Span.ProjectID)
}

func TestPushSpansToQueue_DropsIgnoredSpans(t *testing.T) {
	queue := newCapturingQueue()
	request := otelExportRequest("internal")
	request.ResourceSpans[0].ScopeSpans[0].Spans[0].Attributes = []*commonpb.KeyValue{{
		Key:   spans.SpanIgnoreAttribute,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: true}},
	}}

	err := PushSpansToQueue(context.Background(), request, uuid.New(), queue, common.Default())
	require.NoError(t, err)
	assert.Empty(t, queue.published(SpansExchange, SpansRoutingKey))
}

func TestPublishSpanMessages_DropsOversizedPayload(t *testing.T) {
	t.Setenv("RABBITMQ_MAX_PAYLOAD", "128")
	queue := newCapturingQueue()

	big := strings.Repeat("x", 1024)
	messages := []SpanMessage{{Span: &spans.Span{
		SpanID: uuid.New(), TraceID: uuid.New(), Name: big,
		Attributes: spans.NewSpanAttributes(nil),
	}}}

	err := PublishSpanMessages(context.Background(), messages, uuid.New(), queue, common.Default())
	require.NoError(t, err, "oversized payloads are dropped silently")
	assert.Empty(t, queue.published(SpansExchange, SpansRoutingKey))
}

func TestDedupeEvents(t *testing.T) {
	spanID := uuid.New()
	ts := time.Unix(100, 0).UTC()

	event := func(name string, at time.Time) spans.SpanEvent {
		return spans.SpanEvent{ID: uuid.New(), SpanID: spanID, Name: name, Timestamp: at}
	}

	messages := []SpanMessage{
		{Events: []spans.SpanEvent{event("a", ts), event("b", ts)}},
		{Events: []spans.SpanEvent{event("a", ts), event("a", ts.Add(time.Second))}},
	}

	deduped := dedupeEvents(messages)
	assert.Len(t, deduped, 3, "duplicate (span, timestamp, name) events collapse")
}

func TestSpillOversizedPayloads(t *testing.T) {
	queue := newCapturingQueue()
	projectID := uuid.New()

	processor := &Processor{
		Queue:            queue,
		Logger:           common.Default(),
		PayloadBucket:    "payloads",
		InlineSizeBudget: 64,
	}

	big := strings.Repeat("a", 2048)
	span := &spans.Span{
		SpanID:     uuid.New(),
		TraceID:    uuid.New(),
		ProjectID:  projectID,
		Input:      big,
		Output:     "small",
		Attributes: spans.NewSpanAttributes(nil),
	}

	processor.spillOversizedPayloads(context.Background(), span)

	assert.Nil(t, span.Input)
	require.NotNil(t, span.InputURL)
	urlPattern := fmt.Sprintf(`^/api/projects/%s/payloads/[0-9a-f-]{36}$`, projectID)
	assert.Regexp(t, regexp.MustCompile(urlPattern), *span.InputURL)

	assert.Equal(t, "small", span.Output)
	assert.Nil(t, span.OutputURL)

	published := queue.published(storage.PayloadsExchange, storage.PayloadsRoutingKey)
	require.Len(t, published, 1)

	var message storage.QueuePayloadMessage
	require.NoError(t, json.Unmarshal(published[0], &message))
	assert.True(t, strings.HasPrefix(message.Key, fmt.Sprintf("project/%s/", projectID)))
	assert.Equal(t, "payloads", message.Bucket)

	var original string
	require.NoError(t, json.Unmarshal(message.Data, &original))
	assert.Equal(t, big, original)
}

func TestMatchTriggers_EnqueuesAnalysisMessages(t *testing.T) {
	queue := newCapturingQueue()
	c := cache.NewInMemoryCache()
	projectID := uuid.New()

	triggers := []db.SummaryTriggerSpan{
		{ID: uuid.New(), ProjectID: projectID, SpanName: "checkout", SignalName: "slow-checkout", Prompt: "explain"},
	}
	cacheKey := fmt.Sprintf("%s:%s", cache.SummaryTriggerSpansCacheKey, projectID)
	require.NoError(t, c.Insert(context.Background(), cacheKey, triggers))

	batch := []*spans.Span{
		{SpanID: uuid.New(), TraceID: uuid.New(), Name: "checkout"},
		{SpanID: uuid.New(), TraceID: uuid.New(), Name: "other"},
	}

	err := matchTriggers(context.Background(), nil, c, queue, projectID, batch)
	require.NoError(t, err)

	published := queue.published(SignalJobPendingExchange, SignalJobPendingRoutingKey)
	require.Len(t, published, 1)

	var job SignalJobMessage
	require.NoError(t, json.Unmarshal(published[0], &job))
	assert.Equal(t, "slow-checkout", job.SignalName)
	assert.Equal(t, batch[0].SpanID, job.SpanID)
}

// stubProcessor fails a configurable number of flushes transiently.
type stubProcessor struct {
	transientFailures int
	calls             int
	processed         [][]SpanMessage
}

func (s *stubProcessor) ProcessSpanMessages(_ context.Context, messages []SpanMessage) error {
	s.calls++
	if s.transientFailures > 0 {
		s.transientFailures--
		return worker.NewTransientError(errors.New("columnar store unavailable"))
	}
	s.processed = append(s.processed, messages)
	return nil
}

func spanMessageBatch(n int) []SpanMessage {
	messages := make([]SpanMessage, n)
	for i := range messages {
		messages[i] = SpanMessage{Span: &spans.Span{
			SpanID:     uuid.New(),
			TraceID:    uuid.New(),
			ProjectID:  uuid.New(),
			Attributes: spans.NewSpanAttributes(nil),
		}}
	}
	return messages
}

func TestSpanHandler_FlushOnBatchSize(t *testing.T) {
	stub := &stubProcessor{}
	handler := &SpanHandler{
		Processor: stub,
		Logger:    common.Default(),
		Config:    BatchingConfig{Size: 3, FlushInterval: time.Hour},
	}

	var state []worker.Delivery[[]SpanMessage]
	ctx := context.Background()

	result := handler.HandleMessage(ctx, worker.Delivery[[]SpanMessage]{Message: spanMessageBatch(2)}, &state)
	assert.Empty(t, result.ToAck, "batch below threshold stays pending")
	assert.Len(t, state, 1)

	result = handler.HandleMessage(ctx, worker.Delivery[[]SpanMessage]{Message: spanMessageBatch(1)}, &state)
	assert.Len(t, result.ToAck, 2, "both deliveries resolve on flush")
	assert.Empty(t, state)
	assert.Equal(t, 1, stub.calls)
	require.Len(t, stub.processed, 1)
	assert.Len(t, stub.processed[0], 3)
}

func TestSpanHandler_EmptyMessageAcksImmediately(t *testing.T) {
	handler := &SpanHandler{
		Processor: &stubProcessor{},
		Logger:    common.Default(),
		Config:    DefaultBatchingConfig(),
	}

	var state []worker.Delivery[[]SpanMessage]
	result := handler.HandleMessage(context.Background(), worker.Delivery[[]SpanMessage]{}, &state)
	assert.Len(t, result.ToAck, 1)
	assert.Empty(t, state)
}

func TestSpanHandler_TransientFailureRequeuesWholeBatch(t *testing.T) {
	stub := &stubProcessor{transientFailures: 1}
	handler := &SpanHandler{
		Processor: stub,
		Logger:    common.Default(),
		Config:    BatchingConfig{Size: 2, FlushInterval: time.Hour},
	}

	var state []worker.Delivery[[]SpanMessage]
	ctx := context.Background()

	handler.HandleMessage(ctx, worker.Delivery[[]SpanMessage]{Message: spanMessageBatch(1)}, &state)
	result := handler.HandleMessage(ctx, worker.Delivery[[]SpanMessage]{Message: spanMessageBatch(1)}, &state)

	assert.Len(t, result.ToRequeue, 2, "every delivery in the failed batch requeues")
	assert.Empty(t, result.ToAck)

	// Redelivery then succeeds.
	handler.HandleMessage(ctx, worker.Delivery[[]SpanMessage]{Message: spanMessageBatch(1)}, &state)
	result = handler.HandleMessage(ctx, worker.Delivery[[]SpanMessage]{Message: spanMessageBatch(1)}, &state)
	assert.Len(t, result.ToAck, 2)
}

func TestSpanHandler_IntervalFlushesPartialBatch(t *testing.T) {
	stub := &stubProcessor{}
	handler := &SpanHandler{
		Processor: stub,
		Logger:    common.Default(),
		Config:    BatchingConfig{Size: 100, FlushInterval: time.Hour},
	}

	var state []worker.Delivery[[]SpanMessage]
	ctx := context.Background()

	handler.HandleMessage(ctx, worker.Delivery[[]SpanMessage]{Message: spanMessageBatch(1)}, &state)

	result := handler.HandleInterval(ctx, &state)
	assert.Len(t, result.ToAck, 1)
	assert.Equal(t, 1, stub.calls)

	result = handler.HandleInterval(ctx, &state)
	assert.Empty(t, result.ToAck, "empty state flushes nothing")
	assert.Equal(t, 1, stub.calls)
}

func TestGetWorkspaceLimitExceeded_CacheHit(t *testing.T) {
	c := cache.NewInMemoryCache()
	projectID := uuid.New()

	cacheKey := fmt.Sprintf("%s:%s", cache.WorkspaceLimitsCacheKey, projectID)
	require.NoError(t, c.Insert(context.Background(),
		cacheKey, db.WorkspaceLimitsExceeded{BytesIngested: true}))

	exceeded, err := GetWorkspaceLimitExceeded(context.Background(), nil, c, projectID)
	require.NoError(t, err)
	assert.True(t, exceeded.BytesIngested)
	assert.False(t, exceeded.Steps)
}
