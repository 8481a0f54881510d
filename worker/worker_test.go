package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracefold/app-server/common"
	"github.com/tracefold/app-server/mq"
)

// countingAcker records every resolution for ack-discipline assertions.
type countingAcker struct {
	mu      sync.Mutex
	acks    int
	rejects []bool // requeue flag per Reject call
	nacks   []bool
}

func (a *countingAcker) Ack() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *countingAcker) Nack(requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks = append(a.nacks, requeue)
	return nil
}

func (a *countingAcker) Reject(requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejects = append(a.rejects, requeue)
	return nil
}

type testMessage struct {
	ID string `json:"id"`
}

type recordingHandler struct {
	interval time.Duration
	onMsg    func(d Delivery[testMessage], state *[]Delivery[testMessage]) HandlerResult[testMessage]
	onTick   func(state *[]Delivery[testMessage]) HandlerResult[testMessage]
}

func (h *recordingHandler) Interval() time.Duration {
	if h.interval == 0 {
		return time.Hour
	}
	return h.interval
}

func (h *recordingHandler) InitialState() []Delivery[testMessage] {
	return nil
}

func (h *recordingHandler) HandleMessage(_ context.Context, d Delivery[testMessage], state *[]Delivery[testMessage]) HandlerResult[testMessage] {
	if h.onMsg != nil {
		return h.onMsg(d, state)
	}
	return EmptyResult[testMessage]()
}

func (h *recordingHandler) HandleInterval(_ context.Context, state *[]Delivery[testMessage]) HandlerResult[testMessage] {
	if h.onTick != nil {
		return h.onTick(state)
	}
	return EmptyResult[testMessage]()
}

func newTestWorker(h BatchHandler[testMessage, []Delivery[testMessage]]) *Worker[testMessage, []Delivery[testMessage]] {
	return NewWorker(
		WorkerTypeSpans,
		h,
		mq.NewInMemoryQueue(common.Default()),
		QueueConfig{QueueName: "q", Exchange: "ex", RoutingKey: "rk"},
		NewTracker(),
		common.Default(),
	)
}

type rawDelivery struct {
	data  []byte
	acker mq.Acker
}

func (d rawDelivery) Acker() mq.Acker { return d.acker }
func (d rawDelivery) Data() []byte    { return d.data }

func TestApplyResult_AckDiscipline(t *testing.T) {
	w := newTestWorker(&recordingHandler{})

	ackMe := &countingAcker{}
	rejectMe := &countingAcker{}
	requeueMe := &countingAcker{}

	w.applyResult(HandlerResult[testMessage]{
		ToAck:     []Delivery[testMessage]{{Acker: ackMe}},
		ToReject:  []Delivery[testMessage]{{Acker: rejectMe}},
		ToRequeue: []Delivery[testMessage]{{Acker: requeueMe}},
	})

	assert.Equal(t, 1, ackMe.acks)
	assert.Empty(t, ackMe.rejects)

	assert.Equal(t, 0, rejectMe.acks)
	assert.Equal(t, []bool{false}, rejectMe.rejects)

	assert.Equal(t, 0, requeueMe.acks)
	assert.Equal(t, []bool{true}, requeueMe.rejects)
}

func TestDispatchMessage_DecodeFailureRejects(t *testing.T) {
	w := newTestWorker(&recordingHandler{})

	acker := &countingAcker{}
	var state []Delivery[testMessage]
	result := w.dispatchMessage(context.Background(), rawDelivery{data: []byte("{not json"), acker: acker}, &state)
	w.applyResult(result)

	assert.Equal(t, []bool{false}, acker.rejects)
	assert.Equal(t, 0, acker.acks)
}

func TestDispatchMessage_PanicRequeues(t *testing.T) {
	handler := &recordingHandler{
		onMsg: func(Delivery[testMessage], *[]Delivery[testMessage]) HandlerResult[testMessage] {
			panic("boom")
		},
	}
	w := newTestWorker(handler)

	acker := &countingAcker{}
	data, _ := json.Marshal(testMessage{ID: "m1"})
	var state []Delivery[testMessage]
	result := w.dispatchMessage(context.Background(), rawDelivery{data: data, acker: acker}, &state)
	w.applyResult(result)

	assert.Equal(t, []bool{true}, acker.rejects, "panicked delivery must be requeued")
}

func TestWorker_RunProcessesMessages(t *testing.T) {
	queue := mq.NewInMemoryQueue(common.Default())
	tracker := NewTracker()

	processed := make(chan string, 10)
	handler := &recordingHandler{
		onMsg: func(d Delivery[testMessage], state *[]Delivery[testMessage]) HandlerResult[testMessage] {
			processed <- d.Message.ID
			return AckResult([]Delivery[testMessage]{d})
		},
	}

	w := NewWorker[testMessage, []Delivery[testMessage]](
		WorkerTypeSpans, handler, queue,
		QueueConfig{QueueName: "q", Exchange: "ex", RoutingKey: "rk"},
		tracker, common.Default(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Wait for the worker to register and bind before publishing.
	require.Eventually(t, func() bool {
		return tracker.WorkerCount(WorkerTypeSpans) == 1
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		data, _ := json.Marshal(testMessage{ID: "m1"})
		return queue.Publish(ctx, data, "ex", "rk") == nil
	}, time.Second, 5*time.Millisecond)

	select {
	case id := <-processed:
		assert.Equal(t, "m1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not process the message")
	}

	cancel()
	require.Eventually(t, func() bool {
		return tracker.WorkerCount(WorkerTypeSpans) == 0
	}, time.Second, 5*time.Millisecond, "worker should deregister on exit")
}

func TestWorker_IntervalTickFlushes(t *testing.T) {
	queue := mq.NewInMemoryQueue(common.Default())

	flushed := make(chan int, 10)
	handler := &recordingHandler{
		interval: 20 * time.Millisecond,
		onMsg: func(d Delivery[testMessage], state *[]Delivery[testMessage]) HandlerResult[testMessage] {
			*state = append(*state, d)
			return EmptyResult[testMessage]()
		},
		onTick: func(state *[]Delivery[testMessage]) HandlerResult[testMessage] {
			if len(*state) == 0 {
				return EmptyResult[testMessage]()
			}
			batch := *state
			*state = nil
			flushed <- len(batch)
			return AckResult(batch)
		},
	}

	w := NewWorker[testMessage, []Delivery[testMessage]](
		WorkerTypeSpans, handler, queue,
		QueueConfig{QueueName: "q", Exchange: "ex", RoutingKey: "rk"},
		NewTracker(), common.Default(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		data, _ := json.Marshal(testMessage{ID: "m"})
		return queue.Publish(ctx, data, "ex", "rk") == nil
	}, time.Second, 5*time.Millisecond)

	select {
	case n := <-flushed:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("interval tick did not flush the batch")
	}
}

func TestHandlerError_Classification(t *testing.T) {
	transient := NewTransientError(assert.AnError)
	permanent := NewPermanentError(assert.AnError)

	assert.True(t, IsTransient(transient))
	assert.False(t, IsTransient(permanent))
	assert.False(t, IsTransient(assert.AnError))
	assert.ErrorIs(t, transient, assert.AnError)
}

func TestTracker_Health(t *testing.T) {
	tracker := NewTracker()

	expected := ExpectedWorkerCounts{Spans: 1, Payloads: 1}
	assert.False(t, tracker.IsHealthy(expected))

	spansHandle := tracker.RegisterWorker(WorkerTypeSpans)
	payloadsHandle := tracker.RegisterWorker(WorkerTypePayloads)
	assert.True(t, tracker.IsHealthy(expected))
	assert.Equal(t, 2, tracker.TotalWorkers())

	payloadsHandle.Close()
	assert.False(t, tracker.IsHealthy(expected))

	// Closing twice is safe.
	payloadsHandle.Close()
	spansHandle.Close()
	assert.Equal(t, 0, tracker.TotalWorkers())
}
