package worker

import (
	"sync"

	"github.com/google/uuid"
)

// WorkerType identifies a consumer family for health accounting.
type WorkerType string

const (
	WorkerTypeSpans          WorkerType = "spans"
	WorkerTypeBrowserEvents  WorkerType = "browser_events"
	WorkerTypeEvaluators     WorkerType = "evaluators"
	WorkerTypePayloads       WorkerType = "payloads"
	WorkerTypeTraceSummaries WorkerType = "trace_summaries"
	WorkerTypeLogs           WorkerType = "logs"
)

// ExpectedWorkerCounts is the minimum live worker count per type for the
// process to report healthy.
type ExpectedWorkerCounts struct {
	Spans          int
	BrowserEvents  int
	Evaluators     int
	Payloads       int
	TraceSummaries int
}

// Tracker is the process-wide registry of live workers.
type Tracker struct {
	mu      sync.RWMutex
	workers map[uuid.UUID]WorkerType
}

// NewTracker creates an empty registry.
func NewTracker() *Tracker {
	return &Tracker{workers: make(map[uuid.UUID]WorkerType)}
}

// RegisterWorker records a live worker and returns a handle that deregisters
// it on Close.
func (t *Tracker) RegisterWorker(workerType WorkerType) *Handle {
	id := uuid.New()
	t.mu.Lock()
	t.workers[id] = workerType
	t.mu.Unlock()
	return &Handle{id: id, tracker: t}
}

// WorkerCount returns the live count for one type.
func (t *Tracker) WorkerCount(workerType WorkerType) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	count := 0
	for _, wt := range t.workers {
		if wt == workerType {
			count++
		}
	}
	return count
}

// TotalWorkers returns the number of live workers of any type.
func (t *Tracker) TotalWorkers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.workers)
}

// WorkerCounts returns live counts keyed by type.
func (t *Tracker) WorkerCounts() map[WorkerType]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	counts := make(map[WorkerType]int)
	for _, wt := range t.workers {
		counts[wt]++
	}
	return counts
}

// IsHealthy reports whether every expected type has at least its minimum
// live count.
func (t *Tracker) IsHealthy(expected ExpectedWorkerCounts) bool {
	return t.WorkerCount(WorkerTypeSpans) >= expected.Spans &&
		t.WorkerCount(WorkerTypeBrowserEvents) >= expected.BrowserEvents &&
		t.WorkerCount(WorkerTypeEvaluators) >= expected.Evaluators &&
		t.WorkerCount(WorkerTypePayloads) >= expected.Payloads &&
		t.WorkerCount(WorkerTypeTraceSummaries) >= expected.TraceSummaries
}

func (t *Tracker) unregister(id uuid.UUID) {
	t.mu.Lock()
	delete(t.workers, id)
	t.mu.Unlock()
}

// Handle deregisters its worker on Close. Closing twice is safe.
type Handle struct {
	id      uuid.UUID
	tracker *Tracker
	once    sync.Once
}

// Close removes the worker from the registry.
func (h *Handle) Close() {
	h.once.Do(func() {
		h.tracker.unregister(h.id)
	})
}
