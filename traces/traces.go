// Package traces contains the span ingestion pipeline: the producer that
// turns OTLP exports into queue messages, the batch consumer, and the
// processing steps between queue and columnar storage (enrichment, pricing,
// blob spill-out, trace aggregation, trigger matching, realtime fan-out).
package traces

// Queue wire names for the span pipeline and its downstream consumers.
const (
	SpansQueue      = "spans_queue"
	SpansExchange   = "obs_exchange"
	SpansRoutingKey = "spans_routing_key"

	SignalJobPendingQueue      = "signal_job_pending_queue"
	SignalJobPendingExchange   = "signal_job_pending_exchange"
	SignalJobPendingRoutingKey = "signal_job_pending_routing_key"

	SpansIndexerQueue      = "spans_indexer_queue"
	SpansIndexerExchange   = "spans_indexer_exchange"
	SpansIndexerRoutingKey = "spans_indexer_routing_key"

	// Downstream analysis stages consumed outside this process. The names
	// are stable wire contracts shared with those consumers.
	SignalJobWaitingQueue          = "signal_job_waiting_queue"
	SignalJobWaitingExchange       = "signal_job_waiting_exchange"
	SignalJobWaitingRoutingKey     = "signal_job_waiting_routing_key"
	SignalJobSubmissionsQueue      = "signal_job_submissions_queue"
	SignalJobSubmissionsExchange   = "signal_job_submissions_exchange"
	SignalJobSubmissionsRoutingKey = "signal_job_submissions_routing_key"

	EventClusteringQueue           = "event_clustering_queue"
	EventClusteringExchange        = "event_clustering_exchange"
	EventClusteringRoutingKey      = "event_clustering_routing_key"
	EventClusteringBatchQueue      = "event_clustering_batch_queue"
	EventClusteringBatchExchange   = "event_clustering_batch_exchange"
	EventClusteringBatchRoutingKey = "event_clustering_batch_routing_key"
)

// DefaultInlineSizeBudget is the per-field size above which span inputs and
// outputs are spilled to blob storage.
const DefaultInlineSizeBudget = 64 * 1024
