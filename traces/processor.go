package traces

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tracefold/app-server/cache"
	"github.com/tracefold/app-server/ch"
	"github.com/tracefold/app-server/db"
	"github.com/tracefold/app-server/mq"
	"github.com/tracefold/app-server/pubsub"
	"github.com/tracefold/app-server/spans"
	"github.com/tracefold/app-server/storage"
	"github.com/tracefold/app-server/worker"
)

// Processor holds the shared collaborators of the span pipeline. Batch state
// never lives here; it stays inside each worker's handler.
type Processor struct {
	DB            *db.DB
	Cache         cache.Cache
	Queue         mq.MessageQueue
	CH            *ch.Service
	PubSub        pubsub.PubSub
	Logger        *logrus.Logger
	PayloadBucket string
	// InlineSizeBudget is the per-field size above which inputs/outputs
	// are spilled to blob storage. Zero selects the default.
	InlineSizeBudget int64
}

func (p *Processor) inlineBudget() int64 {
	if p.InlineSizeBudget > 0 {
		return p.InlineSizeBudget
	}
	return DefaultInlineSizeBudget
}

// ProcessSpanMessages runs the full pipeline over a flushed batch. Only a
// columnar-insert failure fails the batch (transient, for requeue); every
// other downstream side effect logs and continues.
func (p *Processor) ProcessSpanMessages(ctx context.Context, messages []SpanMessage) error {
	if len(messages) == 0 {
		return nil
	}

	byProject := make(map[uuid.UUID][]SpanMessage)
	for _, message := range messages {
		if message.Span == nil {
			continue
		}
		byProject[message.Span.ProjectID] = append(byProject[message.Span.ProjectID], message)
	}

	for projectID, group := range byProject {
		if err := p.processProjectBatch(ctx, projectID, group); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) processProjectBatch(ctx context.Context, projectID uuid.UUID, messages []SpanMessage) error {
	batch := make([]*spans.Span, 0, len(messages))
	events := dedupeEvents(messages)
	for _, message := range messages {
		batch = append(batch, message.Span)
	}

	aggregates := make(map[uuid.UUID]*spans.TraceAttributes)
	for _, span := range batch {
		// Promote usage attributes and attach pricing before folding.
		p.attachUsage(ctx, span)
		p.spillOversizedPayloads(ctx, span)

		aggregate, ok := aggregates[span.TraceID]
		if !ok {
			aggregate = spans.NewTraceAttributes(span.TraceID)
			aggregates[span.TraceID] = aggregate
		}
		aggregate.Fold(span)
	}

	if err := matchTriggers(ctx, p.DB, p.Cache, p.Queue, projectID, batch); err != nil {
		p.Logger.WithError(err).WithField("project_id", projectID).
			Error("trigger matching failed")
	}

	if err := sendSpanUpdates(ctx, p.PubSub, projectID, batch); err != nil {
		p.Logger.WithError(err).Error("failed to send realtime span updates")
	}
	if err := sendTraceUpdates(ctx, p.PubSub, projectID, aggregates); err != nil {
		p.Logger.WithError(err).Error("failed to send realtime trace updates")
	}

	if err := p.insertBatch(ctx, projectID, batch, events, aggregates); err != nil {
		return worker.NewTransientError(fmt.Errorf("columnar insert failed: %w", err))
	}

	p.bumpUsage(ctx, projectID, batch)

	p.enqueueForIndexing(ctx, projectID, batch)

	return nil
}

// dedupeEvents drops duplicate events across the batch, keyed by
// (span_id, timestamp, name).
func dedupeEvents(messages []SpanMessage) []spans.SpanEvent {
	seen := make(map[string]struct{})
	var events []spans.SpanEvent
	for _, message := range messages {
		for _, event := range message.Events {
			key := fmt.Sprintf("%s:%d:%s", event.SpanID, event.Timestamp.UnixNano(), event.Name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			events = append(events, event)
		}
	}
	return events
}

// attachUsage promotes token counts from attributes and computes costs for
// LLM spans from the cached model pricing table.
func (p *Processor) attachUsage(ctx context.Context, span *spans.Span) {
	span.InputTokens = span.Attributes.InputTokens()
	span.OutputTokens = span.Attributes.OutputTokens()
	span.TotalTokens = span.Attributes.TotalTokens()

	reportedIn, reportedOut, reportedTotal := span.Attributes.ReportedCosts()
	span.InputCost = reportedIn
	span.OutputCost = reportedOut
	span.TotalCost = reportedTotal

	if span.SpanType != spans.SpanTypeLLM || span.TotalCost != 0 {
		return
	}

	provider := span.Attributes.Provider()
	model := span.Attributes.RequestModel()
	if model == "" {
		model = span.Attributes.ResponseModel()
	}
	if provider == "" || model == "" {
		return
	}

	cost := p.lookupModelCost(ctx, provider, model)
	if cost == nil {
		return
	}

	const million = 1_000_000
	span.InputCost = float64(span.InputTokens) / million * cost.InputPricePerMillion
	span.OutputCost = float64(span.OutputTokens) / million * cost.OutputPricePerMillion
	if cost.CacheReadPricePerMillion != nil {
		span.InputCost += float64(span.Attributes.CacheReadTokens()) / million * *cost.CacheReadPricePerMillion
	}
	if cost.CacheWritePricePerMillion != nil {
		span.InputCost += float64(span.Attributes.CacheWriteTokens()) / million * *cost.CacheWritePricePerMillion
	}
	span.TotalCost = span.InputCost + span.OutputCost
}

func (p *Processor) lookupModelCost(ctx context.Context, provider, model string) *db.ModelCost {
	cacheKey := fmt.Sprintf("%s:%s:%s", cache.ModelCostsCacheKey, provider, model)

	var cached db.ModelCost
	if found, err := p.Cache.Get(ctx, cacheKey, &cached); err == nil && found {
		return &cached
	}

	cost, err := db.GetModelCost(ctx, p.DB, provider, model)
	if err != nil {
		if err != db.ErrNotFound {
			p.Logger.WithError(err).WithFields(logrus.Fields{
				"provider": provider, "model": model,
			}).Error("failed to look up model cost")
		}
		return nil
	}

	_ = p.Cache.Insert(ctx, cacheKey, cost)
	return cost
}

// spillOversizedPayloads moves span inputs and outputs exceeding the inline
// budget to blob storage via the payloads queue, rewriting the field to a
// URL reference. Failures log and keep the payload inline.
func (p *Processor) spillOversizedPayloads(ctx context.Context, span *spans.Span) {
	spill := func(value interface{}) (*string, bool) {
		size := spans.EstimatePayloadSize(value)
		if size <= p.inlineBudget() {
			return nil, false
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, false
		}
		key := storage.CreateKey(span.ProjectID, "")
		url, err := storage.PublishPayload(ctx, p.Queue, p.PayloadBucket, key, data)
		if err != nil {
			p.Logger.WithError(err).WithField("span_id", span.SpanID).
				Error("failed to publish oversized payload, keeping inline")
			return nil, false
		}
		return &url, true
	}

	if url, ok := spill(span.Input); ok {
		span.Input = nil
		span.InputURL = url
	}
	if url, ok := spill(span.Output); ok {
		span.Output = nil
		span.OutputURL = url
	}

	span.SizeBytes = spans.EstimatePayloadSize(span.Attributes) +
		spans.EstimatePayloadSize(span.Input) +
		spans.EstimatePayloadSize(span.Output)
}

// insertBatch writes spans, trace aggregates, and tags to columnar storage.
// All-or-nothing per batch: any failure requeues the whole batch.
func (p *Processor) insertBatch(
	ctx context.Context,
	projectID uuid.UUID,
	batch []*spans.Span,
	events []spans.SpanEvent,
	aggregates map[uuid.UUID]*spans.TraceAttributes,
) error {
	chSpans := make([]ch.CHSpan, 0, len(batch))
	for _, span := range batch {
		chSpans = append(chSpans, ch.CHSpanFromSpan(span))
	}
	if err := ch.InsertBatch(ctx, p.CH, projectID, chSpans); err != nil {
		return err
	}

	chTraces := make([]ch.CHTrace, 0, len(aggregates))
	for _, aggregate := range aggregates {
		chTraces = append(chTraces, ch.CHTraceFromAttributes(projectID, aggregate))
	}
	if err := ch.InsertBatch(ctx, p.CH, projectID, chTraces); err != nil {
		return err
	}

	tags := collectTags(projectID, batch)
	if err := ch.InsertBatch(ctx, p.CH, projectID, tags); err != nil {
		return err
	}

	chEvents := make([]ch.CHEvent, 0, len(events))
	for i := range events {
		chEvents = append(chEvents, ch.CHEventFromSpanEvent(&events[i]))
	}
	if err := ch.InsertBatch(ctx, p.CH, projectID, chEvents); err != nil {
		return err
	}

	return nil
}

// collectTags extracts association-property tags from span attributes.
func collectTags(projectID uuid.UUID, batch []*spans.Span) []ch.CHTag {
	var tags []ch.CHTag
	for _, span := range batch {
		raw, ok := span.Attributes[spans.AssociationPropertiesPrefix+".tags"]
		if !ok {
			continue
		}
		list, ok := raw.([]interface{})
		if !ok {
			continue
		}
		for _, item := range list {
			name, ok := item.(string)
			if !ok {
				continue
			}
			tags = append(tags, ch.CHTag{
				ID:        uuid.New(),
				ProjectID: projectID,
				SpanID:    span.SpanID,
				Name:      name,
				Source:    "client",
				CreatedAt: span.StartTime.UnixNano(),
			})
		}
	}
	return tags
}

// bumpUsage increments the workspace usage counter by the batch's size bytes
// and refreshes the cached limit state write-through.
func (p *Processor) bumpUsage(ctx context.Context, projectID uuid.UUID, batch []*spans.Span) {
	var totalBytes int64
	for _, span := range batch {
		totalBytes += span.SizeBytes
	}
	if totalBytes == 0 {
		return
	}

	workspaceID, err := GetWorkspaceIDForProjectID(ctx, p.DB, p.Cache, projectID)
	if err != nil {
		p.Logger.WithError(err).WithField("project_id", projectID).
			Error("failed to resolve workspace for usage accounting")
		return
	}

	counterKey := fmt.Sprintf("%s:%s", cache.WorkspaceBytesUsageCacheKey, workspaceID)
	if _, err := p.Cache.Increment(ctx, counterKey, totalBytes); err != nil {
		p.Logger.WithError(err).Error("failed to increment workspace usage counter")
	}

	if err := db.AddWorkspaceBytesIngested(ctx, p.DB, workspaceID, totalBytes); err != nil {
		p.Logger.WithError(err).Error("failed to persist workspace usage")
	}

	if _, err := UpdateWorkspaceLimitExceeded(ctx, p.DB, p.Cache, projectID); err != nil {
		p.Logger.WithError(err).Error("failed to refresh workspace limit cache")
	}
}

// enqueueForIndexing publishes inserted span ids to the indexer queue.
// Best-effort: the indexer catches up from columnar storage if this drops.
func (p *Processor) enqueueForIndexing(ctx context.Context, projectID uuid.UUID, batch []*spans.Span) {
	ids := make([]uuid.UUID, 0, len(batch))
	for _, span := range batch {
		ids = append(ids, span.SpanID)
	}
	payload, err := json.Marshal(map[string]interface{}{
		"projectId": projectID,
		"spanIds":   ids,
	})
	if err != nil {
		return
	}
	if err := p.Queue.Publish(ctx, payload, SpansIndexerExchange, SpansIndexerRoutingKey); err != nil {
		p.Logger.WithError(err).Debug("failed to enqueue spans for indexing")
	}
}
