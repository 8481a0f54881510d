package traces

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tracefold/app-server/cache"
	"github.com/tracefold/app-server/db"
	"github.com/tracefold/app-server/mq"
	"github.com/tracefold/app-server/spans"
)

// triggerCacheTTL bounds how stale the per-project trigger list can get.
const triggerCacheTTL = 2 * time.Minute

// SignalJobMessage schedules downstream analysis for one span that matched
// a trigger rule.
type SignalJobMessage struct {
	ProjectID  uuid.UUID `json:"projectId"`
	SpanID     uuid.UUID `json:"spanId"`
	TraceID    uuid.UUID `json:"traceId"`
	SignalName string    `json:"signalName"`
	Prompt     string    `json:"prompt"`
}

// getSummaryTriggerSpans fetches a project's trigger rules through the cache
// under summary_trigger_spans:{project_id}.
func getSummaryTriggerSpans(ctx context.Context, d *db.DB, c cache.Cache, projectID uuid.UUID) ([]db.SummaryTriggerSpan, error) {
	cacheKey := fmt.Sprintf("%s:%s", cache.SummaryTriggerSpansCacheKey, projectID)

	var cached []db.SummaryTriggerSpan
	if found, err := c.Get(ctx, cacheKey, &cached); err == nil && found {
		return cached, nil
	}

	triggers, err := db.GetSummaryTriggerSpans(ctx, d, projectID)
	if err != nil {
		return nil, err
	}

	_ = c.InsertWithTTL(ctx, cacheKey, triggers, triggerCacheTTL)
	return triggers, nil
}

// matchTriggers pairs batch spans with the project's trigger rules and
// enqueues one analysis message per match.
func matchTriggers(
	ctx context.Context,
	d *db.DB,
	c cache.Cache,
	queue mq.MessageQueue,
	projectID uuid.UUID,
	batch []*spans.Span,
) error {
	triggers, err := getSummaryTriggerSpans(ctx, d, c, projectID)
	if err != nil {
		return err
	}
	if len(triggers) == 0 {
		return nil
	}

	byName := make(map[string][]db.SummaryTriggerSpan)
	for _, trigger := range triggers {
		byName[trigger.SpanName] = append(byName[trigger.SpanName], trigger)
	}

	for _, span := range batch {
		for _, trigger := range byName[span.Name] {
			message := SignalJobMessage{
				ProjectID:  projectID,
				SpanID:     span.SpanID,
				TraceID:    span.TraceID,
				SignalName: trigger.SignalName,
				Prompt:     trigger.Prompt,
			}
			payload, err := json.Marshal(message)
			if err != nil {
				return err
			}
			if err := queue.Publish(ctx, payload, SignalJobPendingExchange, SignalJobPendingRoutingKey); err != nil {
				return err
			}
		}
	}
	return nil
}
