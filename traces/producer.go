package traces

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"github.com/tracefold/app-server/mq"
	"github.com/tracefold/app-server/spans"
)

// SpanMessage is the queued unit of span work: one span with its events.
// A queue message carries a list of these.
type SpanMessage struct {
	Span   *spans.Span       `json:"span"`
	Events []spans.SpanEvent `json:"events,omitempty"`
}

// PushSpansToQueue converts an OTLP trace export into span messages and
// publishes them as a single payload. Spans flagged non-persistable are
// dropped. Payloads over the queue's max-payload cap are dropped with a
// warning; the SDK is expected to batch-split and retry.
func PushSpansToQueue(
	ctx context.Context,
	request *coltracepb.ExportTraceServiceRequest,
	projectID uuid.UUID,
	queue mq.MessageQueue,
	logger *logrus.Logger,
) error {
	var messages []SpanMessage
	for _, resourceSpans := range request.ResourceSpans {
		for _, scopeSpans := range resourceSpans.ScopeSpans {
			for _, otelSpan := range scopeSpans.Spans {
				span := spans.SpanFromOtelSpan(otelSpan, projectID)
				if !span.ShouldSave() {
					continue
				}
				messages = append(messages, SpanMessage{Span: span, Events: span.Events})
			}
		}
	}

	return PublishSpanMessages(ctx, messages, projectID, queue, logger)
}

// PublishSpanMessages publishes a batch of span messages, enforcing the
// queue's per-message payload cap.
func PublishSpanMessages(
	ctx context.Context,
	messages []SpanMessage,
	projectID uuid.UUID,
	queue mq.MessageQueue,
	logger *logrus.Logger,
) error {
	if len(messages) == 0 {
		return nil
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return err
	}

	if int64(len(payload)) >= mq.MaxPayload() {
		logger.WithFields(logrus.Fields{
			"project_id":   projectID,
			"payload_size": len(payload),
			"span_count":   len(messages),
		}).Warn("span payload exceeds queue limit, dropping")
		return nil
	}

	return queue.Publish(ctx, payload, SpansExchange, SpansRoutingKey)
}
