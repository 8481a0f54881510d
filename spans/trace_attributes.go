package spans

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// TraceType classifies a trace.
type TraceType string

const (
	TraceTypeDefault    TraceType = "DEFAULT"
	TraceTypeEvaluation TraceType = "EVALUATION"
)

// TraceAttributes is the per-trace aggregate derived while folding a batch of
// spans. Token counts and costs are additive and saturating, so folding is
// commutative and associative regardless of span order within the batch.
type TraceAttributes struct {
	ID                uuid.UUID         `json:"id"`
	StartTime         *time.Time        `json:"startTime,omitempty"`
	EndTime           *time.Time        `json:"endTime,omitempty"`
	InputTokenCount   int64             `json:"inputTokenCount"`
	OutputTokenCount  int64             `json:"outputTokenCount"`
	TotalTokenCount   int64             `json:"totalTokenCount"`
	InputCost         float64           `json:"inputCost"`
	OutputCost        float64           `json:"outputCost"`
	TotalCost         float64           `json:"totalCost"`
	SessionID         *string           `json:"sessionId,omitempty"`
	UserID            *string           `json:"userId,omitempty"`
	TraceType         *TraceType        `json:"traceType,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	HasBrowserSession *bool             `json:"hasBrowserSession,omitempty"`
	TopSpanID         *uuid.UUID        `json:"topSpanId,omitempty"`
	TopSpanName       *string           `json:"topSpanName,omitempty"`
	TopSpanType       *SpanType         `json:"topSpanType,omitempty"`
	Status            *string           `json:"status,omitempty"`
}

// NewTraceAttributes creates an empty aggregate for a trace.
func NewTraceAttributes(traceID uuid.UUID) *TraceAttributes {
	return &TraceAttributes{ID: traceID}
}

// UpdateStartTime keeps the earliest start across all folded spans.
func (t *TraceAttributes) UpdateStartTime(startTime time.Time) {
	if t.StartTime == nil || t.StartTime.After(startTime) {
		t.StartTime = &startTime
	}
}

// UpdateEndTime keeps the latest end across all folded spans.
func (t *TraceAttributes) UpdateEndTime(endTime time.Time) {
	if t.EndTime == nil || t.EndTime.Before(endTime) {
		t.EndTime = &endTime
	}
}

// AddInputTokens adds to the input token count, saturating on overflow.
func (t *TraceAttributes) AddInputTokens(tokens int64) {
	t.InputTokenCount = saturatingAdd(t.InputTokenCount, tokens)
}

// AddOutputTokens adds to the output token count, saturating on overflow.
func (t *TraceAttributes) AddOutputTokens(tokens int64) {
	t.OutputTokenCount = saturatingAdd(t.OutputTokenCount, tokens)
}

// AddTotalTokens adds to the total token count, saturating on overflow.
func (t *TraceAttributes) AddTotalTokens(tokens int64) {
	t.TotalTokenCount = saturatingAdd(t.TotalTokenCount, tokens)
}

// AddInputCost adds to the cumulative input cost.
func (t *TraceAttributes) AddInputCost(cost float64) {
	t.InputCost += cost
}

// AddOutputCost adds to the cumulative output cost.
func (t *TraceAttributes) AddOutputCost(cost float64) {
	t.OutputCost += cost
}

// AddTotalCost adds to the cumulative total cost.
func (t *TraceAttributes) AddTotalCost(cost float64) {
	t.TotalCost += cost
}

// UpdateSessionID overwrites the session id when set.
func (t *TraceAttributes) UpdateSessionID(sessionID *string) {
	if sessionID != nil {
		t.SessionID = sessionID
	}
}

// UpdateUserID overwrites the user id when set.
func (t *TraceAttributes) UpdateUserID(userID *string) {
	if userID != nil {
		t.UserID = userID
	}
}

// UpdateTraceType overwrites the trace type when set.
func (t *TraceAttributes) UpdateTraceType(traceType *TraceType) {
	if traceType != nil {
		t.TraceType = traceType
	}
}

// MergeMetadata merges span metadata last-writer-wins.
func (t *TraceAttributes) MergeMetadata(metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	if t.Metadata == nil {
		t.Metadata = make(map[string]string, len(metadata))
	}
	for k, v := range metadata {
		t.Metadata[k] = v
	}
}

// SetHasBrowserSession marks the trace as having a browser session.
func (t *TraceAttributes) SetHasBrowserSession(has bool) {
	t.HasBrowserSession = &has
}

// SetTopSpan records the parentless span of the trace.
func (t *TraceAttributes) SetTopSpan(span *Span) {
	spanID := span.SpanID
	name := span.Name
	spanType := span.SpanType
	t.TopSpanID = &spanID
	t.TopSpanName = &name
	t.TopSpanType = &spanType
}

// Fold folds one span into the aggregate. Pricing fields must already be
// attached to the span.
func (t *TraceAttributes) Fold(span *Span) {
	t.UpdateStartTime(span.StartTime)
	t.UpdateEndTime(span.EndTime)
	t.AddInputTokens(span.InputTokens)
	t.AddOutputTokens(span.OutputTokens)
	t.AddTotalTokens(span.TotalTokens)
	t.AddInputCost(span.InputCost)
	t.AddOutputCost(span.OutputCost)
	t.AddTotalCost(span.TotalCost)
	t.UpdateSessionID(span.Attributes.SessionID())
	t.UpdateUserID(span.Attributes.UserID())
	t.UpdateTraceType(span.Attributes.TraceType())
	t.MergeMetadata(span.Attributes.Metadata())
	if span.SpanType == SpanTypeEvaluation {
		evaluation := TraceTypeEvaluation
		t.UpdateTraceType(&evaluation)
	}
	if span.IsTopSpan() {
		t.SetTopSpan(span)
	}
	if span.Status != nil {
		t.Status = span.Status
	}
}

func saturatingAdd(a, b int64) int64 {
	sum := a + b
	if b > 0 && sum < a {
		return math.MaxInt64
	}
	if b < 0 && sum > a {
		return math.MinInt64
	}
	return sum
}
