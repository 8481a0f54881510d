package spans

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Well-known span attribute keys. See:
//   - https://github.com/open-telemetry/semantic-conventions/blob/main/docs/gen-ai/gen-ai-spans.md
//
// The prompt/completion token keys are not in the OpenTelemetry spec but are
// still emitted by older auto-instrumentation libraries, so both spellings
// are accepted.
const (
	GenAIInputTokens      = "gen_ai.usage.input_tokens"
	GenAIOutputTokens     = "gen_ai.usage.output_tokens"
	GenAIPromptTokens     = "gen_ai.usage.prompt_tokens"
	GenAICompletionTokens = "gen_ai.usage.completion_tokens"
	GenAITotalTokens      = "llm.usage.total_tokens"

	GenAIRequestModel  = "gen_ai.request.model"
	GenAIResponseModel = "gen_ai.response.model"
	GenAISystem        = "gen_ai.system"

	GenAITotalCost  = "gen_ai.usage.cost"
	GenAIInputCost  = "gen_ai.usage.input_cost"
	GenAIOutputCost = "gen_ai.usage.output_cost"

	GenAICacheWriteInputTokens = "gen_ai.usage.cache_creation_input_tokens"
	GenAICacheReadInputTokens  = "gen_ai.usage.cache_read_input_tokens"

	AssociationPropertiesPrefix = "lmnr.association.properties"
	SpanTypeAttribute           = "lmnr.span.type"
	SpanPathAttribute           = "lmnr.span.path"
	SpanIgnoreAttribute         = "lmnr.span.ignore"
)

// SpanAttributes wraps a span's raw attribute map and promotes well-known
// keys to typed accessors.
type SpanAttributes map[string]interface{}

// NewSpanAttributes copies the given map, treating nil as empty.
func NewSpanAttributes(raw map[string]interface{}) SpanAttributes {
	if raw == nil {
		return SpanAttributes{}
	}
	attrs := make(SpanAttributes, len(raw))
	for k, v := range raw {
		attrs[k] = v
	}
	return attrs
}

// InputTokens returns the input token count, accepting the legacy
// prompt_tokens spelling.
func (a SpanAttributes) InputTokens() int64 {
	if v, ok := a.int64Value(GenAIInputTokens); ok {
		return v
	}
	v, _ := a.int64Value(GenAIPromptTokens)
	return v
}

// OutputTokens returns the output token count, accepting the legacy
// completion_tokens spelling.
func (a SpanAttributes) OutputTokens() int64 {
	if v, ok := a.int64Value(GenAIOutputTokens); ok {
		return v
	}
	v, _ := a.int64Value(GenAICompletionTokens)
	return v
}

// TotalTokens returns the reported total, falling back to input + output.
func (a SpanAttributes) TotalTokens() int64 {
	if v, ok := a.int64Value(GenAITotalTokens); ok {
		return v
	}
	return a.InputTokens() + a.OutputTokens()
}

// CacheReadTokens returns the cached-prompt read token count.
func (a SpanAttributes) CacheReadTokens() int64 {
	v, _ := a.int64Value(GenAICacheReadInputTokens)
	return v
}

// CacheWriteTokens returns the cache creation token count.
func (a SpanAttributes) CacheWriteTokens() int64 {
	v, _ := a.int64Value(GenAICacheWriteInputTokens)
	return v
}

// RequestModel returns the requested model name, if present.
func (a SpanAttributes) RequestModel() string {
	return a.stringValue(GenAIRequestModel)
}

// ResponseModel returns the responding model name, if present.
func (a SpanAttributes) ResponseModel() string {
	return a.stringValue(GenAIResponseModel)
}

// Provider returns the gen_ai.system value, if present.
func (a SpanAttributes) Provider() string {
	return a.stringValue(GenAISystem)
}

// Path returns the lmnr.span.path value, if present.
func (a SpanAttributes) Path() string {
	return a.stringValue(SpanPathAttribute)
}

// SpanType returns the span type promoted from lmnr.span.type, defaulting
// to Default.
func (a SpanAttributes) SpanType() SpanType {
	raw := a.stringValue(SpanTypeAttribute)
	if raw == "" {
		return SpanTypeDefault
	}
	return SpanTypeFromString(raw)
}

// ShouldIgnore reports whether the span was flagged non-persistable.
func (a SpanAttributes) ShouldIgnore() bool {
	switch v := a[SpanIgnoreAttribute].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// SessionID returns the association property session_id, if present.
func (a SpanAttributes) SessionID() *string {
	if v := a.stringValue(AssociationPropertiesPrefix + ".session_id"); v != "" {
		return &v
	}
	return nil
}

// UserID returns the association property user_id, if present.
func (a SpanAttributes) UserID() *string {
	if v := a.stringValue(AssociationPropertiesPrefix + ".user_id"); v != "" {
		return &v
	}
	return nil
}

// TraceType returns the association property trace_type, if present.
func (a SpanAttributes) TraceType() *TraceType {
	if v := a.stringValue(AssociationPropertiesPrefix + ".trace_type"); v != "" {
		traceType := TraceType(strings.ToUpper(v))
		return &traceType
	}
	return nil
}

// Metadata collects association properties under the metadata. prefix into a
// flat string map.
func (a SpanAttributes) Metadata() map[string]string {
	prefix := AssociationPropertiesPrefix + ".metadata."
	var metadata map[string]string
	for key, value := range a {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if metadata == nil {
			metadata = make(map[string]string)
		}
		metadata[strings.TrimPrefix(key, prefix)] = stringify(value)
	}
	return metadata
}

// ReportedCosts returns any client-reported costs (input, output, total).
// Zero values mean unreported.
func (a SpanAttributes) ReportedCosts() (input, output, total float64) {
	input, _ = a.float64Value(GenAIInputCost)
	output, _ = a.float64Value(GenAIOutputCost)
	total, _ = a.float64Value(GenAITotalCost)
	return input, output, total
}

func (a SpanAttributes) stringValue(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

func (a SpanAttributes) int64Value(key string) (int64, bool) {
	switch v := a[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func (a SpanAttributes) float64Value(key string) (float64, bool) {
	switch v := a[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case uuid.UUID:
		return v.String()
	default:
		return ""
	}
}
