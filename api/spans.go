package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tracefold/app-server/ch"
	"github.com/tracefold/app-server/spans"
	"github.com/tracefold/app-server/traces"
)

// CreateSpanRequest is one span of a JSON span-upload request.
type CreateSpanRequest struct {
	Name         string                 `json:"name"`
	SpanType     *spans.SpanType        `json:"spanType,omitempty"`
	StartTime    time.Time              `json:"startTime"`
	EndTime      time.Time              `json:"endTime"`
	Input        interface{}            `json:"input,omitempty"`
	Output       interface{}            `json:"output,omitempty"`
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
	TraceID      *uuid.UUID             `json:"traceId,omitempty"`
	SpanID       *uuid.UUID             `json:"spanId,omitempty"`
	ParentSpanID *uuid.UUID             `json:"parentSpanId,omitempty"`
}

// CreateSpanResponse reports the ids assigned to one uploaded span.
type CreateSpanResponse struct {
	SpanID  uuid.UUID `json:"spanId"`
	TraceID uuid.UUID `json:"traceId"`
}

// handleCreateSpans admits a JSON list of spans, synthesizing missing ids.
func (s *Server) handleCreateSpans(c echo.Context) error {
	if err := s.checkUsageLimit(c); err != nil {
		return err
	}

	var requests []CreateSpanRequest
	if err := c.Bind(&requests); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid span list")
	}

	key := projectAPIKey(c)
	responses := make([]CreateSpanResponse, 0, len(requests))
	messages := make([]traces.SpanMessage, 0, len(requests))

	for _, request := range requests {
		spanID := uuid.New()
		if request.SpanID != nil {
			spanID = *request.SpanID
		}
		traceID := uuid.New()
		if request.TraceID != nil {
			traceID = *request.TraceID
		}

		spanType := spans.SpanTypeDefault
		if request.SpanType != nil {
			spanType = *request.SpanType
		}

		span := &spans.Span{
			SpanID:       spanID,
			TraceID:      traceID,
			ParentSpanID: request.ParentSpanID,
			ProjectID:    key.ProjectID,
			Name:         request.Name,
			SpanType:     spanType,
			StartTime:    request.StartTime,
			EndTime:      request.EndTime,
			Input:        request.Input,
			Output:       request.Output,
			Attributes:   spans.NewSpanAttributes(request.Attributes),
		}

		responses = append(responses, CreateSpanResponse{SpanID: spanID, TraceID: traceID})
		messages = append(messages, traces.SpanMessage{Span: span})
	}

	if err := traces.PublishSpanMessages(c.Request().Context(), messages, key.ProjectID, s.Queue, s.Logger); err != nil {
		s.Logger.WithError(err).Error("failed to publish spans to queue")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to enqueue spans")
	}

	return c.JSON(http.StatusOK, responses)
}

// handleGetSpan serves a project-scoped span read.
func (s *Server) handleGetSpan(c echo.Context) error {
	spanID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid span id")
	}

	key := projectAPIKey(c)
	span, err := s.CHReader.GetSpan(c.Request().Context(), key.ProjectID, spanID)
	if errors.Is(err, ch.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "span not found")
	}
	if err != nil {
		s.Logger.WithError(err).Error("failed to read span")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read span")
	}
	return c.JSON(http.StatusOK, span)
}

// handleGetTrace serves a project-scoped trace read.
func (s *Server) handleGetTrace(c echo.Context) error {
	traceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid trace id")
	}

	key := projectAPIKey(c)
	trace, err := s.CHReader.GetTrace(c.Request().Context(), key.ProjectID, traceID)
	if errors.Is(err, ch.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "trace not found")
	}
	if err != nil {
		s.Logger.WithError(err).Error("failed to read trace")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read trace")
	}
	return c.JSON(http.StatusOK, trace)
}
