package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tracefold/app-server/pubsub"
)

// handleRealtime serves the SSE stream of a project's realtime updates. When
// a re-stream base URL is configured, the endpoint proxies the remote
// realtime service byte-for-byte instead, supporting split producer/consumer
// deployments.
func (s *Server) handleRealtime(c echo.Context) error {
	projectID, err := uuid.Parse(c.Param("project_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid project id")
	}

	key := projectAPIKey(c)
	if key.ProjectID != projectID {
		return echo.NewHTTPError(http.StatusUnauthorized, "project mismatch")
	}

	if s.Config.RestreamBaseURL != "" {
		return s.restreamRealtime(c, projectID)
	}

	return s.streamLocal(c, projectID)
}

// streamLocal tails the local pub/sub on sse:{project_id}:* and writes each
// message verbatim in SSE wire format.
func (s *Server) streamLocal(c echo.Context, projectID uuid.UUID) error {
	response := c.Response()
	response.Header().Set(echo.HeaderContentType, "text/event-stream")
	response.Header().Set("Cache-Control", "no-cache")
	response.Header().Set("Connection", "keep-alive")
	response.WriteHeader(http.StatusOK)
	response.Flush()

	ctx := c.Request().Context()
	return s.PubSub.Subscribe(ctx, pubsub.ProjectPattern(projectID), func(_, message string) {
		var sse struct {
			EventType string          `json:"event_type"`
			Data      json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal([]byte(message), &sse); err != nil {
			s.Logger.WithError(err).Warn("dropping malformed realtime message")
			return
		}
		fmt.Fprintf(response, "event: %s\ndata: %s\n\n", sse.EventType, sse.Data)
		response.Flush()
	})
}

// restreamRealtime forwards the remote realtime service's byte stream.
func (s *Server) restreamRealtime(c echo.Context, projectID uuid.UUID) error {
	url := fmt.Sprintf("%s/projects/%s/realtime", s.Config.RestreamBaseURL, projectID)

	req, err := http.NewRequestWithContext(c.Request().Context(), http.MethodGet, url, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to build restream request")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError,
			fmt.Sprintf("failed to connect to realtime service: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return echo.NewHTTPError(http.StatusInternalServerError,
			fmt.Sprintf("failed to connect to realtime service: %d", resp.StatusCode))
	}

	response := c.Response()
	response.Header().Set(echo.HeaderContentType, "text/event-stream")
	response.Header().Set("Cache-Control", "no-cache")
	response.Header().Set("Connection", "keep-alive")
	response.WriteHeader(http.StatusOK)

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := response.Write(buf[:n]); writeErr != nil {
				return nil
			}
			response.Flush()
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return nil
		}
	}
}
