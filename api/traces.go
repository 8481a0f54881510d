package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/proto"

	"github.com/tracefold/app-server/db"
	"github.com/tracefold/app-server/traces"
)

// handleTraces admits an OTLP trace export: authenticate (middleware),
// decode, check limits, enqueue. Responds with an empty protobuf export
// response on success.
func (s *Server) handleTraces(c echo.Context) error {
	if err := s.checkUsageLimit(c); err != nil {
		return err
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	var request coltracepb.ExportTraceServiceRequest
	if err := proto.Unmarshal(body, &request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to decode ExportTraceServiceRequest")
	}

	key := projectAPIKey(c)
	if err := traces.PushSpansToQueue(c.Request().Context(), &request, key.ProjectID, s.Queue, s.Logger); err != nil {
		s.Logger.WithError(err).Error("failed to enqueue trace export")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to enqueue spans")
	}

	// Fully accept; partial_success stays unset.
	response, err := proto.Marshal(&coltracepb.ExportTraceServiceResponse{})
	if err != nil {
		return err
	}

	setKeepAlive(c)
	return c.Blob(http.StatusOK, "application/x-protobuf", response)
}

// setKeepAlive echoes the client's keep-alive request on the response.
func setKeepAlive(c echo.Context) {
	connection := c.Request().Header.Get("Connection")
	if strings.EqualFold(strings.TrimSpace(connection), "keep-alive") {
		c.Response().Header().Set("Connection", "keep-alive")
	}
}

// limitsForProject reads the workspace limit state for the authenticated
// project.
func (s *Server) limitsForProject(c echo.Context, key *db.ProjectAPIKey) (*db.WorkspaceLimitsExceeded, error) {
	return traces.GetWorkspaceLimitExceeded(c.Request().Context(), s.DB, s.Cache, key.ProjectID)
}
