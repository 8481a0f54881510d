package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/protobuf/proto"

	"github.com/tracefold/app-server/logs"
)

// handleLogs admits an OTLP logs export.
func (s *Server) handleLogs(c echo.Context) error {
	if err := s.checkUsageLimit(c); err != nil {
		return err
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	var request collogspb.ExportLogsServiceRequest
	if err := proto.Unmarshal(body, &request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to decode ExportLogsServiceRequest")
	}

	key := projectAPIKey(c)
	if err := logs.PushLogsToQueue(c.Request().Context(), &request, key.ProjectID, s.Queue, s.Logger); err != nil {
		s.Logger.WithError(err).Error("failed to enqueue logs export")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to enqueue logs")
	}

	response, err := proto.Marshal(&collogspb.ExportLogsServiceResponse{})
	if err != nil {
		return err
	}

	setKeepAlive(c)
	return c.Blob(http.StatusOK, "application/x-protobuf", response)
}
