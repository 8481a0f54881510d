package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tracefold/app-server/browsersessions"
)

// handleBrowserSessionOptions answers the CORS preflight for browser SDKs.
func (s *Server) handleBrowserSessionOptions(c echo.Context) error {
	header := c.Response().Header()
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Content-Encoding, Accept")
	header.Set("Access-Control-Max-Age", "86400")
	return c.NoContent(http.StatusOK)
}

// handleBrowserSessionEvents queues one message per admitted event batch.
func (s *Server) handleBrowserSessionEvents(c echo.Context) error {
	var batch browsersessions.EventBatch
	if err := c.Bind(&batch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event batch")
	}

	key := projectAPIKey(c)
	if err := browsersessions.PublishEventBatch(c.Request().Context(), s.Queue, key.ProjectID, batch); err != nil {
		s.Logger.WithError(err).Error("failed to enqueue browser session events")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to enqueue events")
	}

	return c.NoContent(http.StatusOK)
}
