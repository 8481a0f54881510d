package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// handleGetPayload streams a stored payload back to the caller. The blob key
// is reconstructed from the authenticated project and the payload id.
func (s *Server) handleGetPayload(c echo.Context) error {
	payloadID := c.Param("id")
	if payloadID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing payload id")
	}

	key := projectAPIKey(c)
	blobKey := fmt.Sprintf("project/%s/%s", key.ProjectID, payloadID)
	if ext := c.QueryParam("payloadType"); ext != "" {
		blobKey += "." + ext
	}

	stream, err := s.Storage.GetStream(c.Request().Context(), key.ProjectID, s.PayloadBucket, blobKey)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "payload not found")
	}
	defer stream.Close()

	return c.Stream(http.StatusOK, "application/octet-stream", stream)
}
