package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type sqlQueryRequest struct {
	Query string `json:"query"`
}

// handleSQLQuery forwards an analytical query to the query engine backend
// with the caller's project id. Responds 405 when no engine is configured.
func (s *Server) handleSQLQuery(c echo.Context) error {
	if s.QueryEngine == nil {
		return echo.NewHTTPError(http.StatusMethodNotAllowed, "query engine is not configured")
	}

	var request sqlQueryRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query request")
	}

	key := projectAPIKey(c)
	result, err := s.QueryEngine.Query(c.Request().Context(), key.ProjectID, request.Query)
	if err != nil {
		s.Logger.WithError(err).Error("query engine request failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
	}

	return c.JSONBlob(http.StatusOK, result)
}
