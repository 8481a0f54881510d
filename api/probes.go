package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type probeResponse struct {
	Status  string         `json:"status"`
	Workers map[string]int `json:"workers,omitempty"`
}

// handleHealth reports liveness: the process is up and workers match their
// expected counts.
func (s *Server) handleHealth(c echo.Context) error {
	workers := make(map[string]int)
	for workerType, count := range s.Tracker.WorkerCounts() {
		workers[string(workerType)] = count
	}

	if !s.Tracker.IsHealthy(s.Expected) {
		return c.JSON(http.StatusServiceUnavailable, probeResponse{Status: "unhealthy", Workers: workers})
	}
	return c.JSON(http.StatusOK, probeResponse{Status: "ok", Workers: workers})
}

// handleReady reports readiness: worker counts plus broker connectivity. A
// disconnected external queue flips readiness regardless of counts.
func (s *Server) handleReady(c echo.Context) error {
	if s.QueueConnected != nil && !s.QueueConnected() {
		return c.JSON(http.StatusServiceUnavailable, probeResponse{Status: "unhealthy"})
	}
	return s.handleHealth(c)
}
