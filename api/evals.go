package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tracefold/app-server/db"
	"github.com/tracefold/app-server/evaluations"
)

type createEvalRequest struct {
	Name      string                 `json:"name,omitempty"`
	GroupName string                 `json:"groupName,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// handleCreateEval creates a new evaluation.
func (s *Server) handleCreateEval(c echo.Context) error {
	var request createEvalRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid evaluation request")
	}

	key := projectAPIKey(c)
	evaluation, err := s.Evaluations.CreateEvaluation(c.Request().Context(), key.ProjectID, evaluations.CreateEvaluationParams{
		Name:      request.Name,
		GroupName: request.GroupName,
		Metadata:  request.Metadata,
	})
	if err != nil {
		s.Logger.WithError(err).Error("failed to create evaluation")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create evaluation")
	}

	return c.JSON(http.StatusOK, evaluation)
}

type saveDatapointsRequest struct {
	GroupName string                        `json:"groupName,omitempty"`
	Points    []evaluations.DatapointParams `json:"points"`
}

// handleSaveDatapoints upserts datapoints into an evaluation.
func (s *Server) handleSaveDatapoints(c echo.Context) error {
	evalID, err := uuid.Parse(c.Param("eval_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid evaluation id")
	}

	var request saveDatapointsRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid datapoints request")
	}

	key := projectAPIKey(c)
	err = s.Evaluations.SaveDatapoints(c.Request().Context(), key.ProjectID, evalID, request.Points)
	if errors.Is(err, db.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "evaluation not found")
	}
	if err != nil {
		s.Logger.WithError(err).Error("failed to save datapoints")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save datapoints")
	}

	return c.JSON(http.StatusOK, evalID)
}

type updateDatapointRequest struct {
	ExecutorOutput map[string]interface{} `json:"executorOutput,omitempty"`
	Scores         map[string]float64     `json:"scores"`
}

// handleUpdateDatapoint sets one datapoint's executor output and scores.
func (s *Server) handleUpdateDatapoint(c echo.Context) error {
	evalID, err := uuid.Parse(c.Param("eval_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid evaluation id")
	}
	datapointID, err := uuid.Parse(c.Param("datapoint_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid datapoint id")
	}

	var request updateDatapointRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid datapoint update")
	}

	key := projectAPIKey(c)
	err = s.Evaluations.UpdateDatapoint(c.Request().Context(), key.ProjectID, evalID, datapointID, request.ExecutorOutput, request.Scores)
	if errors.Is(err, db.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "datapoint not found")
	}
	if err != nil {
		s.Logger.WithError(err).Error("failed to update datapoint")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update datapoint")
	}

	return c.JSON(http.StatusOK, datapointID)
}
