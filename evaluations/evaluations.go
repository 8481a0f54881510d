// Package evaluations implements the evaluation API semantics: creating
// evaluations, upserting datapoints, and mirroring datapoint updates into
// columnar storage.
package evaluations

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tracefold/app-server/ch"
	"github.com/tracefold/app-server/db"
)

// Service coordinates the relational upsert and the columnar mirror.
type Service struct {
	DB     *db.DB
	CH     *ch.Service
	Logger *logrus.Logger
}

// CreateEvaluationParams are the optional fields of a new evaluation.
type CreateEvaluationParams struct {
	Name      string
	GroupName string
	Metadata  map[string]interface{}
}

// CreateEvaluation inserts a new evaluation, defaulting the group name.
func (s *Service) CreateEvaluation(ctx context.Context, projectID uuid.UUID, params CreateEvaluationParams) (*db.Evaluation, error) {
	groupName := params.GroupName
	if groupName == "" {
		groupName = "default"
	}
	evaluation := &db.Evaluation{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      params.Name,
		GroupName: groupName,
		Metadata:  params.Metadata,
	}
	if err := db.CreateEvaluation(ctx, s.DB, evaluation); err != nil {
		return nil, err
	}
	return evaluation, nil
}

// DatapointParams is one incoming datapoint of a save request.
type DatapointParams struct {
	ID             *uuid.UUID             `json:"id,omitempty"`
	Data           map[string]interface{} `json:"data"`
	Target         map[string]interface{} `json:"target,omitempty"`
	ExecutorOutput map[string]interface{} `json:"executorOutput,omitempty"`
	TraceID        *uuid.UUID             `json:"traceId,omitempty"`
	Index          *int64                 `json:"index,omitempty"`
	Scores         map[string]float64     `json:"scores,omitempty"`
}

// SaveDatapoints upserts datapoints into an evaluation and mirrors them to
// the columnar table. The evaluation must belong to the project.
func (s *Service) SaveDatapoints(ctx context.Context, projectID, evaluationID uuid.UUID, points []DatapointParams) error {
	if _, err := db.GetEvaluation(ctx, s.DB, projectID, evaluationID); err != nil {
		return err
	}

	rows := make([]db.EvaluationDatapoint, 0, len(points))
	for i, point := range points {
		id := uuid.New()
		if point.ID != nil {
			id = *point.ID
		}
		index := int64(i)
		if point.Index != nil {
			index = *point.Index
		}
		rows = append(rows, db.EvaluationDatapoint{
			ID:             id,
			EvaluationID:   evaluationID,
			ProjectID:      projectID,
			Index:          index,
			Data:           point.Data,
			Target:         point.Target,
			ExecutorOutput: point.ExecutorOutput,
			TraceID:        point.TraceID,
			Scores:         point.Scores,
		})
	}

	if err := db.UpsertEvaluationDatapoints(ctx, s.DB, rows); err != nil {
		return err
	}

	s.mirrorDatapoints(ctx, projectID, rows)
	return nil
}

// UpdateDatapoint sets a datapoint's executor output and scores, then
// refreshes the columnar mirror.
func (s *Service) UpdateDatapoint(ctx context.Context, projectID, evaluationID, datapointID uuid.UUID, executorOutput map[string]interface{}, scores map[string]float64) error {
	if err := db.UpdateEvaluationDatapoint(ctx, s.DB, projectID, evaluationID, datapointID, executorOutput, scores); err != nil {
		return err
	}

	s.mirrorDatapoints(ctx, projectID, []db.EvaluationDatapoint{{
		ID:             datapointID,
		EvaluationID:   evaluationID,
		ProjectID:      projectID,
		ExecutorOutput: executorOutput,
		Scores:         scores,
	}})
	return nil
}

// mirrorDatapoints best-effort copies datapoints into columnar storage. The
// relational store remains the source of truth.
func (s *Service) mirrorDatapoints(ctx context.Context, projectID uuid.UUID, points []db.EvaluationDatapoint) {
	rows := make([]ch.CHEvaluationDatapoint, 0, len(points))
	for i := range points {
		rows = append(rows, ch.CHDatapointFromDB(&points[i]))
	}
	if err := ch.InsertBatch(ctx, s.CH, projectID, rows); err != nil {
		s.Logger.WithError(err).WithField("project_id", projectID).
			Error("failed to mirror datapoints to columnar storage")
	}
}
