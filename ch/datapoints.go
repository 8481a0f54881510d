package ch

import (
	"github.com/google/uuid"

	"github.com/tracefold/app-server/db"
)

// CHEvaluationDatapoint is a row of the evaluation_datapoints table,
// mirroring the relational datapoint for analytical queries.
type CHEvaluationDatapoint struct {
	ID             uuid.UUID `ch:"id" json:"id"`
	EvaluationID   uuid.UUID `ch:"evaluation_id" json:"evaluation_id"`
	ProjectID      uuid.UUID `ch:"project_id" json:"project_id"`
	Index          int64     `ch:"index" json:"index"`
	Data           string    `ch:"data" json:"data"`
	Target         string    `ch:"target" json:"target"`
	ExecutorOutput string    `ch:"executor_output" json:"executor_output"`
	TraceID        uuid.UUID `ch:"trace_id" json:"trace_id"`
	Scores         string    `ch:"scores" json:"scores"`
}

// Table implements Insertable.
func (CHEvaluationDatapoint) Table() Table { return TableEvaluationDatapoints }

// AsyncInsert implements Insertable.
func (CHEvaluationDatapoint) AsyncInsert() bool { return false }

// CHDatapointFromDB converts a relational datapoint into its columnar mirror.
func CHDatapointFromDB(point *db.EvaluationDatapoint) CHEvaluationDatapoint {
	row := CHEvaluationDatapoint{
		ID:             point.ID,
		EvaluationID:   point.EvaluationID,
		ProjectID:      point.ProjectID,
		Index:          point.Index,
		Data:           jsonString(map[string]interface{}(point.Data)),
		Target:         jsonString(map[string]interface{}(point.Target)),
		ExecutorOutput: jsonString(map[string]interface{}(point.ExecutorOutput)),
		Scores:         jsonString(map[string]float64(point.Scores)),
	}
	if point.TraceID != nil {
		row.TraceID = *point.TraceID
	}
	return row
}
