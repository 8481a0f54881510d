package ch

import (
	"github.com/google/uuid"
)

// CHEvaluatorScore is a row of the evaluator_scores table.
type CHEvaluatorScore struct {
	ID        uuid.UUID `ch:"id" json:"id"`
	ProjectID uuid.UUID `ch:"project_id" json:"project_id"`
	SpanID    uuid.UUID `ch:"span_id" json:"span_id"`
	Name      string    `ch:"name" json:"name"`
	Score     float64   `ch:"score" json:"score"`
	Source    string    `ch:"source" json:"source"`
	CreatedAt int64     `ch:"created_at" json:"created_at"`
}

// Table implements Insertable.
func (CHEvaluatorScore) Table() Table { return TableEvaluatorScores }

// AsyncInsert implements Insertable.
func (CHEvaluatorScore) AsyncInsert() bool { return false }
