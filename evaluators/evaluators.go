// Package evaluators contains the evaluator-score pipeline: score messages
// produced by the analysis layer are written to both the relational store
// and the columnar evaluator_scores table.
package evaluators

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tracefold/app-server/ch"
	"github.com/tracefold/app-server/db"
	"github.com/tracefold/app-server/mq"
	"github.com/tracefold/app-server/worker"
)

// Queue wire names for the evaluator pipeline.
const (
	EvaluatorsQueue      = "evaluators_queue"
	EvaluatorsExchange   = "evaluators_exchange"
	EvaluatorsRoutingKey = "evaluators_routing_key"
)

// ScoreMessage is one computed evaluator score for one span.
type ScoreMessage struct {
	ProjectID uuid.UUID `json:"projectId"`
	SpanID    uuid.UUID `json:"spanId"`
	Name      string    `json:"name"`
	Score     float64   `json:"score"`
	Source    string    `json:"source"`
}

// PublishScores queues computed scores for persistence.
func PublishScores(ctx context.Context, queue mq.MessageQueue, scores []ScoreMessage) error {
	if len(scores) == 0 {
		return nil
	}
	payload, err := json.Marshal(scores)
	if err != nil {
		return err
	}
	return queue.Publish(ctx, payload, EvaluatorsExchange, EvaluatorsRoutingKey)
}

// ScoreHandler is the evaluator consumer: one transform-then-insert step
// writing scores to Postgres and ClickHouse.
type ScoreHandler struct {
	DB     *db.DB
	CH     *ch.Service
	Logger *logrus.Logger
}

// Interval implements worker.BatchHandler.
func (h *ScoreHandler) Interval() time.Duration {
	return time.Minute
}

// InitialState implements worker.BatchHandler.
func (h *ScoreHandler) InitialState() struct{} {
	return struct{}{}
}

// HandleMessage implements worker.BatchHandler.
func (h *ScoreHandler) HandleMessage(ctx context.Context, delivery worker.Delivery[[]ScoreMessage], _ *struct{}) worker.HandlerResult[[]ScoreMessage] {
	messages := delivery.Message
	if len(messages) == 0 {
		return worker.AckResult([]worker.Delivery[[]ScoreMessage]{delivery})
	}

	now := time.Now().UTC()
	byProject := make(map[uuid.UUID][]ch.CHEvaluatorScore)
	dbScores := make([]db.EvaluatorScore, 0, len(messages))
	for _, message := range messages {
		id := uuid.New()
		dbScores = append(dbScores, db.EvaluatorScore{
			ID:        id,
			ProjectID: message.ProjectID,
			SpanID:    message.SpanID,
			Name:      message.Name,
			Score:     message.Score,
			Source:    message.Source,
		})
		byProject[message.ProjectID] = append(byProject[message.ProjectID], ch.CHEvaluatorScore{
			ID:        id,
			ProjectID: message.ProjectID,
			SpanID:    message.SpanID,
			Name:      message.Name,
			Score:     message.Score,
			Source:    message.Source,
			CreatedAt: now.UnixNano(),
		})
	}

	if err := db.CreateEvaluatorScores(ctx, h.DB, dbScores); err != nil {
		h.Logger.WithError(err).Warn("evaluator score write failed, requeueing")
		return worker.RequeueResult([]worker.Delivery[[]ScoreMessage]{delivery})
	}

	for projectID, rows := range byProject {
		if err := ch.InsertBatch(ctx, h.CH, projectID, rows); err != nil {
			h.Logger.WithError(err).WithField("project_id", projectID).
				Warn("evaluator score insert failed, requeueing")
			return worker.RequeueResult([]worker.Delivery[[]ScoreMessage]{delivery})
		}
	}

	return worker.AckResult([]worker.Delivery[[]ScoreMessage]{delivery})
}

// HandleInterval implements worker.BatchHandler.
func (h *ScoreHandler) HandleInterval(context.Context, *struct{}) worker.HandlerResult[[]ScoreMessage] {
	return worker.EmptyResult[[]ScoreMessage]()
}
