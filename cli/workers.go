package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tracefold/app-server/browsersessions"
	"github.com/tracefold/app-server/evaluators"
	"github.com/tracefold/app-server/logs"
	"github.com/tracefold/app-server/storage"
	"github.com/tracefold/app-server/traces"
	"github.com/tracefold/app-server/worker"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Run only the queue consumer fleet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		spawnWorkers(ctx, a)

		<-ctx.Done()
		a.logger.Info("shutting down workers")
		return nil
	},
}

// spawnWorkers starts every consumer family at its expected count.
func spawnWorkers(ctx context.Context, a *app) {
	processor := &traces.Processor{
		DB:            a.database,
		Cache:         a.cache,
		Queue:         a.queue,
		CH:            a.chSvc,
		PubSub:        a.pubsub,
		Logger:        a.logger,
		PayloadBucket: a.bucket,
	}

	worker.Spawn(ctx, worker.WorkerTypeSpans, a.expected.Spans,
		func() worker.BatchHandler[[]traces.SpanMessage, []worker.Delivery[[]traces.SpanMessage]] {
			return &traces.SpanHandler{
				Processor: processor,
				Logger:    a.logger,
				Config:    traces.DefaultBatchingConfig(),
			}
		},
		a.queue,
		worker.QueueConfig{
			QueueName:  traces.SpansQueue,
			Exchange:   traces.SpansExchange,
			RoutingKey: traces.SpansRoutingKey,
		},
		a.tracker, a.logger)

	worker.Spawn(ctx, worker.WorkerTypeLogs, 1,
		func() worker.BatchHandler[[]logs.LogRecord, struct{}] {
			return &logs.LogHandler{DB: a.database, Cache: a.cache, CH: a.chSvc, Logger: a.logger}
		},
		a.queue,
		worker.QueueConfig{
			QueueName:  logs.LogsQueue,
			Exchange:   logs.LogsExchange,
			RoutingKey: logs.LogsRoutingKey,
		},
		a.tracker, a.logger)

	worker.Spawn(ctx, worker.WorkerTypeBrowserEvents, a.expected.BrowserEvents,
		func() worker.BatchHandler[browsersessions.QueueEventMessage, struct{}] {
			return &browsersessions.EventHandler{DB: a.database, Cache: a.cache, CH: a.chSvc, Logger: a.logger}
		},
		a.queue,
		worker.QueueConfig{
			QueueName:  browsersessions.BrowserSessionsQueue,
			Exchange:   browsersessions.BrowserSessionsExchange,
			RoutingKey: browsersessions.BrowserSessionsRoutingKey,
		},
		a.tracker, a.logger)

	worker.Spawn(ctx, worker.WorkerTypePayloads, a.expected.Payloads,
		func() worker.BatchHandler[storage.QueuePayloadMessage, struct{}] {
			return &storage.PayloadHandler{Service: a.storage, Logger: a.logger}
		},
		a.queue,
		worker.QueueConfig{
			QueueName:  storage.PayloadsQueue,
			Exchange:   storage.PayloadsExchange,
			RoutingKey: storage.PayloadsRoutingKey,
		},
		a.tracker, a.logger)

	worker.Spawn(ctx, worker.WorkerTypeEvaluators, a.expected.Evaluators,
		func() worker.BatchHandler[[]evaluators.ScoreMessage, struct{}] {
			return &evaluators.ScoreHandler{DB: a.database, CH: a.chSvc, Logger: a.logger}
		},
		a.queue,
		worker.QueueConfig{
			QueueName:  evaluators.EvaluatorsQueue,
			Exchange:   evaluators.EvaluatorsExchange,
			RoutingKey: evaluators.EvaluatorsRoutingKey,
		},
		a.tracker, a.logger)
}
