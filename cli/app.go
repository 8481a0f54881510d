package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tracefold/app-server/cache"
	"github.com/tracefold/app-server/ch"
	"github.com/tracefold/app-server/config"
	"github.com/tracefold/app-server/dataplane"
	"github.com/tracefold/app-server/db"
	"github.com/tracefold/app-server/evaluations"
	"github.com/tracefold/app-server/mq"
	"github.com/tracefold/app-server/pubsub"
	"github.com/tracefold/app-server/queryengine"
	"github.com/tracefold/app-server/storage"
	"github.com/tracefold/app-server/worker"
)

// app bundles every shared collaborator the commands wire together.
type app struct {
	logger   *logrus.Logger
	database *db.DB
	cache    cache.Cache
	queue    mq.MessageQueue
	rabbit   *mq.RabbitMQ // nil on the in-process backend
	pubsub   pubsub.PubSub
	chDirect *ch.DirectClickhouse
	chSvc    *ch.Service
	storage  *storage.Service
	minter   *dataplane.TokenMinter
	query    queryengine.Client
	evals    *evaluations.Service
	tracker  *worker.Tracker
	expected worker.ExpectedWorkerCounts
	features config.FeatureConfig
	server   config.ServerConfig
	bucket   string

	flushSentry func()
}

// buildApp constructs the shared stack from environment configuration.
func buildApp(ctx context.Context) (*app, error) {
	serviceCfg := config.LoadServiceConfig()
	logger := newLogger(serviceCfg)
	flushSentry := initSentry(serviceCfg, logger)

	database, err := db.Open(config.LoadDatabaseConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var cacheBackend cache.Cache
	cacheCfg := config.LoadCacheConfig()
	if cacheCfg.URL != "" {
		redisCache, err := cache.NewRedisCache(cacheCfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect cache: %w", err)
		}
		cacheBackend = redisCache
		logger.Info("using redis cache backend")
	} else {
		cacheBackend = cache.NewInMemoryCache()
		logger.Info("using in-memory cache backend")
	}

	var queue mq.MessageQueue
	var rabbit *mq.RabbitMQ
	queueCfg := config.LoadQueueConfig()
	if queueCfg.URL != "" {
		rabbit, err = mq.NewRabbitMQ(queueCfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect queue: %w", err)
		}
		queue = rabbit
		logger.Info("using RabbitMQ queue backend")
	} else {
		queue = mq.NewInMemoryQueue(logger)
		logger.Info("using in-process queue backend")
	}

	var ps pubsub.PubSub
	if cacheCfg.URL != "" {
		redisPubSub, err := pubsub.NewRedisPubSub(cacheCfg.URL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect pub/sub: %w", err)
		}
		ps = redisPubSub
	} else {
		ps = pubsub.NewInMemoryPubSub(logger)
	}

	chDirect, err := ch.NewDirectClickhouse(config.LoadClickhouseConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect clickhouse: %w", err)
	}

	minter := dataplane.NewTokenMinter()
	resolver := func(ctx context.Context, projectID uuid.UUID) (*db.WorkspaceDeployment, error) {
		return dataplane.GetWorkspaceDeployment(ctx, database, cacheBackend, projectID)
	}
	chSvc := ch.NewService(chDirect, resolver, minter, http.DefaultClient)

	storageCfg := config.LoadStorageConfig()
	var blobBackend storage.Storage
	if storageCfg.AccessKey != "" || storageCfg.Endpoint != "" {
		blobBackend, err = storage.NewS3Storage(ctx, storageCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to configure blob storage: %w", err)
		}
	} else {
		blobBackend = storage.NewMockStorage()
		logger.Warn("no blob storage configured, using in-memory mock")
	}
	storageSvc := storage.NewService(blobBackend, storage.DeploymentResolver(resolver), minter, http.DefaultClient)

	var query queryengine.Client
	queryCfg := config.LoadQueryEngineConfig()
	if queryCfg.URL != "" {
		query = queryengine.NewHTTPClient(queryCfg)
	}

	env := config.NewEnvConfig("")
	expected := worker.ExpectedWorkerCounts{
		Spans:          env.GetInt("NUM_SPANS_WORKERS", 4),
		BrowserEvents:  env.GetInt("NUM_BROWSER_EVENTS_WORKERS", 1),
		Evaluators:     env.GetInt("NUM_EVALUATORS_WORKERS", 1),
		Payloads:       env.GetInt("NUM_PAYLOADS_WORKERS", 2),
		TraceSummaries: env.GetInt("NUM_TRACE_SUMMARIES_WORKERS", 0),
	}

	return &app{
		logger:      logger,
		database:    database,
		cache:       cacheBackend,
		queue:       queue,
		rabbit:      rabbit,
		pubsub:      ps,
		chDirect:    chDirect,
		chSvc:       chSvc,
		storage:     storageSvc,
		minter:      minter,
		query:       query,
		evals:       &evaluations.Service{DB: database, CH: chSvc, Logger: logger},
		tracker:     worker.NewTracker(),
		expected:    expected,
		features:    config.LoadFeatureConfig(),
		server:      config.LoadServerConfig(),
		bucket:      storageCfg.Bucket,
		flushSentry: flushSentry,
	}, nil
}

// queueConnected reports broker connectivity for the readiness probe.
func (a *app) queueConnected() bool {
	if a.rabbit == nil {
		return true
	}
	return a.rabbit.IsConnected()
}

// close releases long-lived resources in reverse construction order.
func (a *app) close() {
	a.flushSentry()
	if err := a.queue.Close(); err != nil {
		a.logger.WithError(err).Warn("failed to close queue")
	}
	if err := a.database.Close(); err != nil {
		a.logger.WithError(err).Warn("failed to close database")
	}
}
