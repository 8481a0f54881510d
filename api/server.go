// Package api provides the public ingest surface: the echo HTTP server with
// every /v1 route, the SSE realtime endpoint, the health probes, and the
// OTLP gRPC services on the second port.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/tracefold/app-server/auth"
	"github.com/tracefold/app-server/cache"
	"github.com/tracefold/app-server/ch"
	"github.com/tracefold/app-server/config"
	"github.com/tracefold/app-server/db"
	"github.com/tracefold/app-server/evaluations"
	"github.com/tracefold/app-server/mq"
	"github.com/tracefold/app-server/pubsub"
	"github.com/tracefold/app-server/queryengine"
	"github.com/tracefold/app-server/storage"
	"github.com/tracefold/app-server/worker"
)

// projectAPIKeyContextKey is the echo context key the auth middleware stores
// the resolved key under.
const projectAPIKeyContextKey = "projectAPIKey"

// Server bundles the collaborators of the HTTP surface.
type Server struct {
	DB          *db.DB
	Cache       cache.Cache
	Queue       mq.MessageQueue
	CH          *ch.Service
	CHReader    *ch.DirectClickhouse
	Storage     *storage.Service
	PubSub      pubsub.PubSub
	QueryEngine queryengine.Client
	Evaluations *evaluations.Service
	Tracker     *worker.Tracker
	Expected    worker.ExpectedWorkerCounts
	Features    config.FeatureConfig
	Config      config.ServerConfig
	Logger      *logrus.Logger
	// PayloadBucket is the blob bucket payload reads resolve against.
	PayloadBucket string
	// QueueConnected reports broker connectivity for the readiness probe.
	// nil means the in-process backend, which is always connected.
	QueueConnected func() bool
}

// NewEcho builds the echo instance with middleware and all routes
// registered.
func (s *Server) NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))
	e.Use(middleware.BodyLimit("100M"))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization,
			echo.HeaderContentEncoding, echo.HeaderAccept, "Cache-Control",
		},
	}))

	s.registerRoutes(e)
	return e
}

func (s *Server) registerRoutes(e *echo.Echo) {
	// Probes are unauthenticated.
	e.GET("/health", s.handleHealth)
	e.GET("/ready", s.handleReady)

	v1 := e.Group("/api/v1", s.authMiddleware)
	v1.POST("/traces", s.handleTraces)
	v1.POST("/logs", s.handleLogs)
	v1.POST("/spans", s.handleCreateSpans)
	v1.GET("/spans/:id", s.handleGetSpan)
	v1.GET("/traces/:id", s.handleGetTrace)
	v1.OPTIONS("/browser-sessions/events", s.handleBrowserSessionOptions)
	v1.POST("/browser-sessions/events", s.handleBrowserSessionEvents)
	v1.POST("/evals", s.handleCreateEval)
	v1.POST("/evals/:eval_id/datapoints", s.handleSaveDatapoints)
	v1.POST("/evals/:eval_id/datapoints/:datapoint_id", s.handleUpdateDatapoint)
	v1.POST("/queues/push", s.handleQueuePush)
	v1.POST("/sql/query", s.handleSQLQuery)
	v1.GET("/payloads/:id", s.handleGetPayload)

	e.GET("/projects/:project_id/realtime", s.handleRealtime, s.authMiddleware)
}

// authMiddleware resolves the bearer project API key and stores it in the
// request context.
func (s *Server) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := auth.ExtractBearerToken(c.Request().Header)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid bearer token")
		}

		key, err := auth.GetProjectAPIKey(c.Request().Context(), s.DB, s.Cache, token)
		if errors.Is(err, auth.ErrUnauthenticated) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid project API key")
		}
		if err != nil {
			s.Logger.WithError(err).Error("failed to resolve project API key")
			return echo.NewHTTPError(http.StatusInternalServerError, "authentication unavailable")
		}

		c.Set(projectAPIKeyContextKey, key)
		return next(c)
	}
}

// projectAPIKey returns the key resolved by the auth middleware.
func projectAPIKey(c echo.Context) *db.ProjectAPIKey {
	key, _ := c.Get(projectAPIKeyContextKey).(*db.ProjectAPIKey)
	return key
}

// checkUsageLimit enforces the workspace bytes-ingested cap when the feature
// flag is on. It returns a non-nil echo error when admission must refuse.
func (s *Server) checkUsageLimit(c echo.Context) error {
	if !s.Features.UsageLimits {
		return nil
	}

	key := projectAPIKey(c)
	exceeded, err := s.limitsForProject(c, key)
	if err != nil {
		// Limit lookups failing must not block ingestion.
		s.Logger.WithError(err).Warn("failed to check workspace limits")
		return nil
	}
	if exceeded.BytesIngested {
		return echo.NewHTTPError(http.StatusForbidden, "Workspace data limit exceeded")
	}
	return nil
}
