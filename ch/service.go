package ch

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/tracefold/app-server/dataplane"
	"github.com/tracefold/app-server/db"
)

// DeploymentResolver resolves the workspace deployment of a project. The
// production resolver is dataplane.GetWorkspaceDeployment bound to the DB
// and cache; tests inject a fixed configuration.
type DeploymentResolver func(ctx context.Context, projectID uuid.UUID) (*db.WorkspaceDeployment, error)

// Service routes batched inserts between the direct ClickHouse client and
// the data plane relay based on the workspace deployment mode.
type Service struct {
	direct     *DirectClickhouse
	resolve    DeploymentResolver
	minter     *dataplane.TokenMinter
	httpClient *http.Client
}

// NewService builds the routing service.
func NewService(direct *DirectClickhouse, resolve DeploymentResolver, minter *dataplane.TokenMinter, httpClient *http.Client) *Service {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Service{
		direct:     direct,
		resolve:    resolve,
		minter:     minter,
		httpClient: httpClient,
	}
}

// InsertBatch inserts rows of one table, routing per deployment mode. Item
// order is preserved on both paths.
func InsertBatch[T Insertable](ctx context.Context, s *Service, projectID uuid.UUID, items []T) error {
	if len(items) == 0 {
		return nil
	}

	config, err := s.resolve(ctx, projectID)
	if err != nil {
		return err
	}

	switch config.Mode {
	case db.DeploymentModeHybrid:
		relay := NewDataPlaneClickhouse(s.httpClient, s.minter, config)
		return relay.insertBatch(ctx, NewDataPlaneBatch(items))
	default:
		return insertDirect(ctx, s.direct, items)
	}
}
