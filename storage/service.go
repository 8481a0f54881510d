package storage

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/tracefold/app-server/dataplane"
	"github.com/tracefold/app-server/db"
)

// DeploymentResolver resolves the workspace deployment of a project.
type DeploymentResolver func(ctx context.Context, projectID uuid.UUID) (*db.WorkspaceDeployment, error)

// Service routes blob operations between the direct backend and the data
// plane relay based on the workspace deployment mode.
type Service struct {
	storage    Storage
	resolve    DeploymentResolver
	minter     *dataplane.TokenMinter
	httpClient *http.Client
}

// NewService builds the routing service over a direct backend.
func NewService(storage Storage, resolve DeploymentResolver, minter *dataplane.TokenMinter, httpClient *http.Client) *Service {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Service{
		storage:    storage,
		resolve:    resolve,
		minter:     minter,
		httpClient: httpClient,
	}
}

func (s *Service) backendFor(ctx context.Context, projectID uuid.UUID) (Storage, error) {
	config, err := s.resolve(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if config.Mode == db.DeploymentModeHybrid {
		return NewDataPlaneStorage(s.httpClient, s.minter, config), nil
	}
	return s.storage, nil
}

// Store writes a payload through the routed backend.
func (s *Service) Store(ctx context.Context, projectID uuid.UUID, bucket, key string, data []byte) (string, error) {
	backend, err := s.backendFor(ctx, projectID)
	if err != nil {
		return "", err
	}
	return backend.Store(ctx, bucket, key, data)
}

// GetStream opens a payload through the routed backend.
func (s *Service) GetStream(ctx context.Context, projectID uuid.UUID, bucket, key string) (io.ReadCloser, error) {
	backend, err := s.backendFor(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return backend.GetStream(ctx, bucket, key)
}

// GetSize returns a payload's size through the routed backend.
func (s *Service) GetSize(ctx context.Context, projectID uuid.UUID, bucket, key string) (int64, error) {
	backend, err := s.backendFor(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return backend.GetSize(ctx, bucket, key)
}
