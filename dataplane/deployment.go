package dataplane

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tracefold/app-server/cache"
	"github.com/tracefold/app-server/db"
)

// GetWorkspaceDeployment resolves the deployment configuration for the
// workspace owning a project, read through the cache under
// workspace_deployment_config:{project_id}. There is no TTL; invalidation is
// explicit when the configuration changes.
func GetWorkspaceDeployment(ctx context.Context, d *db.DB, c cache.Cache, projectID uuid.UUID) (*db.WorkspaceDeployment, error) {
	cacheKey := fmt.Sprintf("%s:%s", cache.WorkspaceDeploymentsCacheKey, projectID)

	var cached db.WorkspaceDeployment
	if found, err := c.Get(ctx, cacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	deployment, err := db.GetWorkspaceDeploymentByProjectID(ctx, d, projectID)
	if err != nil {
		return nil, err
	}

	if err := c.Insert(ctx, cacheKey, deployment); err != nil {
		return nil, err
	}
	return deployment, nil
}

// InvalidateWorkspaceDeployment drops the cached configuration for a project.
func InvalidateWorkspaceDeployment(ctx context.Context, c cache.Cache, projectID uuid.UUID) error {
	return c.Remove(ctx, fmt.Sprintf("%s:%s", cache.WorkspaceDeploymentsCacheKey, projectID))
}
