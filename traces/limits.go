package traces

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tracefold/app-server/cache"
	"github.com/tracefold/app-server/db"
)

// GetWorkspaceLimitExceeded reads the workspace limit state for a project
// through the cache under workspace_limits:{project_id}.
func GetWorkspaceLimitExceeded(ctx context.Context, d *db.DB, c cache.Cache, projectID uuid.UUID) (*db.WorkspaceLimitsExceeded, error) {
	cacheKey := fmt.Sprintf("%s:%s", cache.WorkspaceLimitsCacheKey, projectID)

	var cached db.WorkspaceLimitsExceeded
	if found, err := c.Get(ctx, cacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	workspaceID, err := GetWorkspaceIDForProjectID(ctx, d, c, projectID)
	if err != nil {
		return nil, err
	}

	exceeded, err := db.IsWorkspaceOverLimit(ctx, d, workspaceID)
	if err != nil {
		return nil, err
	}

	_ = c.Insert(ctx, cacheKey, exceeded)
	return exceeded, nil
}

// UpdateWorkspaceLimitExceeded recomputes the limit state from the database
// and force-updates the cache. This runs write-through after every batch
// insert rather than invalidating.
func UpdateWorkspaceLimitExceeded(ctx context.Context, d *db.DB, c cache.Cache, projectID uuid.UUID) (*db.WorkspaceLimitsExceeded, error) {
	workspaceID, err := GetWorkspaceIDForProjectID(ctx, d, c, projectID)
	if err != nil {
		return nil, err
	}

	exceeded, err := db.IsWorkspaceOverLimit(ctx, d, workspaceID)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("%s:%s", cache.WorkspaceLimitsCacheKey, projectID)
	if err := c.Insert(ctx, cacheKey, exceeded); err != nil {
		return nil, err
	}
	return exceeded, nil
}

// GetWorkspaceIDForProjectID resolves a project's workspace, read through
// the cache under project:{project_id}.
func GetWorkspaceIDForProjectID(ctx context.Context, d *db.DB, c cache.Cache, projectID uuid.UUID) (uuid.UUID, error) {
	cacheKey := fmt.Sprintf("%s:%s", cache.ProjectCacheKey, projectID)

	var cached db.Project
	if found, err := c.Get(ctx, cacheKey, &cached); err == nil && found {
		return cached.WorkspaceID, nil
	}

	project, err := db.GetProject(ctx, d, projectID)
	if err != nil {
		return uuid.Nil, err
	}

	_ = c.Insert(ctx, cacheKey, project)
	return project.WorkspaceID, nil
}
