package cache

// Cache key prefixes. Keys are used across packages and are kept in a single
// place so that producers and consumers cannot drift apart.
const (
	ModelCostsCacheKey           = "model_costs_v1"
	ProjectAPIKeyCacheKey        = "project_api_key"
	ProjectCacheKey              = "project"
	SignalTriggersCacheKey       = "signal_triggers"
	SummaryTriggerSpansCacheKey  = "summary_trigger_spans"
	WorkspaceLimitsCacheKey      = "workspace_limits"
	WorkspaceBytesUsageCacheKey  = "workspace_bytes_usage"
	WorkspaceDeploymentsCacheKey = "workspace_deployment_config"
	ClusteringLockCacheKey       = "clustering_lock"
	AutocompleteLockCacheKey     = "autocomplete_lock"
	AutocompleteCacheKey         = "autocomplete"
	DataPlaneAuthTokenCacheKey   = "data_plane_auth_token"
	UserCacheKey                 = "user"
)
