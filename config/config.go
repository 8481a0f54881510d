// Package config provides environment-driven configuration loading for the
// app server. All configuration comes from environment variables (12-factor);
// the CLI layer additionally binds them through viper so they can be supplied
// via config files in development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfig provides utilities for loading configuration from environment variables
type EnvConfig struct {
	prefix string // Optional prefix for all environment variables
}

// NewEnvConfig creates a new environment configuration loader
func NewEnvConfig(prefix string) *EnvConfig {
	return &EnvConfig{
		prefix: prefix,
	}
}

// GetString retrieves a string value from environment with optional default
func (ec *EnvConfig) GetString(key, defaultValue string) string {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		return value
	}
	return defaultValue
}

// MustGetString retrieves a required string value from environment or panics
func (ec *EnvConfig) MustGetString(key string) string {
	fullKey := ec.buildKey(key)
	value := os.Getenv(fullKey)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s not set", fullKey))
	}
	return value
}

// GetInt retrieves an integer value from environment with optional default
func (ec *EnvConfig) GetInt(key string, defaultValue int) int {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetInt64 retrieves a 64-bit integer value from environment with optional default
func (ec *EnvConfig) GetInt64(key string, defaultValue int64) int64 {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetBool retrieves a boolean value from environment with optional default
func (ec *EnvConfig) GetBool(key string, defaultValue bool) bool {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetDuration retrieves a duration value from environment with optional default
func (ec *EnvConfig) GetDuration(key string, defaultValue time.Duration) time.Duration {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetStringSlice retrieves a comma-separated string slice from environment
func (ec *EnvConfig) GetStringSlice(key string, defaultValue []string) []string {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultValue
}

// buildKey builds the full environment variable key with optional prefix
func (ec *EnvConfig) buildKey(key string) string {
	if ec.prefix != "" {
		return ec.prefix + "_" + key
	}
	return key
}

// ServerConfig contains the HTTP and gRPC listener configuration.
type ServerConfig struct {
	Port            int
	GRPCPort        int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Debug           bool
	// RestreamBaseURL, when set, makes the SSE endpoint proxy a remote
	// realtime service instead of serving the local pub/sub.
	RestreamBaseURL string
}

// LoadServerConfig loads server configuration from environment
func LoadServerConfig() ServerConfig {
	env := NewEnvConfig("")
	return ServerConfig{
		Port:            env.GetInt("PORT", 8000),
		GRPCPort:        env.GetInt("GRPC_PORT", 8001),
		Host:            env.GetString("HOST", "0.0.0.0"),
		ReadTimeout:     env.GetDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    env.GetDuration("WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout: env.GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Debug:           env.GetBool("DEBUG", false),
		RestreamBaseURL: env.GetString("RESTREAM_BASE_URL", ""),
	}
}

// DatabaseConfig contains the relational store configuration. Either URL or
// the DATABASE_* triple must be provided.
type DatabaseConfig struct {
	URL            string
	Host           string
	Username       string
	Password       string
	Database       string
	SSLRootCert    string
	MaxConnections int
}

// LoadDatabaseConfig loads database configuration from environment
func LoadDatabaseConfig() DatabaseConfig {
	env := NewEnvConfig("DATABASE")
	return DatabaseConfig{
		URL:            env.GetString("URL", ""),
		Host:           env.GetString("HOST", "localhost"),
		Username:       env.GetString("USERNAME", "postgres"),
		Password:       env.GetString("PASSWORD", ""),
		Database:       env.GetString("NAME", "app_server"),
		SSLRootCert:    env.GetString("SSL_ROOT_CERT", ""),
		MaxConnections: env.GetInt("MAX_CONNECTIONS", 10),
	}
}

// DSN renders the config as a Postgres connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	dsn := fmt.Sprintf("host=%s user=%s dbname=%s", c.Host, c.Username, c.Database)
	if c.Password != "" {
		dsn += " password=" + c.Password
	}
	if c.SSLRootCert != "" {
		dsn += " sslmode=verify-full sslrootcert=" + c.SSLRootCert
	}
	return dsn
}

// QueueConfig contains the message queue configuration. An empty URL selects
// the in-process channel bus.
type QueueConfig struct {
	URL        string
	MaxPayload int64
}

// DefaultMaxPayload is the per-message payload cap for the durable queue.
const DefaultMaxPayload = 50 * 1024 * 1024 // 50 MiB

// LoadQueueConfig loads queue configuration from environment
func LoadQueueConfig() QueueConfig {
	env := NewEnvConfig("")
	return QueueConfig{
		URL:        env.GetString("RABBITMQ_URL", ""),
		MaxPayload: env.GetInt64("RABBITMQ_MAX_PAYLOAD", DefaultMaxPayload),
	}
}

// CacheConfig contains the cache backend configuration. An empty URL selects
// the in-process LRU.
type CacheConfig struct {
	URL string
}

// LoadCacheConfig loads cache configuration from environment
func LoadCacheConfig() CacheConfig {
	return CacheConfig{URL: NewEnvConfig("").GetString("REDIS_URL", "")}
}

// ClickhouseConfig contains the columnar store configuration.
type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

// LoadClickhouseConfig loads columnar store configuration from environment
func LoadClickhouseConfig() ClickhouseConfig {
	env := NewEnvConfig("CLICKHOUSE")
	return ClickhouseConfig{
		URL:      env.GetString("URL", "localhost:9000"),
		Database: env.GetString("DATABASE", "default"),
		Username: env.GetString("USERNAME", "default"),
		Password: env.GetString("PASSWORD", ""),
	}
}

// StorageConfig contains the blob store configuration.
type StorageConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// LoadStorageConfig loads blob store configuration from environment
func LoadStorageConfig() StorageConfig {
	env := NewEnvConfig("S3")
	return StorageConfig{
		Endpoint:  env.GetString("ENDPOINT", ""),
		Region:    env.GetString("REGION", "us-east-1"),
		AccessKey: env.GetString("ACCESS_KEY", ""),
		SecretKey: env.GetString("SECRET_KEY", ""),
		Bucket:    env.GetString("BUCKET", "payloads"),
	}
}

// QueryEngineConfig contains the SQL query engine passthrough configuration.
type QueryEngineConfig struct {
	URL              string
	MaxExecutionTime time.Duration
	MaxResultBytes   int64
}

// LoadQueryEngineConfig loads query engine configuration from environment
func LoadQueryEngineConfig() QueryEngineConfig {
	env := NewEnvConfig("")
	return QueryEngineConfig{
		URL:              env.GetString("QUERY_ENGINE_URL", ""),
		MaxExecutionTime: time.Duration(env.GetInt("SQL_QUERY_MAX_EXECUTION_TIME", 120)) * time.Second,
		MaxResultBytes:   env.GetInt64("SQL_QUERY_MAX_RESULT_BYTES", 512*1024*1024),
	}
}

// FeatureConfig contains feature flags.
type FeatureConfig struct {
	UsageLimits bool
}

// LoadFeatureConfig loads feature flags from environment
func LoadFeatureConfig() FeatureConfig {
	return FeatureConfig{
		UsageLimits: NewEnvConfig("FEATURE").GetBool("USAGE_LIMITS", false),
	}
}

// ServiceConfig contains common service configuration
type ServiceConfig struct {
	Environment string
	LogLevel    string
	LogFormat   string
	SentryDSN   string
}

// LoadServiceConfig loads service configuration from environment
func LoadServiceConfig() ServiceConfig {
	env := NewEnvConfig("")
	return ServiceConfig{
		Environment: env.GetString("ENVIRONMENT", "development"),
		LogLevel:    env.GetString("LOG_LEVEL", "info"),
		LogFormat:   env.GetString("LOG_FORMAT", "text"),
		SentryDSN:   env.GetString("SENTRY_DSN", ""),
	}
}
