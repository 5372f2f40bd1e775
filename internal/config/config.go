// Package config provides centralized configuration management for the archive service.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Dynamo   DynamoConfig
	Import   ImportConfig
	Gateway  GatewayConfig
	Cache    CacheConfig
	Staging  StagingConfig
	Archive  ArchiveConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// StoreConfig identifies the document collection the archive lives in.
// The four identifiers have no defaults; the service refuses to start without them.
type StoreConfig struct {
	// Backend selects the document store: postgres, dynamodb or memory (default: postgres)
	Backend string `env:"STORE_BACKEND" default:"postgres"`

	// Endpoint is the store endpoint (DSN host, DynamoDB endpoint override, ...)
	Endpoint string `env:"STORE_ENDPOINT" required:"true"`

	// ProjectID is the project the store belongs to
	ProjectID string `env:"STORE_PROJECT_ID" required:"true"`

	// DatabaseID is the database holding the archive collection
	DatabaseID string `env:"STORE_DATABASE_ID" required:"true"`

	// CollectionID is the collection holding archive records
	CollectionID string `env:"STORE_COLLECTION_ID" required:"true"`
}

// DatabaseConfig holds PostgreSQL connection settings for the postgres backend.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string; falls back to STORE_ENDPOINT
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// Migrate applies embedded migrations on startup (default: true)
	Migrate bool `env:"DB_MIGRATE" default:"true"`
}

// DynamoConfig holds settings for the dynamodb backend.
type DynamoConfig struct {
	// Region is the AWS region (default: us-east-1)
	Region string `env:"AWS_REGION" default:"us-east-1"`

	// TablePrefix is prepended to DatabaseID/CollectionID to form the table name
	TablePrefix string `env:"DYNAMO_TABLE_PREFIX"`
}

// ImportConfig holds bulk import settings.
type ImportConfig struct {
	// MaxFileSize is the maximum accepted spreadsheet size in bytes (default: 20MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"20971520"`

	// StepDelay is the pause between consecutive store calls of a run (default: 10ms)
	StepDelay time.Duration `env:"IMPORT_STEP_DELAY" default:"10ms"`

	// Timeout bounds a whole import run (default: 30m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"30m"`
}

// GatewayConfig holds batch settings for the record store gateway.
type GatewayConfig struct {
	// BatchParallelism is the worker count for batch create/delete (default: 4)
	BatchParallelism int `env:"GATEWAY_BATCH_PARALLELISM" default:"4"`

	// RequestsPerSecond throttles batch calls; 0 disables throttling (default: 0)
	RequestsPerSecond float64 `env:"GATEWAY_REQUESTS_PER_SECOND" default:"0"`

	// CallTimeout bounds a single store call (default: 15s)
	CallTimeout time.Duration `env:"GATEWAY_CALL_TIMEOUT" default:"15s"`
}

// CacheConfig holds listing cache settings.
type CacheConfig struct {
	// Backend is none, memory or redis (default: none). The memory cache is
	// per process and misses writes made by other processes.
	Backend string `env:"CACHE_BACKEND" default:"none"`

	// Size is the maximum number of cached listings (memory backend) (default: 256)
	Size int `env:"CACHE_SIZE" default:"256"`

	// TTL is how long a cached listing stays valid (default: 30s)
	TTL time.Duration `env:"CACHE_TTL" default:"30s"`

	// RedisURL is the redis connection URL for the redis backend
	RedisURL string `env:"REDIS_URL"`
}

// StagingConfig holds settings for staged import sessions.
type StagingConfig struct {
	// MaxSessions is the number of staged sessions kept in memory (default: 64)
	MaxSessions int `env:"STAGING_MAX_SESSIONS" default:"64"`

	// TTL is how long an untouched staged session lives (default: 1h)
	TTL time.Duration `env:"STAGING_TTL" default:"1h"`
}

// ArchiveConfig holds settings for keeping uploaded source spreadsheets.
type ArchiveConfig struct {
	// Bucket is the S3 bucket; empty disables archiving
	Bucket string `env:"ARCHIVE_BUCKET"`

	// Prefix is the object key prefix (default: imports/)
	Prefix string `env:"ARCHIVE_PREFIX" default:"imports/"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`

	// UploadLimit is requests per minute for import endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey enforces X-API-Key on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// PostgresURL returns the connection string for the postgres backend.
func (c *Config) PostgresURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return c.Store.Endpoint
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
