// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Store      StoreConfig
	Cache      CacheConfig
	Generator  GeneratorConfig
	Corrector  CorrectorConfig
	Validation ValidationConfig
	Upload     UploadConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
	Archive    ArchiveConfig
	Sweep      SweepConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout must exceed the longest run: generation plus correction (default: 5m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-run requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, required when STORE_DRIVER=postgres.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// StoreConfig selects the relational store for scripts, ingestion log and rows.
type StoreConfig struct {
	// Driver is postgres or sqlite (default: sqlite)
	Driver string `env:"STORE_DRIVER" default:"sqlite"`

	// SQLitePath is the database file for the sqlite driver
	SQLitePath string `env:"SQLITE_PATH" default:"data/csvguard.db"`

	// IngestTable is the destination table for validated rows
	IngestTable string `env:"INGEST_TABLE" default:"transacoes_financeiras"`

	// BatchSize is the number of rows per insert batch on sqlite (default: 1000)
	BatchSize int `env:"STORE_BATCH_SIZE" default:"1000"`
}

// CacheConfig holds the optional Redis script cache and generation lock.
type CacheConfig struct {
	// RedisAddr enables the Redis layer when set (host:port)
	RedisAddr string `env:"REDIS_ADDR" envAlt:"REDIS_URL"`

	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" default:"0"`

	// TTL is how long a script stays in Redis after a read or write (default: 24h)
	TTL time.Duration `env:"CACHE_TTL" default:"24h"`

	// KeyPrefix namespaces cache and lock keys
	KeyPrefix string `env:"CACHE_KEY_PREFIX" default:"csvguard:"`

	// LockTTL bounds how long one worker may hold the generation lock (default: 2m)
	LockTTL time.Duration `env:"GENERATION_LOCK_TTL" default:"2m"`

	// LockWait is how long a worker waits for another's generation (default: 90s)
	LockWait time.Duration `env:"GENERATION_LOCK_WAIT" default:"90s"`
}

// GeneratorConfig holds the Gemini correction generator settings.
type GeneratorConfig struct {
	// APIKey enables generation when set
	APIKey string `env:"GEMINI_API_KEY" envAlt:"GOOGLE_API_KEY"`

	Model   string `env:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	BaseURL string `env:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta"`

	// Timeout bounds one generateContent call (default: 90s)
	Timeout time.Duration `env:"GEMINI_TIMEOUT" default:"90s"`

	Temperature     float64 `env:"GEMINI_TEMPERATURE" default:"0.1"`
	MaxOutputTokens int     `env:"GEMINI_MAX_OUTPUT_TOKENS" default:"8192"`
}

// CorrectorConfig holds the script runner settings.
type CorrectorConfig struct {
	// Interpreter runs correction scripts (default: python3)
	Interpreter string `env:"CORRECTOR_PYTHON" default:"python3"`

	// WorkDir holds per-run scratch directories (default: data/runs)
	WorkDir string `env:"CORRECTOR_WORK_DIR" default:"data/runs"`

	// Timeout bounds a single script execution (default: 2m)
	Timeout time.Duration `env:"CORRECTOR_TIMEOUT" default:"2m"`
}

// ValidationConfig holds template and validation settings.
type ValidationConfig struct {
	TemplateDir     string `env:"TEMPLATE_DIR" default:"templates"`
	DefaultTemplate string `env:"DEFAULT_TEMPLATE" default:"transacoes"`

	// DateThreshold is the share of ISO dates a DATE column needs (default: 0.8)
	DateThreshold float64 `env:"VALIDATION_DATE_THRESHOLD" default:"0.8"`

	// FingerprintTypes adds inferred column kinds to the fingerprint (default: false)
	FingerprintTypes bool `env:"VALIDATION_FINGERPRINT_TYPES" default:"false"`

	// SampleLines is the number of raw lines sent to the generator (default: 5)
	SampleLines int `env:"VALIDATION_SAMPLE_LINES" default:"5"`

	// DetectionBudget is the byte prefix used for encoding detection (default: 10000)
	DetectionBudget int `env:"DETECTION_BUDGET" default:"10000"`
}

// UploadConfig holds CSV upload processing settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel runs (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a run slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration of one run (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for validate/run endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects /api requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// ArchiveConfig holds the optional MinIO artifact archive.
type ArchiveConfig struct {
	// Endpoint enables archiving when set (host:port)
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET" default:"csvguard-runs"`
	Region    string `env:"MINIO_REGION"`
	UseSSL    bool   `env:"MINIO_USE_SSL" default:"false"`
}

// SweepConfig holds work directory cleanup settings.
type SweepConfig struct {
	Enabled bool `env:"SWEEP_ENABLED" default:"true"`

	// Retention is the age after which run directories are removed (default: 24h)
	Retention time.Duration `env:"SWEEP_RETENTION" default:"24h"`

	// Interval is how often the sweeper runs (default: 1h)
	Interval time.Duration `env:"SWEEP_INTERVAL" default:"1h"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Enabled reports whether a Redis address is configured.
func (c *CacheConfig) Enabled() bool {
	return c.RedisAddr != ""
}

// Enabled reports whether an API key is configured.
func (c *GeneratorConfig) Enabled() bool {
	return c.APIKey != ""
}

// Enabled reports whether a MinIO endpoint is configured.
func (c *ArchiveConfig) Enabled() bool {
	return c.Endpoint != ""
}
