package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/modgraph/pkg/observability"
	"github.com/platinummonkey/modgraph/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Engine        EngineConfig
	Retention     RetentionConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// RateLimitRequests caps mutating requests per actor and window; zero disables
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitBurst    int
}

// EngineConfig tunes the engine and where its initial state comes from
type EngineConfig struct {
	IncludeDev  bool
	VerdictTTL  time.Duration
	ConflictTTL time.Duration

	// ManifestPath seeds the store at startup when set
	ManifestPath  string
	WatchManifest bool
}

// RetentionConfig drives the janitor
type RetentionConfig struct {
	// Schedule is a standard five-field cron expression or descriptor
	Schedule string
	// PointWindow is how long rollback points stay available
	PointWindow time.Duration
	// AuditWindow is how long database audit events are kept
	AuditWindow time.Duration
}

// AuditConfig selects audit sinks
type AuditConfig struct {
	Type     string // "none", "file", "db", "both"
	Path     string
	Rotate   bool
	MaxSize  int64
	MaxFiles int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// OTel returns the settings for observability.InitOTel
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Engine:        loadEngineConfig(),
		Retention:     loadRetentionConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("MODGRAPH_HOST", "0.0.0.0"),
		Port:            getEnv("MODGRAPH_PORT", "8080"),
		ReadTimeout:     getEnvDuration("MODGRAPH_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("MODGRAPH_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("MODGRAPH_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("MODGRAPH_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("MODGRAPH_HEALTH_PORT", "9090"),

		RateLimitRequests: getEnvInt("MODGRAPH_RATE_LIMIT_REQUESTS", 0),
		RateLimitWindow:   getEnvDuration("MODGRAPH_RATE_LIMIT_WINDOW", time.Minute),
		RateLimitBurst:    getEnvInt("MODGRAPH_RATE_LIMIT_BURST", 10),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.Type = getEnv("MODGRAPH_STORAGE_TYPE", cfg.Type)
	cfg.FilesystemRoot = getEnv("MODGRAPH_FILESYSTEM_ROOT", cfg.FilesystemRoot)

	// PostgreSQL config
	cfg.PostgresURL = getEnv("MODGRAPH_POSTGRES_URL", cfg.PostgresURL)
	if maxConns := getEnvInt("MODGRAPH_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("MODGRAPH_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("MODGRAPH_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}
	cfg.SQLitePath = getEnv("MODGRAPH_SQLITE_PATH", cfg.SQLitePath)

	// Blob config
	cfg.BlobType = getEnv("MODGRAPH_BLOB_TYPE", cfg.BlobType)
	cfg.BlobRoot = getEnv("MODGRAPH_BLOB_ROOT", cfg.BlobRoot)
	cfg.S3Endpoint = getEnv("MODGRAPH_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("MODGRAPH_S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("MODGRAPH_S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("MODGRAPH_S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("MODGRAPH_S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3UsePathStyle = getEnvBool("MODGRAPH_S3_USE_PATH_STYLE", cfg.S3UsePathStyle)

	// Redis config
	cfg.RedisURL = getEnv("MODGRAPH_REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnv("MODGRAPH_REDIS_PASSWORD", cfg.RedisPassword)
	if redisDB := getEnvInt("MODGRAPH_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("MODGRAPH_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("MODGRAPH_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}
	cfg.LockTTL = getEnvDuration("MODGRAPH_LOCK_TTL", cfg.LockTTL)

	return cfg
}

func loadEngineConfig() EngineConfig {
	return EngineConfig{
		IncludeDev:    getEnvBool("MODGRAPH_INCLUDE_DEV", false),
		VerdictTTL:    getEnvDuration("MODGRAPH_VERDICT_TTL", 15*time.Minute),
		ConflictTTL:   getEnvDuration("MODGRAPH_CONFLICT_TTL", 15*time.Minute),
		ManifestPath:  getEnv("MODGRAPH_MANIFEST", ""),
		WatchManifest: getEnvBool("MODGRAPH_MANIFEST_WATCH", false),
	}
}

func loadRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Schedule:    getEnv("MODGRAPH_RETENTION_SCHEDULE", "@hourly"),
		PointWindow: getEnvDuration("MODGRAPH_RETENTION_WINDOW", 30*24*time.Hour),
		AuditWindow: getEnvDuration("MODGRAPH_AUDIT_RETENTION", 90*24*time.Hour),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Type:     strings.ToLower(getEnv("MODGRAPH_AUDIT_TYPE", "file")),
		Path:     getEnv("MODGRAPH_AUDIT_PATH", "/var/log/modgraph/audit"),
		Rotate:   getEnvBool("MODGRAPH_AUDIT_ROTATE", true),
		MaxSize:  getEnvInt64("MODGRAPH_AUDIT_MAX_SIZE", 100*1024*1024),
		MaxFiles: getEnvInt("MODGRAPH_AUDIT_MAX_FILES", 10),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("MODGRAPH_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("MODGRAPH_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("MODGRAPH_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("MODGRAPH_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("MODGRAPH_OTEL_SERVICE_NAME", "modgraph"),
		OTelServiceVersion: getEnv("MODGRAPH_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("MODGRAPH_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("MODGRAPH_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.RateLimitRequests < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit requests and burst must not be negative")
	}
	if c.Server.RateLimitRequests > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}

	switch c.Storage.Type {
	case "memory":
	case "filesystem":
		if c.Storage.FilesystemRoot == "" {
			return fmt.Errorf("filesystem root is required for filesystem storage")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, filesystem, postgres, or sqlite)", c.Storage.Type)
	}

	switch c.Storage.BlobType {
	case "filesystem":
		if c.Storage.BlobRoot == "" {
			return fmt.Errorf("blob root is required for filesystem blobs")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 blobs")
		}
	case "none":
	default:
		return fmt.Errorf("invalid blob type: %s (must be filesystem, s3, or none)", c.Storage.BlobType)
	}

	switch c.Audit.Type {
	case "none":
	case "file":
		if c.Audit.Path == "" {
			return fmt.Errorf("audit path is required for file audit logging")
		}
	case "db", "both":
		if !c.Storage.IsSQL() {
			return fmt.Errorf("audit type %s requires postgres or sqlite storage", c.Audit.Type)
		}
		if c.Audit.Type == "both" && c.Audit.Path == "" {
			return fmt.Errorf("audit path is required for file audit logging")
		}
	default:
		return fmt.Errorf("invalid audit type: %s (must be none, file, db, or both)", c.Audit.Type)
	}

	if c.Engine.WatchManifest && c.Engine.ManifestPath == "" {
		return fmt.Errorf("manifest path is required to watch the manifest")
	}

	if c.Retention.PointWindow <= 0 {
		return fmt.Errorf("retention window must be positive")
	}
	if _, err := cron.ParseStandard(c.Retention.Schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", c.Retention.Schedule, err)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
