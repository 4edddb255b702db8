package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/modgraph/pkg/observability"
	"github.com/platinummonkey/modgraph/pkg/storage"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("MODGRAPH_TEST_VAR", "custom")

	assert.Equal(t, "custom", getEnv("MODGRAPH_TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("MODGRAPH_TEST_VAR_NOT_SET", "default"))
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{"true", "true", false, true},
		{"one", "1", false, true},
		{"uppercase", "TRUE", false, true},
		{"false", "false", true, false},
		{"garbage is false", "yes", true, false},
		{"unset uses default", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MODGRAPH_TEST_BOOL", tt.envValue)
			assert.Equal(t, tt.want, getEnvBool("MODGRAPH_TEST_BOOL", tt.defaultValue))
		})
	}
}

func TestGetEnvNumbers(t *testing.T) {
	t.Setenv("MODGRAPH_TEST_INT", "42")
	t.Setenv("MODGRAPH_TEST_BAD_INT", "forty-two")
	t.Setenv("MODGRAPH_TEST_INT64", "9000000000")
	t.Setenv("MODGRAPH_TEST_FLOAT", "0.25")
	t.Setenv("MODGRAPH_TEST_DURATION", "90s")
	t.Setenv("MODGRAPH_TEST_BAD_DURATION", "soon")

	assert.Equal(t, 42, getEnvInt("MODGRAPH_TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("MODGRAPH_TEST_BAD_INT", 1))
	assert.Equal(t, int64(9000000000), getEnvInt64("MODGRAPH_TEST_INT64", 0))
	assert.Equal(t, 0.25, getEnvFloat("MODGRAPH_TEST_FLOAT", 1))
	assert.Equal(t, 90*time.Second, getEnvDuration("MODGRAPH_TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("MODGRAPH_TEST_BAD_DURATION", time.Second))
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Zero(t, cfg.Server.RateLimitRequests)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "filesystem", cfg.Storage.BlobType)
	assert.Equal(t, "@hourly", cfg.Retention.Schedule)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention.PointWindow)
	assert.Equal(t, "file", cfg.Audit.Type)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.OTelEnabled)
	assert.Equal(t, 15*time.Minute, cfg.Engine.VerdictTTL)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("MODGRAPH_PORT", "7000")
	t.Setenv("MODGRAPH_STORAGE_TYPE", "postgres")
	t.Setenv("MODGRAPH_POSTGRES_URL", "postgres://localhost/modgraph")
	t.Setenv("MODGRAPH_POSTGRES_MAX_CONNS", "50")
	t.Setenv("MODGRAPH_BLOB_TYPE", "s3")
	t.Setenv("MODGRAPH_S3_BUCKET", "modgraph-points")
	t.Setenv("MODGRAPH_S3_USE_PATH_STYLE", "true")
	t.Setenv("MODGRAPH_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("MODGRAPH_LOCK_TTL", "5s")
	t.Setenv("MODGRAPH_AUDIT_TYPE", "both")
	t.Setenv("MODGRAPH_RETENTION_SCHEDULE", "*/15 * * * *")
	t.Setenv("MODGRAPH_MANIFEST", "/etc/modgraph/modules.yaml")
	t.Setenv("MODGRAPH_MANIFEST_WATCH", "true")
	t.Setenv("MODGRAPH_LOG_LEVEL", "debug")
	t.Setenv("MODGRAPH_OTEL_ENABLED", "true")
	t.Setenv("MODGRAPH_OTEL_SAMPLE_RATIO", "0.1")
	t.Setenv("MODGRAPH_RATE_LIMIT_REQUESTS", "120")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, 120, cfg.Server.RateLimitRequests)
	assert.Equal(t, time.Minute, cfg.Server.RateLimitWindow)
	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, 50, cfg.Storage.PostgresMaxConns)
	assert.Equal(t, "modgraph-points", cfg.Storage.S3Bucket)
	assert.True(t, cfg.Storage.S3UsePathStyle)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Storage.RedisURL)
	assert.Equal(t, 5*time.Second, cfg.Storage.LockTTL)
	assert.Equal(t, "both", cfg.Audit.Type)
	assert.True(t, cfg.Engine.WatchManifest)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)

	otelCfg := cfg.Observability.OTel()
	assert.True(t, otelCfg.Enabled)
	assert.Equal(t, 0.1, otelCfg.SampleRatio)
	assert.Equal(t, "modgraph", otelCfg.ServiceName)
}

func validConfig() *Config {
	return &Config{
		Server:    ServerConfig{Port: "8080", HealthPort: "9090"},
		Storage:   storage.DefaultConfig(),
		Retention: RetentionConfig{Schedule: "@daily", PointWindow: time.Hour},
		Audit:     AuditConfig{Type: "file", Path: "/tmp/audit"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"same ports", func(c *Config) { c.Server.HealthPort = "8080" }, "must be different"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimitRequests = -1 }, "must not be negative"},
		{"rate limit without window", func(c *Config) { c.Server.RateLimitRequests = 10 }, "rate limit window must be positive"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "hybrid" }, "invalid storage type"},
		{"postgres without url", func(c *Config) { c.Storage.Type = "postgres" }, "postgres URL is required"},
		{"sqlite without path", func(c *Config) {
			c.Storage.Type = "sqlite"
			c.Storage.SQLitePath = ""
		}, "sqlite path is required"},
		{"s3 without bucket", func(c *Config) { c.Storage.BlobType = "s3" }, "S3 bucket is required"},
		{"no blobs", func(c *Config) { c.Storage.BlobType = "none" }, ""},
		{"db audit on memory store", func(c *Config) { c.Audit.Type = "db" }, "requires postgres or sqlite"},
		{"db audit on sqlite", func(c *Config) {
			c.Storage.Type = "sqlite"
			c.Audit.Type = "db"
		}, ""},
		{"unknown audit", func(c *Config) { c.Audit.Type = "syslog" }, "invalid audit type"},
		{"watch without manifest", func(c *Config) { c.Engine.WatchManifest = true }, "manifest path is required"},
		{"bad schedule", func(c *Config) { c.Retention.Schedule = "every tuesday" }, "invalid retention schedule"},
		{"zero window", func(c *Config) { c.Retention.PointWindow = 0 }, "retention window must be positive"},
		{"otel without endpoint", func(c *Config) { c.Observability.OTelEnabled = true }, "endpoint is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
