package storage

import (
	"context"
	"time"

	"github.com/platinummonkey/modgraph/pkg/modules"
)

// Backend is a module store that also keeps rollback point metadata
type Backend interface {
	modules.ModuleStore
	modules.PointStore

	// HealthCheck verifies the backend is reachable
	HealthCheck(ctx context.Context) error

	Close() error
}

// Config for storage backend
type Config struct {
	Type string // "memory", "filesystem", "postgres", "sqlite"

	// Filesystem config
	FilesystemRoot string

	// PostgreSQL config
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration

	// SQLite config
	SQLitePath string

	// Blob config for captured rollback state
	BlobType string // "filesystem", "s3"
	BlobRoot string

	// S3 config
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// Redis config, used for the plan store and mutation lock
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
	LockTTL         time.Duration
}

// IsSQL reports whether the module store is backed by database/sql
func (c Config) IsSQL() bool {
	return c.Type == "postgres" || c.Type == "sqlite"
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             "memory",
		FilesystemRoot:   "/tmp/modgraph",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		SQLitePath:       "/tmp/modgraph/modgraph.db",
		BlobType:         "filesystem",
		BlobRoot:         "/tmp/modgraph/blobs",
		S3Region:         "us-east-1",
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		LockTTL:          30 * time.Second,
	}
}
