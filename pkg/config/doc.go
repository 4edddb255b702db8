// Package config loads application configuration from MODGRAPH_* environment
// variables, with defaults for every setting.
//
// Server:
//
//	MODGRAPH_HOST="0.0.0.0"
//	MODGRAPH_PORT="8080"
//	MODGRAPH_HEALTH_PORT="9090"
//	MODGRAPH_SHUTDOWN_TIMEOUT="30s"
//	MODGRAPH_RATE_LIMIT_REQUESTS="120"  # mutations per window per actor, 0 disables
//	MODGRAPH_RATE_LIMIT_WINDOW="1m"
//	MODGRAPH_RATE_LIMIT_BURST="10"
//
// Storage:
//
//	MODGRAPH_STORAGE_TYPE="postgres"  # memory, filesystem, postgres, sqlite
//	MODGRAPH_POSTGRES_URL="postgres://localhost/modgraph?sslmode=disable"
//	MODGRAPH_SQLITE_PATH="/var/lib/modgraph/modgraph.db"
//	MODGRAPH_BLOB_TYPE="s3"           # filesystem, s3, none (disables rollback points)
//	MODGRAPH_S3_BUCKET="modgraph-points"
//	MODGRAPH_REDIS_URL="redis://localhost:6379/0"  # plan store and distributed graph lock
//
// Engine and manifests:
//
//	MODGRAPH_INCLUDE_DEV="false"
//	MODGRAPH_VERDICT_TTL="15m"
//	MODGRAPH_MANIFEST="/etc/modgraph/modules.yaml"
//	MODGRAPH_MANIFEST_WATCH="true"
//
// Retention (cmd/modgraph-janitor):
//
//	MODGRAPH_RETENTION_SCHEDULE="@hourly"
//	MODGRAPH_RETENTION_WINDOW="720h"
//	MODGRAPH_AUDIT_RETENTION="2160h"
//
// Audit and observability:
//
//	MODGRAPH_AUDIT_TYPE="file"  # none, file, db, both
//	MODGRAPH_LOG_LEVEL="info"
//	MODGRAPH_OTEL_ENABLED="true"
//	MODGRAPH_OTEL_ENDPOINT="otel-collector:4317"
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
