// Package observability provides structured logging, Prometheus and
// OpenTelemetry metrics, tracing setup, health probes and graceful shutdown.
//
// # Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("module", "core").Info("dependency added")
//
// # Metrics
//
// Engine operations are counted by outcome (success, rejected, stale, error):
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordOperation(ctx, "execute_plan", observability.OutcomeStale, time.Since(start))
//
// When OpenTelemetry is enabled the same counts are mirrored through
// OTelMetrics to the OTLP meter provider installed by InitOTel.
//
// # Health
//
//	checker := observability.NewHealthChecker(version)
//	checker.RegisterDatabase("database", db)
//	checker.RegisterRedis("redis", client)
//	observability.RegisterHealthRoutes(router, checker)
package observability
