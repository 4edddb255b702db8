package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/modgraph/pkg/api"
	"github.com/platinummonkey/modgraph/pkg/audit"
	"github.com/platinummonkey/modgraph/pkg/config"
	"github.com/platinummonkey/modgraph/pkg/engine"
	"github.com/platinummonkey/modgraph/pkg/impact"
	"github.com/platinummonkey/modgraph/pkg/manifest"
	"github.com/platinummonkey/modgraph/pkg/middleware"
	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/observability"
	"github.com/platinummonkey/modgraph/pkg/storage"
	"github.com/platinummonkey/modgraph/pkg/storage/blob"
	"github.com/platinummonkey/modgraph/pkg/storage/redisstore"
	"github.com/platinummonkey/modgraph/pkg/storage/sqlstore"
)

var version = "dev"

func main() {
	manifestPath := flag.String("manifest", "", "Manifest to reconcile at startup (overrides MODGRAPH_MANIFEST)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *manifestPath != "" {
		cfg.Engine.ManifestPath = *manifestPath
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("modgraph exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	if providers != nil {
		otelMetrics, err := observability.NewOTelMetrics()
		if err != nil {
			return err
		}
		metrics = metrics.WithOTel(otelMetrics)
	}

	health := observability.NewHealthChecker(version)

	backend, err := openBackend(ctx, cfg, health, logger)
	if err != nil {
		return err
	}

	auditLogger, err := openAudit(ctx, cfg, backend.db)
	if err != nil {
		backend.close()
		return err
	}

	svc, err := engine.New(engine.Deps{
		Store:   backend.store,
		Points:  backend.points,
		Blobs:   backend.blobs,
		Plans:   backend.plans,
		Locker:  backend.locker,
		Audit:   auditLogger,
		Metrics: metrics,
		Logger:  logger,
	}, engine.Options{
		IncludeDev:  cfg.Engine.IncludeDev,
		VerdictTTL:  cfg.Engine.VerdictTTL,
		ConflictTTL: cfg.Engine.ConflictTTL,
	})
	if err != nil {
		backend.close()
		return err
	}

	if cfg.Engine.ManifestPath != "" {
		if err := reconcileManifest(ctx, svc, cfg.Engine.ManifestPath, logger); err != nil {
			backend.close()
			return err
		}
		if cfg.Engine.WatchManifest {
			watcher, err := manifest.NewWatcher(cfg.Engine.ManifestPath, func(ctx context.Context, m *manifest.Manifest) error {
				return applyManifest(ctx, svc, cfg.Engine.ManifestPath, m, logger)
			}, logger)
			if err != nil {
				backend.close()
				return err
			}
			go func() {
				defer observability.RecoverPanic(logger, "manifest watcher")
				if err := watcher.Run(ctx); err != nil {
					logger.WithError(err).Error("manifest watcher stopped")
				}
			}()
		}
	}

	server := api.NewServer(svc, logger)
	if cfg.Observability.MetricsEnabled {
		server.Router().Use(observability.HTTPMetricsMiddleware(metrics))
	}
	if cfg.Server.RateLimitRequests > 0 {
		server.Router().Use(newRateLimiter(ctx, cfg, backend.redis, logger).Handler)
	}
	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(server, "modgraph"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	opsRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(opsRouter, health)
	if cfg.Observability.MetricsEnabled {
		opsRouter.Handle("/metrics", observability.MetricsHandler(registry))
	}
	opsServer := &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:           opsRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register(func(ctx context.Context) error { return providers.Shutdown(ctx) })
	shutdown.Register(func(ctx context.Context) error {
		backend.close()
		return nil
	})
	shutdown.Register(func(ctx context.Context) error { return auditLogger.Close() })
	shutdown.Register(func(ctx context.Context) error { return opsServer.Shutdown(ctx) })
	shutdown.Register(func(ctx context.Context) error {
		cancel()
		return nil
	})

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{httpServer, opsServer} {
		go func() {
			logger.WithField("addr", srv.Addr).Info("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("server on %s failed: %w", srv.Addr, err)
			}
		}()
	}

	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()
	go func() {
		if err := <-serveErr; err != nil {
			logger.WithError(err).Error("HTTP server failed")
			stopWaiting()
		}
	}()

	logger.WithFields(map[string]interface{}{
		"version": version,
		"storage": cfg.Storage.Type,
		"blobs":   cfg.Storage.BlobType,
		"redis":   cfg.Storage.RedisURL != "",
	}).Info("modgraph started")

	return shutdown.WaitForSignal(waitCtx)
}

// backend bundles the stores the engine runs on
type backend struct {
	store  modules.ModuleStore
	points modules.PointStore
	blobs  modules.BlobStore
	plans  impact.Store
	locker modules.Locker
	db     *sql.DB
	redis  *redis.Client

	closers []func() error
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg *config.Config, health *observability.HealthChecker, logger *observability.Logger) (*backend, error) {
	b := &backend{}

	switch cfg.Storage.Type {
	case "memory":
		store := storage.NewMemoryStore()
		b.store, b.points = store, store
	case "filesystem":
		store, err := storage.NewFileSystemStore(cfg.Storage.FilesystemRoot)
		if err != nil {
			return nil, err
		}
		b.store, b.points = store, store
		health.Register("filesystem", true, store.HealthCheck)
	case "postgres", "sqlite":
		store, err := sqlstore.Open(cfg.Storage)
		if err != nil {
			return nil, err
		}
		b.store, b.points, b.db = store, store, store.DB()
		b.closers = append(b.closers, store.Close)
		health.RegisterDatabase(cfg.Storage.Type, store.DB())
	}

	if cfg.Storage.RedisURL != "" {
		client, err := redisstore.NewClient(cfg.Storage)
		if err != nil {
			b.close()
			return nil, err
		}
		b.redis = client
		b.plans = redisstore.NewPlanStore(client)
		b.locker = redisstore.NewLocker(client, cfg.Storage.LockTTL).WithLogger(logger)
		b.closers = append(b.closers, client.Close)
		health.RegisterRedis("redis", client)
	} else {
		b.plans = storage.NewMemoryPlanStore()
		b.locker = storage.NewLocalLocker()
		if cfg.Storage.Type != "memory" {
			logger.Warn("No Redis configured: plans are kept in memory and the graph lock is process-local")
		}
	}

	if cfg.Storage.BlobType != "none" {
		blobs, err := blob.Open(ctx, cfg.Storage)
		if err != nil {
			b.close()
			return nil, err
		}
		b.blobs = blobs
		if checker, ok := blobs.(interface{ HealthCheck(context.Context) error }); ok {
			health.Register("blobs", false, checker.HealthCheck)
		}
	}

	return b, nil
}

// newRateLimiter shares the limit across instances when Redis is configured
func newRateLimiter(ctx context.Context, cfg *config.Config, client *redis.Client, logger *observability.Logger) *middleware.RateLimitMiddleware {
	limits := middleware.RateLimitConfig{
		RequestsPerWindow: cfg.Server.RateLimitRequests,
		WindowDuration:    cfg.Server.RateLimitWindow,
		BurstSize:         cfg.Server.RateLimitBurst,
	}
	if client != nil {
		return middleware.NewRateLimitMiddleware(middleware.NewDistributedRateLimiter(client, limits, ""), logger)
	}
	local := middleware.NewRateLimiter(limits)
	local.StartCleanup(ctx)
	return middleware.NewRateLimitMiddleware(local, logger)
}

func openAudit(ctx context.Context, cfg *config.Config, db *sql.DB) (audit.Logger, error) {
	var loggers []audit.Logger

	if cfg.Audit.Type == "file" || cfg.Audit.Type == "both" {
		fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{
			BasePath: cfg.Audit.Path,
			Rotate:   cfg.Audit.Rotate,
			MaxSize:  cfg.Audit.MaxSize,
			MaxFiles: cfg.Audit.MaxFiles,
		})
		if err != nil {
			return nil, err
		}
		loggers = append(loggers, fileLogger)
	}
	if cfg.Audit.Type == "db" || cfg.Audit.Type == "both" {
		dbLogger, err := audit.NewDBLogger(ctx, db)
		if err != nil {
			return nil, err
		}
		loggers = append(loggers, dbLogger)
	}

	switch len(loggers) {
	case 0:
		return audit.NoOpLogger{}, nil
	case 1:
		return loggers[0], nil
	}
	return audit.NewMultiLogger(loggers...), nil
}

func reconcileManifest(ctx context.Context, svc *engine.Service, path string, logger *observability.Logger) error {
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	return applyManifest(ctx, svc, path, m, logger)
}

func applyManifest(ctx context.Context, svc *engine.Service, path string, m *manifest.Manifest, logger *observability.Logger) error {
	ctx = audit.WithActor(ctx, "manifest")
	res, err := svc.Reconcile(ctx, path, m.Diff, m.Records(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("failed to reconcile manifest %s: %w", path, err)
	}
	logger.WithFields(map[string]interface{}{
		"manifest":  path,
		"mutations": res.Mutations,
		"published": res.Published,
		"revision":  res.Revision,
	}).Info("Manifest reconciled")
	return nil
}
