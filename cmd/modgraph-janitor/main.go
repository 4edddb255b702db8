package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/modgraph/pkg/audit"
	"github.com/platinummonkey/modgraph/pkg/config"
	"github.com/platinummonkey/modgraph/pkg/engine"
	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/storage"
	"github.com/platinummonkey/modgraph/pkg/storage/blob"
	"github.com/platinummonkey/modgraph/pkg/storage/sqlstore"
)

var (
	runOnce  = flag.Bool("run-once", false, "Run one retention pass and exit")
	logLevel = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
)

// janitor expires rollback points and prunes audit events past their retention windows
type janitor struct {
	svc       *engine.Service
	auditLog  *audit.DBLogger
	retention config.RetentionConfig
	logger    *logrus.Logger
}

func main() {
	flag.Parse()
	logger := setupLogger(*logLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	j, closeAll, err := setup(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to start janitor: %v", err)
	}
	defer closeAll()

	if *runOnce {
		if err := j.pass(context.Background()); err != nil {
			logger.Fatalf("Retention pass failed: %v", err)
		}
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Retention.Schedule, func() {
		if err := j.pass(context.Background()); err != nil {
			logger.WithError(err).Error("Retention pass failed")
		}
	}); err != nil {
		logger.Fatalf("Failed to schedule retention pass: %v", err)
	}
	c.Start()
	logger.WithFields(logrus.Fields{
		"schedule":     cfg.Retention.Schedule,
		"point_window": cfg.Retention.PointWindow,
		"audit_window": cfg.Retention.AuditWindow,
	}).Info("modgraph janitor started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down janitor")

	<-c.Stop().Done()
}

func setupLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// setup opens the point store and blob store the server writes to. Memory
// storage has nothing to clean up across processes and is refused.
func setup(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*janitor, func(), error) {
	if cfg.Storage.BlobType == "none" {
		return nil, nil, errors.New("rollback points are disabled (blob type none)")
	}

	var (
		store   modules.ModuleStore
		points  modules.PointStore
		closers []func() error
		j       = &janitor{retention: cfg.Retention, logger: logger}
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	switch cfg.Storage.Type {
	case "filesystem":
		fs, err := storage.NewFileSystemStore(cfg.Storage.FilesystemRoot)
		if err != nil {
			return nil, nil, err
		}
		store, points = fs, fs
	case "postgres", "sqlite":
		sqlStore, err := sqlstore.Open(cfg.Storage)
		if err != nil {
			return nil, nil, err
		}
		store, points = sqlStore, sqlStore
		closers = append(closers, sqlStore.Close)

		if cfg.Audit.Type == "db" || cfg.Audit.Type == "both" {
			dbLogger, err := audit.NewDBLogger(ctx, sqlStore.DB())
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			j.auditLog = dbLogger
		}
	default:
		return nil, nil, fmt.Errorf("storage type %q has no persistent rollback points", cfg.Storage.Type)
	}

	blobs, err := blob.Open(ctx, cfg.Storage)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	deps := engine.Deps{
		Store:  store,
		Points: points,
		Blobs:  blobs,
		Plans:  storage.NewMemoryPlanStore(),
		Locker: storage.NewLocalLocker(),
	}
	if j.auditLog != nil {
		deps.Audit = j.auditLog
	}
	j.svc, err = engine.New(deps, engine.Options{})
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return j, closeAll, nil
}

// pass runs one retention pass. A failed audit cleanup does not stop point
// expiry and vice versa; both errors are returned.
func (j *janitor) pass(ctx context.Context) error {
	start := time.Now()
	ctx = audit.WithActor(ctx, "janitor")

	var errs []error
	expired, err := j.svc.ExpireRollbackPoints(ctx, j.retention.PointWindow)
	if err != nil {
		errs = append(errs, fmt.Errorf("expire rollback points: %w", err))
	}

	var pruned int64
	if j.auditLog != nil {
		pruned, err = j.auditLog.Cleanup(ctx, j.retention.AuditWindow)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune audit events: %w", err))
		}
	}

	j.logger.WithFields(logrus.Fields{
		"expired_points": expired,
		"pruned_events":  pruned,
		"duration":       time.Since(start),
	}).Info("Retention pass completed")
	return errors.Join(errs...)
}
