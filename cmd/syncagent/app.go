package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/photosync/syncagent/internal/config"
	"github.com/photosync/syncagent/internal/handlers"
	"github.com/photosync/syncagent/internal/observability"
	"github.com/photosync/syncagent/internal/repository"
	"github.com/photosync/syncagent/internal/services"
)

// app wires the sync engine from configuration
type app struct {
	cfg       *config.Config
	db        *sql.DB
	telemetry *observability.Telemetry
	store     repository.IntervalStore
	gallery   *repository.FilesystemGallery
	lock      *services.IntervalLock
	scan      *services.FullScanService
	periodic  *services.PeriodicSyncService
	logger    *observability.Logger
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := observability.GetLogger()
	logger.Configure(observability.ParseLevel(cfg.Logging.Level), observability.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})

	telemetry, err := observability.Initialize(ctx, observability.NewConfig("photosync-syncagent", handlers.Version))
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	a := &app{cfg: cfg, telemetry: telemetry, logger: logger}

	storeKind := "sqlite"
	if cfg.UsePostgres() {
		storeKind = "postgres"
		logger.Info("Using PostgreSQL interval store")
		a.db, err = repository.NewPostgresDB(cfg.DatabaseURL)
	} else {
		logger.Infof("Using SQLite interval store at %s", cfg.DatabasePath)
		a.db, err = repository.NewSQLiteDB(cfg.DatabasePath)
	}
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open %s database: %w", storeKind, err)
	}

	storeMetrics, err := observability.NewStoreMetrics()
	if err != nil {
		logger.Warnf("Store metrics unavailable: %v", err)
		storeMetrics = nil
	}
	a.store = repository.NewTracedIntervalStore(repository.NewIntervalRepository(a.db), storeKind, storeMetrics)

	a.gallery, err = repository.NewFilesystemGallery(cfg.Gallery.RootPath, cfg.Gallery.AllowedExtensions, cfg.Gallery.UseEXIF)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open gallery: %w", err)
	}

	uploader, err := services.NewUploaderFromConfig(cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	syncMetrics, err := observability.NewSyncMetrics()
	if err != nil {
		logger.Warnf("Sync metrics unavailable: %v", err)
		syncMetrics = nil
	}

	batches, err := services.NewBatchUploader(uploader, cfg.Sync.BatchSize, nil, syncMetrics)
	if err != nil {
		a.close()
		return nil, err
	}

	a.lock = services.NewIntervalLock()
	a.scan = services.NewFullScanService(a.store, a.gallery, batches, a.lock, nil, syncMetrics)
	a.periodic = services.NewPeriodicSyncService(
		a.store, a.gallery, batches, a.lock, nil, syncMetrics,
		time.Duration(cfg.Sync.PeriodicIntervalMinutes)*time.Minute,
	)
	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warnf("Telemetry shutdown: %v", err)
		}
	}
	a.logger.Close()
}
