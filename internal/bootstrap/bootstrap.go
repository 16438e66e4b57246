// Package bootstrap wires the import pipeline from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	importapp "github.com/erp/importer/internal/application/import"
	"github.com/erp/importer/internal/infrastructure/config"
	"github.com/erp/importer/internal/infrastructure/lock"
	"github.com/erp/importer/internal/infrastructure/logger"
	"github.com/erp/importer/internal/infrastructure/migration"
	"github.com/erp/importer/internal/infrastructure/persistence"
	"github.com/erp/importer/internal/infrastructure/prestashop"
	"github.com/erp/importer/internal/infrastructure/storage"
	"github.com/erp/importer/internal/infrastructure/telemetry"
	"github.com/erp/importer/migrations"
	"go.uber.org/zap"
)

// Options tunes what New sets up
type Options struct {
	// Version is reported as the service version in metrics
	Version string
	// Migrate applies pending schema migrations before anything else runs
	Migrate bool
	// AllowLockFallback uses the in-memory run lock when Redis is enabled but unreachable
	AllowLockFallback bool
}

// App holds the wired import stack
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *persistence.Database
	Source  *prestashop.Client
	Lock    importapp.RunLock
	Meters  *telemetry.MeterProvider
	Service *importapp.ImportService

	closers []func(context.Context) error
}

// New connects to the target database and the remote catalog and builds the import service.
// On error everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (_ *App, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, log.Named("gorm"), logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.onClose(func(context.Context) error { return db.Close() })
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	if opts.Migrate {
		if err := migrate(db, cfg.Database.Driver, log); err != nil {
			return nil, err
		}
	}

	a.Source, err = prestashop.NewClient(prestashop.ConfigFromSettings(cfg.PrestaShop), prestashop.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("remote catalog client: %w", err)
	}

	a.Lock, err = lock.New(cfg.Redis, opts.AllowLockFallback, log)
	if err != nil {
		return nil, err
	}
	if rl, ok := a.Lock.(*lock.RedisLock); ok {
		a.onClose(func(context.Context) error { return rl.Close() })
	}

	images, err := imageStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a.Meters, err = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    opts.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return nil, err
	}
	a.onClose(a.Meters.Shutdown)

	metrics, err := telemetry.NewImportMetrics(a.Meters.Meter("catalog-importer"), log)
	if err != nil {
		return nil, err
	}

	a.Service = importapp.NewImportService(importapp.ImportServiceDeps{
		Source:      a.Source,
		Scope:       persistence.NewGormTransactionScope(db.DB),
		Runs:        persistence.NewGormImportRunRepository(db.DB),
		Lock:        a.Lock,
		Images:      images,
		IsTransient: persistence.IsTransient,
		Metrics:     metrics,
		Logger:      log,
	}, importapp.SettingsFromConfig(cfg.Import))

	return a, nil
}

func migrate(db *persistence.Database, driver string, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// Closing the migrator would close sqlDB, so it is left to the database
	m, err := migration.New(sqlDB, driver, migrations.FS, log)
	if err != nil {
		return err
	}
	return m.Up()
}

// imageStore returns the mirror target for product images, nil when mirroring is off
func imageStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (importapp.ImageStore, error) {
	if !cfg.Import.MirrorImages {
		return nil, nil
	}
	if !cfg.Storage.Enabled {
		log.Warn("Image mirroring is on but storage is disabled; products keep their source image references")
		return nil, nil
	}
	store, err := storage.NewS3ImageStore(&cfg.Storage, storage.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("image storage: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("image storage: %w", err)
	}
	log.Info("Mirroring product images", zap.String("bucket", store.Bucket()))
	return store, nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// HealthChecks returns the dependency checks reported by the health endpoint
func (a *App) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if rl, ok := a.Lock.(*lock.RedisLock); ok {
		checks["redis"] = rl.Ping
	}
	return checks
}

// Close releases everything New opened, last opened first
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
