package main

import (
	"context"
	"time"

	importapp "github.com/erp/importer/internal/application/import"
	"github.com/erp/importer/internal/bootstrap"
	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/domain/integration"
	"github.com/erp/importer/internal/infrastructure/config"
	"github.com/erp/importer/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// importService is what the commands need from the import pipeline
type importService interface {
	Run(ctx context.Context, kind bulk.EntityKind, opts importapp.RunOptions) (*bulk.ImportRun, error)
	TestConnection(ctx context.Context) (*integration.ConnectionReport, error)
	GetRun(ctx context.Context, id uuid.UUID) (*bulk.ImportRun, error)
	ListRuns(ctx context.Context, filter importapp.ListRunsFilter, page, pageSize int) (*bulk.ImportRunListResult, error)
}

// serviceOpener builds the service for one command invocation; closeFn releases it
type serviceOpener func(ctx context.Context) (svc importService, closeFn func(), err error)

func newRootCmd(open serviceOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "importer",
		Short:         "Import catalog data from a PrestaShop webservice",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newRunCmd(open))
	cmd.AddCommand(newTestConnectionCmd(open))
	cmd.AddCommand(newRunsCmd(open))
	return cmd
}

// openService wires the import stack from config.toml and ERP_ environment variables.
// Logs go to stderr so stdout only carries the reports.
func openService(ctx context.Context) (importService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "15:04:05.000",
	})
	if err != nil {
		return nil, nil, err
	}

	app, err := bootstrap.New(ctx, cfg, log, bootstrap.Options{
		Version:           "cli",
		Migrate:           true,
		AllowLockFallback: cfg.App.Env != "production",
	})
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}

	return app.Service, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Close(closeCtx)
		_ = log.Sync()
	}, nil
}
