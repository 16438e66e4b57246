package importapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/domain/integration"
	"github.com/erp/importer/internal/domain/shared"
	"github.com/erp/importer/internal/infrastructure/logger"
	"github.com/erp/importer/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ImportService runs imports one at a time and keeps their history
type ImportService struct {
	source   integration.CatalogSource
	runs     bulk.ImportRunRepository
	lock     RunLock
	images   ImageStore
	settings Settings
	executor *Executor
	guard    *IntegrityGuard
	logger   *zap.Logger
}

// ImportServiceDeps groups the collaborators of ImportService
type ImportServiceDeps struct {
	Source      integration.CatalogSource
	Scope       TransactionScope
	Runs        bulk.ImportRunRepository
	Lock        RunLock
	Images      ImageStore
	IsTransient TransientClassifier
	Metrics     *telemetry.ImportMetrics
	Logger      *zap.Logger
}

// NewImportService creates a new ImportService
func NewImportService(deps ImportServiceDeps, settings Settings) *ImportService {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &ImportService{
		source:   deps.Source,
		runs:     deps.Runs,
		lock:     deps.Lock,
		images:   deps.Images,
		settings: settings,
		executor: NewExecutor(deps.Source, deps.Scope, deps.IsTransient, settings, deps.Metrics),
		guard:    NewIntegrityGuard(settings.PublicCategoryModels),
		logger:   log,
	}
}

// Run imports one bounded page of kind and returns the persisted run.
// It fails with shared.ErrConcurrentRun when another run holds the lock.
func (s *ImportService) Run(ctx context.Context, kind bulk.EntityKind, opts RunOptions) (*bulk.ImportRun, error) {
	processor, err := s.processorFor(kind)
	if err != nil {
		return nil, err
	}

	run, err := bulk.NewImportRun(kind, opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}

	if s.lock != nil {
		release, err := s.lock.TryAcquire(ctx, RunLockKey, s.settings.LockTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("Failed to release import lock", zap.Error(err))
			}
		}()
	}

	if err := s.runs.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save import run: %w", err)
	}

	runCtx, log := logger.WithRun(ctx, s.logger, run.ID.String(), string(kind))
	log.Info("Import run started", zap.Int("limit", opts.Limit), zap.Int("offset", opts.Offset))

	summary := s.executor.Run(runCtx, processor, opts)
	if err := run.Finish(summary); err != nil {
		return nil, err
	}

	// The run row is written even when the caller went away mid-run.
	if err := s.runs.Save(context.WithoutCancel(ctx), run); err != nil {
		return run, fmt.Errorf("failed to save import run: %w", err)
	}
	return run, nil
}

// processorFor builds a fresh processor for kind
func (s *ImportService) processorFor(kind bulk.EntityKind) (RecordProcessor, error) {
	switch kind {
	case bulk.EntityCategories:
		return NewCategoryProcessor(s.source, s.settings), nil
	case bulk.EntityProducts:
		return NewProductProcessor(s.source, s.settings, s.guard, s.images), nil
	case bulk.EntityStock:
		return NewStockProcessor(s.source), nil
	case bulk.EntityCustomers:
		return NewCustomerProcessor(s.source), nil
	default:
		return nil, shared.ErrUnknownKind.WithMessage(fmt.Sprintf("Invalid entity kind: %s", kind))
	}
}

// TestConnection runs the source connectivity probes
func (s *ImportService) TestConnection(ctx context.Context) (*integration.ConnectionReport, error) {
	report, err := s.source.CheckConnection(ctx)
	if err != nil {
		return nil, err
	}
	fields := []zap.Field{zap.Bool("ok", report.OK), zap.String("base_url", report.BaseURL)}
	if report.OK {
		logger.FromContext(ctx).Info("Source connection test passed", fields...)
	} else {
		logger.FromContext(ctx).Warn("Source connection test failed", append(fields, zap.String("hint", report.Hint))...)
	}
	return report, nil
}

// GetRun retrieves one import run
func (s *ImportService) GetRun(ctx context.Context, id uuid.UUID) (*bulk.ImportRun, error) {
	return s.runs.FindByID(ctx, id)
}

// ListRunsFilter defines the filter options for listing import runs
type ListRunsFilter struct {
	Kind        string
	Status      string
	StartedFrom *time.Time
	StartedTo   *time.Time
}

// ListRuns retrieves import runs with pagination and filtering.
// Unknown kind or status values are ignored; an inverted date range is rejected.
func (s *ImportService) ListRuns(ctx context.Context, filter ListRunsFilter, page, pageSize int) (*bulk.ImportRunListResult, error) {
	if filter.StartedFrom != nil && filter.StartedTo != nil && filter.StartedFrom.After(*filter.StartedTo) {
		return nil, shared.ErrInvalidInput.WithMessage("started_from must not be after started_to")
	}
	repoFilter := bulk.ImportRunFilter{
		StartedFrom: filter.StartedFrom,
		StartedTo:   filter.StartedTo,
	}
	if filter.Kind != "" {
		if kind := bulk.EntityKind(filter.Kind); kind.IsValid() {
			repoFilter.Kind = &kind
		}
	}
	if filter.Status != "" {
		if status := bulk.RunStatus(filter.Status); status.IsValid() {
			repoFilter.Status = &status
		}
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.runs.FindAll(ctx, repoFilter, page, pageSize)
}

// RecoverStale marks runs left in the running state by a previous process as failed.
// It is called once at startup and returns the number of runs recovered.
func (s *ImportService) RecoverStale(ctx context.Context) (int, error) {
	running, err := s.runs.FindRunning(ctx)
	if err != nil {
		return 0, err
	}
	recovered := 0
	var errs []error
	for _, run := range running {
		if err := run.Abort("process stopped before the run finished"); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.runs.Save(ctx, run); err != nil {
			errs = append(errs, err)
			continue
		}
		recovered++
		s.logger.Warn("Recovered stale import run",
			zap.String("run_id", run.ID.String()),
			zap.String("kind", string(run.Kind)))
	}
	return recovered, errors.Join(errs...)
}
