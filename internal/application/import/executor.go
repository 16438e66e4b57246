package importapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/domain/integration"
	"github.com/erp/importer/internal/infrastructure/logger"
	"github.com/erp/importer/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// RunOptions selects the page of source records a run processes
type RunOptions struct {
	Limit  int
	Offset int
}

// Executor drives one entity kind through Listing, per-record processing and commit.
// Records are processed strictly in order, each in its own unit of work. A record whose commit
// fails transiently is retried in a fresh unit of work; any other per-record failure is
// reported and the run moves on. Critical failures and the error-rate breaker stop the run.
type Executor struct {
	source      integration.CatalogSource
	scope       TransactionScope
	isTransient TransientClassifier
	settings    Settings
	metrics     *telemetry.ImportMetrics
}

// NewExecutor creates an Executor
func NewExecutor(
	source integration.CatalogSource,
	scope TransactionScope,
	isTransient TransientClassifier,
	settings Settings,
	metrics *telemetry.ImportMetrics,
) *Executor {
	if isTransient == nil {
		isTransient = func(error) bool { return false }
	}
	return &Executor{
		source:      source,
		scope:       scope,
		isTransient: isTransient,
		settings:    settings,
		metrics:     metrics,
	}
}

// Run imports one bounded page of p's resource and returns the run summary.
// The summary is returned for every terminal state.
func (e *Executor) Run(ctx context.Context, p RecordProcessor, opts RunOptions) bulk.RunSummary {
	kind := p.Kind()
	rep := NewReporter(kind, e.settings, e.metrics)
	breaker := e.settings.Breaker(kind)

	ids, err := e.list(ctx, p.Resource(), opts)
	if err != nil {
		rep.RecordListingFailure(ctx, err)
		return rep.Finish(ctx, bulk.RunStatusFailed, fmt.Sprintf("listing %s failed: %v", p.Resource(), err))
	}
	rep.Start(ctx, len(ids))

	if err := p.Begin(ctx, e.scope); err != nil {
		rep.RecordListingFailure(ctx, err)
		return rep.Finish(ctx, bulk.RunStatusFailed, fmt.Sprintf("preparing %s run failed: %v", kind, err))
	}

	if planner, ok := p.(Planner); ok {
		ordered, rejected, err := planner.Plan(ctx, ids)
		if err != nil {
			rep.RecordListingFailure(ctx, err)
			return rep.Finish(ctx, bulk.RunStatusFailed, fmt.Sprintf("planning %s run failed: %v", kind, err))
		}
		rep.Exclude(ctx, len(ids)-len(ordered)-len(rejected))
		for _, o := range rejected {
			rep.Record(ctx, o, 0)
			if status, reason, stop := e.checkStop(rep, o, breaker); stop {
				return rep.Finish(ctx, status, reason)
			}
		}
		ids = ordered
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return rep.Finish(ctx, bulk.RunStatusFailed, "run cancelled: "+err.Error())
		}

		start := time.Now()
		o := e.processRecord(ctx, p, id)
		rep.Record(ctx, o, time.Since(start))

		if status, reason, stop := e.checkStop(rep, o, breaker); stop {
			return rep.Finish(ctx, status, reason)
		}
	}

	return rep.Finish(ctx, bulk.RunStatusCompleted, "")
}

func (e *Executor) checkStop(rep *Reporter, o bulk.Outcome, breaker BreakerSettings) (bulk.RunStatus, string, bool) {
	if o.IsFailure() && o.Class.StopsRun() {
		return bulk.RunStatusFailed, fmt.Sprintf("critical failure on record %d in phase %s: %s", o.RecordID, o.Phase, o.Message()), true
	}
	s := rep.Summary()
	if breaker.Trips(s.Errors, s.Processed) {
		return bulk.RunStatusHaltedOnErrorRate, fmt.Sprintf("error ratio %.1f%% (%d of %d) exceeded %.1f%%",
			s.ErrorRatio()*100, s.Errors, s.Processed, breaker.Threshold*100), true
	}
	return "", "", false
}

// list obtains the bounded page of ids for this run
func (e *Executor) list(ctx context.Context, resource integration.Resource, opts RunOptions) ([]int64, error) {
	limit := opts.Limit
	if limit <= 0 || (e.settings.MaxRecordsPerRun > 0 && limit > e.settings.MaxRecordsPerRun) {
		limit = e.settings.MaxRecordsPerRun
	}
	pageSize := e.settings.PageSize
	if limit > 0 && (pageSize <= 0 || limit < pageSize) {
		pageSize = limit
	}

	pager := integration.NewPager(e.source, resource, pageSize,
		integration.WithStartOffset(opts.Offset),
		integration.WithMaxItems(limit))
	return pager.Collect(ctx)
}

// processRecord runs one record through fetch, mapping, relationship checks and commit.
// Panics are converted into a Critical outcome.
func (e *Executor) processRecord(ctx context.Context, p RecordProcessor, id int64) (out bulk.Outcome) {
	phase := bulk.PhaseFetch
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).Error("Panic while processing record",
				zap.Int64("record_id", id), zap.Any("panic", r), zap.Stack("stack"))
			out = bulk.Failed(id, phase, bulk.NewRecordError(bulk.ClassCritical, fmt.Errorf("panic: %v", r)))
		}
	}()

	prep, err := p.Prepare(ctx, id)
	if err != nil {
		return bulk.Failed(id, phaseOf(err, bulk.PhaseFetch), err)
	}
	if prep.Skip {
		return bulk.Skipped(id, prep.Warnings...)
	}

	phase = bulk.PhaseCommit
	change, attempts, err := e.commit(ctx, id, prep)
	warnings := append(append([]bulk.Warning(nil), prep.Warnings...), change.Warnings...)
	if err != nil {
		o := bulk.Failed(id, phaseOf(err, bulk.PhaseCommit), err, warnings...)
		o.Attempts = attempts
		return o
	}
	if change.AfterCommit != nil {
		change.AfterCommit()
	}

	return bulk.Outcome{RecordID: id, Kind: change.Kind, Attempts: attempts, Warnings: warnings}
}

// commit applies prep in a unit of work, retrying transient storage failures in a fresh unit
func (e *Executor) commit(ctx context.Context, id int64, prep *Prepared) (Change, int, error) {
	var (
		change   Change
		attempts int
	)

	operation := func() error {
		attempts++
		var c Change
		err := e.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			var applyErr error
			c, applyErr = prep.Apply(ctx, repos)
			return applyErr
		})
		if err == nil {
			change = c
			return nil
		}
		if ctx.Err() == nil && e.isTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		logger.FromContext(ctx).Warn("Transient storage failure, retrying record",
			zap.Int64("record_id", id),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(operation, e.commitBackOff(ctx), notify)
	if err != nil && e.isTransient(err) && !errors.Is(err, context.Canceled) {
		err = inPhase(bulk.PhaseCommit, bulk.NewRecordError(bulk.ClassTransientStorageFailure,
			fmt.Errorf("gave up after %d attempt(s): %w", attempts, err)))
	}
	return change, attempts, err
}

func (e *Executor) commitBackOff(ctx context.Context) backoff.BackOff {
	attempts := e.settings.CommitRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.settings.CommitRetryInitial
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Second
	}
	b.Multiplier = e.settings.CommitRetryMultiplier
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}
