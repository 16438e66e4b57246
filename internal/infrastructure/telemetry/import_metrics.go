package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when no meter is supplied.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// ImportMetrics records per-record outcomes and per-run statuses of catalog imports.
type ImportMetrics struct {
	logger *zap.Logger

	recordsTotal   *Counter
	failuresTotal  *Counter
	recordDuration *Histogram
	runsTotal      *Counter
}

// NewImportMetrics registers the import instruments on meter.
func NewImportMetrics(meter metric.Meter, logger *zap.Logger) (*ImportMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &ImportMetrics{logger: logger}
	var err error

	m.recordsTotal, err = NewCounter(meter,
		"catalog_import_records_total",
		"Records processed by catalog imports, by outcome",
		"{record}",
	)
	if err != nil {
		return nil, err
	}

	m.failuresTotal, err = NewCounter(meter,
		"catalog_import_failures_total",
		"Failed records by failure class",
		"{record}",
	)
	if err != nil {
		return nil, err
	}

	m.recordDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "catalog_import_record_duration_seconds",
		Description: "Time spent on one record's unit of work",
		Unit:        "s",
		Boundaries:  RecordDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	m.runsTotal, err = NewCounter(meter,
		"catalog_import_runs_total",
		"Finished import runs by terminal status",
		"{run}",
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordOutcome counts one record. class is empty for successful records.
func (m *ImportMetrics) RecordOutcome(ctx context.Context, kind, outcome, class string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.recordsTotal.Inc(ctx, AttrKind.String(kind), AttrOutcome.String(outcome))
	m.recordDuration.RecordDuration(ctx, elapsed, AttrKind.String(kind), AttrOutcome.String(outcome))
	if class != "" {
		m.failuresTotal.Inc(ctx, AttrKind.String(kind), AttrClass.String(class))
	}
}

// RecordRun counts a finished run.
func (m *ImportMetrics) RecordRun(ctx context.Context, kind, status string) {
	if m == nil {
		return
	}
	m.runsTotal.Inc(ctx, AttrKind.String(kind), AttrStatus.String(status))
	m.logger.Debug("Import run recorded", zap.String("kind", kind), zap.String("status", status))
}
