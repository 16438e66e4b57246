package importapp

import (
	"context"
	"time"

	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/infrastructure/logger"
	"github.com/erp/importer/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Reporter aggregates per-record outcomes of one run into a RunSummary.
// It logs progress at a fixed cadence and warns once when the error ratio crosses
// the early-warning threshold.
type Reporter struct {
	progressEvery int
	earlyWarning  float64
	maxSamples    int
	metrics       *telemetry.ImportMetrics

	summary     bulk.RunSummary
	earlyWarned bool
}

// NewReporter creates a reporter for one run of kind
func NewReporter(kind bulk.EntityKind, settings Settings, metrics *telemetry.ImportMetrics) *Reporter {
	progressEvery := settings.ProgressEvery
	if progressEvery <= 0 {
		progressEvery = 10
	}
	maxSamples := settings.MaxErrorSamples
	if maxSamples <= 0 {
		maxSamples = 20
	}
	return &Reporter{
		progressEvery: progressEvery,
		earlyWarning:  settings.EarlyWarningRatio,
		maxSamples:    maxSamples,
		metrics:       metrics,
		summary: bulk.RunSummary{
			Kind:        kind,
			Status:      bulk.RunStatusRunning,
			ClassCounts: make(map[bulk.FailureClass]int),
			Samples:     make([]bulk.ErrorSample, 0),
			StartedAt:   time.Now(),
		},
	}
}

// Start records the size of the listed page
func (r *Reporter) Start(ctx context.Context, listed int) {
	r.summary.Listed = listed
	logger.FromContext(ctx).Info("Import started", zap.Int("listed", listed))
}

// Exclude removes n listed records that were dropped before processing, such as reserved roots
func (r *Reporter) Exclude(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	r.summary.Listed = max(r.summary.Listed-n, 0)
	logger.FromContext(ctx).Info("Listed records excluded from the run", zap.Int("excluded", n), zap.Int("listed", r.summary.Listed))
}

// Record adds one record outcome
func (r *Reporter) Record(ctx context.Context, o bulk.Outcome, elapsed time.Duration) {
	log := logger.FromContext(ctx).With(zap.Int64("record_id", o.RecordID))
	s := &r.summary
	s.Processed++

	switch o.Kind {
	case bulk.OutcomeCreated:
		s.Created++
	case bulk.OutcomeUpdated:
		s.Updated++
	case bulk.OutcomeSkippedDuplicate:
		s.Skipped++
	case bulk.OutcomeFailed:
		s.Errors++
		s.ClassCounts[o.Class]++
		r.addSample(bulk.ErrorSample{
			Phase:    o.Phase,
			RecordID: o.RecordID,
			Class:    o.Class,
			Message:  o.Message(),
			Hint:     o.Class.Hint(),
		})
		log.Warn("Record failed",
			zap.String("phase", string(o.Phase)),
			zap.String("class", string(o.Class)),
			zap.Int("attempts", o.Attempts),
			zap.Error(o.Err))
	}

	for _, w := range o.Warnings {
		s.Warnings++
		s.ClassCounts[w.Class]++
		r.addSample(bulk.ErrorSample{
			Phase:    w.Phase,
			RecordID: o.RecordID,
			Class:    w.Class,
			Message:  w.Message,
			Hint:     w.Class.Hint(),
			Warning:  true,
		})
	}

	if !o.IsFailure() {
		log.Debug("Record imported", zap.String("outcome", string(o.Kind)), zap.Int("warnings", len(o.Warnings)))
	}
	r.metrics.RecordOutcome(ctx, string(s.Kind), string(o.Kind), string(o.Class), elapsed)

	if s.Processed%r.progressEvery == 0 || s.Processed == s.Listed {
		logger.FromContext(ctx).Info("Import progress",
			zap.Int("processed", s.Processed),
			zap.Int("listed", s.Listed),
			zap.Float64("percent", r.Percent()),
			zap.Int("imported", s.ImportedCount()),
			zap.Int("skipped", s.Skipped),
			zap.Int("errors", s.Errors))
	}

	if !r.earlyWarned && r.earlyWarning > 0 && s.Processed >= r.progressEvery && s.ErrorRatio() > r.earlyWarning {
		r.earlyWarned = true
		logger.FromContext(ctx).Warn("Import error ratio is high",
			zap.Float64("error_ratio", s.ErrorRatio()),
			zap.Float64("warning_threshold", r.earlyWarning),
			zap.Int("processed", s.Processed))
	}
}

// RecordListingFailure records a failure to obtain the page of ids
func (r *Reporter) RecordListingFailure(ctx context.Context, err error) {
	class := bulk.Classify(err)
	r.summary.ClassCounts[class]++
	r.addSample(bulk.ErrorSample{
		Phase:   bulk.PhaseListing,
		Class:   class,
		Message: err.Error(),
		Hint:    class.Hint(),
	})
	logger.FromContext(ctx).Error("Listing failed", zap.String("class", string(class)), zap.Error(err))
}

// Finish closes the summary with a terminal status
func (r *Reporter) Finish(ctx context.Context, status bulk.RunStatus, reason string) bulk.RunSummary {
	r.summary.Status = status
	r.summary.Reason = reason
	r.summary.FinishedAt = time.Now()
	r.metrics.RecordRun(ctx, string(r.summary.Kind), string(status))

	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.Int("processed", r.summary.Processed),
		zap.Int("created", r.summary.Created),
		zap.Int("updated", r.summary.Updated),
		zap.Int("skipped", r.summary.Skipped),
		zap.Int("errors", r.summary.Errors),
		zap.Int("warnings", r.summary.Warnings),
		zap.Duration("duration", r.summary.Duration()),
	}
	if reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	if status == bulk.RunStatusCompleted {
		logger.FromContext(ctx).Info("Import finished", fields...)
	} else {
		logger.FromContext(ctx).Warn("Import stopped", fields...)
	}
	return r.Summary()
}

// Summary returns a copy of the current summary
func (r *Reporter) Summary() bulk.RunSummary {
	s := r.summary
	s.ClassCounts = make(map[bulk.FailureClass]int, len(r.summary.ClassCounts))
	for k, v := range r.summary.ClassCounts {
		s.ClassCounts[k] = v
	}
	s.Samples = append([]bulk.ErrorSample(nil), r.summary.Samples...)
	return s
}

// Percent returns processed over listed, in percent
func (r *Reporter) Percent() float64 {
	if r.summary.Listed == 0 {
		return 100
	}
	return float64(r.summary.Processed) / float64(r.summary.Listed) * 100
}

// EarlyWarned reports whether the early-warning threshold was crossed
func (r *Reporter) EarlyWarned() bool {
	return r.earlyWarned
}

func (r *Reporter) addSample(sample bulk.ErrorSample) {
	if len(r.summary.Samples) < r.maxSamples {
		r.summary.Samples = append(r.summary.Samples, sample)
		return
	}
	r.summary.DroppedSamples++
}
