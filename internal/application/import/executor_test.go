package importapp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDeadlock = errors.New("deadlock detected")

func isTestTransient(err error) bool { return errors.Is(err, errDeadlock) }

// scriptedProcessor replays a scripted behaviour per record id
type scriptedProcessor struct {
	prepareErr map[int64]error
	applyErrs  map[int64][]error
	panics     map[int64]bool
	skip       map[int64]bool
	applied    map[int64]int
	committed  []int64
	beginErr   error
}

func newScriptedProcessor() *scriptedProcessor {
	return &scriptedProcessor{
		prepareErr: make(map[int64]error),
		applyErrs:  make(map[int64][]error),
		panics:     make(map[int64]bool),
		skip:       make(map[int64]bool),
		applied:    make(map[int64]int),
	}
}

func (p *scriptedProcessor) Kind() bulk.EntityKind          { return bulk.EntityProducts }
func (p *scriptedProcessor) Resource() integration.Resource { return integration.ResourceProducts }

func (p *scriptedProcessor) Begin(ctx context.Context, scope TransactionScope) error {
	return p.beginErr
}

func (p *scriptedProcessor) Prepare(ctx context.Context, id int64) (*Prepared, error) {
	if p.panics[id] {
		panic("nil map write")
	}
	if err := p.prepareErr[id]; err != nil {
		return nil, err
	}
	if p.skip[id] {
		return skipped(), nil
	}
	return &Prepared{
		Apply: func(ctx context.Context, repos TransactionalRepositories) (Change, error) {
			n := p.applied[id]
			p.applied[id]++
			if errs := p.applyErrs[id]; n < len(errs) && errs[n] != nil {
				return Change{}, errs[n]
			}
			return Change{
				Kind:        bulk.OutcomeCreated,
				AfterCommit: func() { p.committed = append(p.committed, id) },
			}, nil
		},
	}, nil
}

func fastSettings() Settings {
	s := DefaultSettings()
	s.CommitRetryInitial = time.Millisecond
	s.MaxRecordsPerRun = 100
	s.PageSize = 7
	return s
}

func sourceWithProducts(n int) *FakeSource {
	source := NewFakeSource()
	for id := int64(1); id <= int64(n); id++ {
		source.AddProduct(&integration.SourceProduct{ID: id, Name: fmt.Sprintf("P%d", id)})
	}
	return source
}

func newTestExecutor(source integration.CatalogSource, settings Settings) *Executor {
	return NewExecutor(source, NewNoOpTransactionScope(nil), isTestTransient, settings, nil)
}

func TestExecutor_CompletesRun(t *testing.T) {
	ctx, _ := observedContext()
	p := newScriptedProcessor()
	p.skip[3] = true

	summary := newTestExecutor(sourceWithProducts(5), fastSettings()).Run(ctx, p, RunOptions{})

	assert.Equal(t, bulk.RunStatusCompleted, summary.Status)
	assert.Equal(t, 5, summary.Listed)
	assert.Equal(t, 5, summary.Processed)
	assert.Equal(t, 4, summary.Created)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, []int64{1, 2, 4, 5}, p.committed)
}

func TestExecutor_HonoursLimitAndOffset(t *testing.T) {
	ctx, _ := observedContext()
	settings := fastSettings()
	settings.MaxRecordsPerRun = 3

	p := newScriptedProcessor()
	summary := newTestExecutor(sourceWithProducts(10), settings).Run(ctx, p, RunOptions{Limit: 50, Offset: 4})

	assert.Equal(t, 3, summary.Listed, "limit is capped by the per-run maximum")
	assert.Equal(t, []int64{5, 6, 7}, p.committed)
}

func TestExecutor_RetriesTransientCommitFailures(t *testing.T) {
	ctx, logs := observedContext()
	p := newScriptedProcessor()
	p.applyErrs[2] = []error{errDeadlock, errDeadlock}

	summary := newTestExecutor(sourceWithProducts(3), fastSettings()).Run(ctx, p, RunOptions{})

	assert.Equal(t, bulk.RunStatusCompleted, summary.Status)
	assert.Equal(t, 3, summary.Created)
	assert.Equal(t, 3, p.applied[2])
	assert.Equal(t, 2, logs.FilterMessage("Transient storage failure, retrying record").Len())
}

func TestExecutor_GivesUpAfterRetryBudget(t *testing.T) {
	ctx, _ := observedContext()
	p := newScriptedProcessor()
	p.applyErrs[2] = []error{errDeadlock, errDeadlock, errDeadlock}

	summary := newTestExecutor(sourceWithProducts(3), fastSettings()).Run(ctx, p, RunOptions{})

	assert.Equal(t, bulk.RunStatusCompleted, summary.Status, "the run continues after a record gives up")
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 3, p.applied[2])
	assert.Equal(t, 1, summary.ClassCounts[bulk.ClassTransientStorageFailure])
	require.Len(t, summary.Samples, 1)
	assert.Equal(t, bulk.PhaseCommit, summary.Samples[0].Phase)
	assert.Equal(t, []int64{1, 3}, p.committed)
}

func TestExecutor_NonTransientCommitFailureIsNotRetried(t *testing.T) {
	ctx, _ := observedContext()
	p := newScriptedProcessor()
	p.applyErrs[1] = []error{inPhase(bulk.PhaseRelationship, classified(bulk.ClassReferentialIntegrityViolation, "missing"))}

	summary := newTestExecutor(sourceWithProducts(2), fastSettings()).Run(ctx, p, RunOptions{})

	assert.Equal(t, 1, p.applied[1])
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, bulk.PhaseRelationship, summary.Samples[0].Phase)
	assert.Equal(t, bulk.RunStatusCompleted, summary.Status)
}

func TestExecutor_CriticalFailureStopsRun(t *testing.T) {
	ctx, _ := observedContext()
	p := newScriptedProcessor()
	p.applyErrs[2] = []error{errors.New("disk full")}

	summary := newTestExecutor(sourceWithProducts(5), fastSettings()).Run(ctx, p, RunOptions{})

	assert.Equal(t, bulk.RunStatusFailed, summary.Status)
	assert.Equal(t, 2, summary.Processed)
	assert.Contains(t, summary.Reason, "record 2")
	assert.Equal(t, []int64{1}, p.committed)
}

func TestExecutor_PanicIsCritical(t *testing.T) {
	ctx, logs := observedContext()
	p := newScriptedProcessor()
	p.panics[1] = true

	summary := newTestExecutor(sourceWithProducts(3), fastSettings()).Run(ctx, p, RunOptions{})

	assert.Equal(t, bulk.RunStatusFailed, summary.Status)
	assert.Equal(t, 1, summary.ClassCounts[bulk.ClassCritical])
	assert.Equal(t, 1, logs.FilterMessage("Panic while processing record").Len())
}

func TestExecutor_BreakerHaltsRun(t *testing.T) {
	ctx, _ := observedContext()
	settings := fastSettings()
	settings.Breakers = map[bulk.EntityKind]BreakerSettings{bulk.EntityProducts: {MinSample: 4, Threshold: 0.25}}

	source := sourceWithProducts(10)
	p := newScriptedProcessor()
	for _, id := range []int64{2, 3} {
		p.prepareErr[id] = fmt.Errorf("%w: product %d", integration.ErrSourceTimeout, id)
	}

	summary := newTestExecutor(source, settings).Run(ctx, p, RunOptions{})

	assert.Equal(t, bulk.RunStatusHaltedOnErrorRate, summary.Status)
	assert.Equal(t, 4, summary.Processed, "breaker waits for the minimum sample")
	assert.Equal(t, 2, summary.Errors)
	assert.Contains(t, summary.Reason, "50.0%")
	assert.Equal(t, 2, summary.ClassCounts[bulk.ClassTimeout])
}

func TestExecutor_ListingFailure(t *testing.T) {
	ctx, _ := observedContext()
	source := NewFakeSource()
	source.ListErr = fmt.Errorf("%w: dial tcp", integration.ErrSourceConnection)

	summary := newTestExecutor(source, fastSettings()).Run(ctx, newScriptedProcessor(), RunOptions{})

	assert.Equal(t, bulk.RunStatusFailed, summary.Status)
	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 1, summary.ClassCounts[bulk.ClassConnectionError])
	assert.Contains(t, summary.Render(), "Diagnosis")
}

func TestExecutor_EmptyListingCompletes(t *testing.T) {
	ctx, _ := observedContext()

	summary := newTestExecutor(NewFakeSource(), fastSettings()).Run(ctx, newScriptedProcessor(), RunOptions{})

	assert.Equal(t, bulk.RunStatusCompleted, summary.Status)
	assert.Contains(t, summary.Diagnosis(), "zero records")
}

func TestExecutor_CancelledContextStopsRun(t *testing.T) {
	ctx, _ := observedContext()
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	p := newScriptedProcessor()

	summary := newTestExecutor(sourceWithProducts(3), fastSettings()).Run(ctx, p, RunOptions{})

	assert.Equal(t, bulk.RunStatusFailed, summary.Status)
	assert.Contains(t, summary.Reason, "cancel")
	assert.Empty(t, p.committed)
}
