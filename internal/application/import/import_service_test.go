package importapp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockImportRunRepository is a mock implementation of bulk.ImportRunRepository
type MockImportRunRepository struct {
	mock.Mock
}

func (m *MockImportRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*bulk.ImportRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bulk.ImportRun), args.Error(1)
}

func (m *MockImportRunRepository) FindAll(ctx context.Context, filter bulk.ImportRunFilter, page, pageSize int) (*bulk.ImportRunListResult, error) {
	args := m.Called(ctx, filter, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bulk.ImportRunListResult), args.Error(1)
}

func (m *MockImportRunRepository) FindRunning(ctx context.Context) ([]*bulk.ImportRun, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*bulk.ImportRun), args.Error(1)
}

func (m *MockImportRunRepository) Save(ctx context.Context, run *bulk.ImportRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

// MockRunLock is a mock implementation of RunLock
type MockRunLock struct {
	mock.Mock
	released int
}

func (m *MockRunLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	args := m.Called(ctx, key, ttl)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return func(context.Context) error {
		m.released++
		return nil
	}, nil
}

func newServiceUnderTest(source *FakeSource, runs bulk.ImportRunRepository, lock RunLock) *ImportService {
	settings := fastSettings()
	return NewImportService(ImportServiceDeps{
		Source: source,
		Scope:  NewNoOpTransactionScope(nil),
		Runs:   runs,
		Lock:   lock,
	}, settings)
}

func TestImportService_Run(t *testing.T) {
	t.Run("holds the lock and saves the run twice", func(t *testing.T) {
		runs := new(MockImportRunRepository)
		lock := new(MockRunLock)
		var saved []bulk.RunStatus
		runs.On("Save", mock.Anything, mock.AnythingOfType("*bulk.ImportRun")).
			Run(func(args mock.Arguments) {
				saved = append(saved, args.Get(1).(*bulk.ImportRun).Status)
			}).Return(nil)
		lock.On("TryAcquire", mock.Anything, RunLockKey, mock.AnythingOfType("time.Duration")).Return(nil)

		// the source lists nothing, so the run completes without touching storage
		run, err := newServiceUnderTest(NewFakeSource(), runs, lock).
			Run(context.Background(), bulk.EntityCustomers, RunOptions{Limit: 5})

		require.NoError(t, err)
		assert.Equal(t, bulk.RunStatusCompleted, run.Status)
		assert.Equal(t, 5, run.Limit)
		assert.NotNil(t, run.CompletedAt)
		assert.Equal(t, []bulk.RunStatus{bulk.RunStatusRunning, bulk.RunStatusCompleted}, saved)
		assert.Equal(t, 1, lock.released)
		lock.AssertExpectations(t)
	})

	t.Run("concurrent run is rejected before anything is saved", func(t *testing.T) {
		runs := new(MockImportRunRepository)
		lock := new(MockRunLock)
		lock.On("TryAcquire", mock.Anything, RunLockKey, mock.Anything).Return(shared.ErrConcurrentRun)

		run, err := newServiceUnderTest(NewFakeSource(), runs, lock).
			Run(context.Background(), bulk.EntityProducts, RunOptions{})

		assert.Nil(t, run)
		assert.ErrorIs(t, err, shared.ErrConcurrentRun)
		runs.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("initial save failure releases the lock", func(t *testing.T) {
		runs := new(MockImportRunRepository)
		lock := new(MockRunLock)
		lock.On("TryAcquire", mock.Anything, RunLockKey, mock.Anything).Return(nil)
		runs.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		_, err := newServiceUnderTest(NewFakeSource(), runs, lock).
			Run(context.Background(), bulk.EntityStock, RunOptions{})

		assert.ErrorContains(t, err, "disk full")
		assert.Equal(t, 1, lock.released)
	})

	t.Run("negative limit is rejected", func(t *testing.T) {
		_, err := newServiceUnderTest(NewFakeSource(), new(MockImportRunRepository), nil).
			Run(context.Background(), bulk.EntityStock, RunOptions{Limit: -1})
		assert.Error(t, err)
	})
}

func TestImportService_ListRuns(t *testing.T) {
	runs := new(MockImportRunRepository)
	empty := &bulk.ImportRunListResult{}
	kind := bulk.EntityProducts
	runs.On("FindAll", mock.Anything, bulk.ImportRunFilter{Kind: &kind}, 1, 20).Return(empty, nil).Once()
	runs.On("FindAll", mock.Anything, bulk.ImportRunFilter{}, 3, 100).Return(empty, nil).Once()
	service := newServiceUnderTest(NewFakeSource(), runs, nil)

	_, err := service.ListRuns(context.Background(), ListRunsFilter{Kind: "products", Status: "bogus"}, 0, 500)
	require.NoError(t, err)
	_, err = service.ListRuns(context.Background(), ListRunsFilter{Kind: "orders"}, 3, 100)
	require.NoError(t, err)

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	_, err = service.ListRuns(context.Background(), ListRunsFilter{StartedFrom: &from, StartedTo: &to}, 1, 20)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	runs.AssertExpectations(t)
}

func TestImportService_RecoverStaleJoinsErrors(t *testing.T) {
	runs := new(MockImportRunRepository)
	ok, _ := bulk.NewImportRun(bulk.EntityProducts, 0, 0)
	bad, _ := bulk.NewImportRun(bulk.EntityStock, 0, 0)
	runs.On("FindRunning", mock.Anything).Return([]*bulk.ImportRun{ok, bad}, nil)
	runs.On("Save", mock.Anything, ok).Return(nil)
	runs.On("Save", mock.Anything, bad).Return(errors.New("locked"))

	recovered, err := newServiceUnderTest(NewFakeSource(), runs, nil).RecoverStale(context.Background())

	assert.Equal(t, 1, recovered)
	assert.ErrorContains(t, err, "locked")
	assert.Equal(t, bulk.RunStatusFailed, ok.Status)
}

func TestImportService_TestConnection(t *testing.T) {
	ctx, logs := observedContext()
	source := NewFakeSource()

	report, err := newServiceUnderTest(source, new(MockImportRunRepository), nil).TestConnection(ctx)

	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, 1, source.CallCount("CheckConnection"))
	assert.Equal(t, 1, logs.FilterMessage("Source connection test passed").Len())
}
