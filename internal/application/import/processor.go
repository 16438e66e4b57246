package importapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/domain/integration"
)

// RecordProcessor maps and writes the records of one entity kind.
// Prepare does all source I/O outside any transaction; the returned Apply runs inside
// one unit of work and may be invoked again if that unit fails transiently.
type RecordProcessor interface {
	Kind() bulk.EntityKind
	Resource() integration.Resource

	// Begin is called once per run, after listing and before the first record
	Begin(ctx context.Context, scope TransactionScope) error

	// Prepare fetches and maps one source record
	Prepare(ctx context.Context, id int64) (*Prepared, error)
}

// Planner is implemented by processors that reorder the listed ids before processing.
// Rejected ids are reported with the returned outcomes and never prepared.
type Planner interface {
	Plan(ctx context.Context, ids []int64) (ordered []int64, rejected []bulk.Outcome, err error)
}

// Prepared is a mapped source record ready to be written
type Prepared struct {
	// Warnings raised while fetching and mapping
	Warnings []bulk.Warning

	// Skip ends the record without a write, as SkippedDuplicate
	Skip bool

	// Apply writes the record through repos
	Apply func(ctx context.Context, repos TransactionalRepositories) (Change, error)
}

// Change describes what Apply did
type Change struct {
	Kind     bulk.OutcomeKind
	Warnings []bulk.Warning

	// AfterCommit runs once the unit of work committed
	AfterCommit func()
}

func skipped(warnings ...bulk.Warning) *Prepared {
	return &Prepared{Skip: true, Warnings: warnings}
}

// changeFor picks Created / Updated / SkippedDuplicate from what happened to a record
func changeFor(created, changed bool) bulk.OutcomeKind {
	switch {
	case created:
		return bulk.OutcomeCreated
	case changed:
		return bulk.OutcomeUpdated
	default:
		return bulk.OutcomeSkippedDuplicate
	}
}

// phaseError pins the pipeline phase onto an error
type phaseError struct {
	phase bulk.Phase
	err   error
}

func (e *phaseError) Error() string { return e.err.Error() }
func (e *phaseError) Unwrap() error { return e.err }

func inPhase(phase bulk.Phase, err error) error {
	if err == nil {
		return nil
	}
	var pe *phaseError
	if errors.As(err, &pe) {
		return err
	}
	return &phaseError{phase: phase, err: err}
}

func phaseOf(err error, fallback bulk.Phase) bulk.Phase {
	var pe *phaseError
	if errors.As(err, &pe) {
		return pe.phase
	}
	return fallback
}

func warning(phase bulk.Phase, class bulk.FailureClass, format string, args ...any) bulk.Warning {
	return bulk.Warning{Phase: phase, Class: class, Message: fmt.Sprintf(format, args...)}
}

func classified(class bulk.FailureClass, format string, args ...any) error {
	return bulk.NewRecordError(class, fmt.Errorf(format, args...))
}
