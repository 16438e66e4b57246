package bulk

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/importer/internal/domain/shared"
)

// ImportRun is the persisted record of one import run
type ImportRun struct {
	shared.BaseAggregateRoot
	RunSummary
	Limit       int
	Offset      int
	CompletedAt *time.Time
}

// NewImportRun creates a running import run
func NewImportRun(kind EntityKind, limit, offset int) (*ImportRun, error) {
	if !kind.IsValid() {
		return nil, shared.ErrUnknownKind.WithMessage(fmt.Sprintf("Invalid entity kind: %s", kind))
	}
	if limit < 0 || offset < 0 {
		return nil, shared.NewDomainError("INVALID_RANGE", "Limit and offset cannot be negative")
	}

	run := &ImportRun{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		RunSummary: RunSummary{
			Kind:        kind,
			Status:      RunStatusRunning,
			ClassCounts: make(map[FailureClass]int),
			Samples:     make([]ErrorSample, 0),
		},
		Limit:  limit,
		Offset: offset,
	}
	run.StartedAt = run.CreatedAt

	return run, nil
}

// Finish stores the final summary. The summary status must be terminal.
func (r *ImportRun) Finish(summary RunSummary) error {
	if r.Status != RunStatusRunning {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot finish run from state: %s", r.Status))
	}
	if !summary.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot finish run with non-terminal status: %s", summary.Status))
	}

	kind, startedAt := r.Kind, r.StartedAt
	r.RunSummary = summary
	r.Kind = kind
	if r.StartedAt.IsZero() {
		r.StartedAt = startedAt
	}
	now := time.Now()
	if r.FinishedAt.IsZero() {
		r.FinishedAt = now
	}
	r.CompletedAt = &r.FinishedAt
	r.UpdatedAt = now
	r.IncrementVersion()

	return nil
}

// Abort marks a running run as failed with reason
func (r *ImportRun) Abort(reason string) error {
	if r.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot abort run from terminal state: %s", r.Status))
	}
	r.Status = RunStatusFailed
	r.Reason = reason
	now := time.Now()
	r.FinishedAt = now
	r.CompletedAt = &now
	r.UpdatedAt = now
	r.IncrementVersion()
	return nil
}

// IsHalted returns true if the run stopped on the error-rate breaker
func (r *ImportRun) IsHalted() bool {
	return r.Status == RunStatusHaltedOnErrorRate
}

// SamplesJSON returns the error samples as a JSON string
func (r *ImportRun) SamplesJSON() (string, error) {
	if len(r.Samples) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(r.Samples)
	if err != nil {
		return "", fmt.Errorf("failed to marshal error samples: %w", err)
	}
	return string(data), nil
}

// SetSamplesFromJSON parses error samples from a JSON string
func (r *ImportRun) SetSamplesFromJSON(jsonStr string) error {
	if jsonStr == "" || jsonStr == "[]" {
		r.Samples = make([]ErrorSample, 0)
		return nil
	}
	var samples []ErrorSample
	if err := json.Unmarshal([]byte(jsonStr), &samples); err != nil {
		return fmt.Errorf("failed to unmarshal error samples: %w", err)
	}
	r.Samples = samples
	return nil
}

// ClassCountsJSON returns the per-class counters as a JSON string
func (r *ImportRun) ClassCountsJSON() (string, error) {
	if len(r.ClassCounts) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(r.ClassCounts)
	if err != nil {
		return "", fmt.Errorf("failed to marshal class counts: %w", err)
	}
	return string(data), nil
}

// SetClassCountsFromJSON parses per-class counters from a JSON string
func (r *ImportRun) SetClassCountsFromJSON(jsonStr string) error {
	r.ClassCounts = make(map[FailureClass]int)
	if jsonStr == "" || jsonStr == "{}" {
		return nil
	}
	if err := json.Unmarshal([]byte(jsonStr), &r.ClassCounts); err != nil {
		return fmt.Errorf("failed to unmarshal class counts: %w", err)
	}
	return nil
}
