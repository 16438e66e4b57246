package bulk

// OutcomeKind is the result of processing one source record
type OutcomeKind string

const (
	OutcomeCreated          OutcomeKind = "created"
	OutcomeUpdated          OutcomeKind = "updated"
	OutcomeSkippedDuplicate OutcomeKind = "skipped_duplicate"
	OutcomeFailed           OutcomeKind = "failed"
)

// Phase names the pipeline step a failure or warning happened in
type Phase string

const (
	PhaseListing      Phase = "listing"
	PhaseFetch        Phase = "fetch"
	PhaseMapping      Phase = "mapping"
	PhaseHierarchy    Phase = "hierarchy"
	PhaseRelationship Phase = "relationship"
	PhaseCommit       Phase = "commit"
)

// Warning is a non-fatal anomaly attached to a record that was still written
type Warning struct {
	Phase   Phase        `json:"phase"`
	Class   FailureClass `json:"class"`
	Message string       `json:"message"`
}

// Outcome is the result of processing one source record
type Outcome struct {
	RecordID int64
	Kind     OutcomeKind
	Phase    Phase
	Class    FailureClass
	Err      error
	Attempts int
	Warnings []Warning
}

// Created builds a Created outcome
func Created(recordID int64, warnings ...Warning) Outcome {
	return Outcome{RecordID: recordID, Kind: OutcomeCreated, Warnings: warnings}
}

// Updated builds an Updated outcome
func Updated(recordID int64, warnings ...Warning) Outcome {
	return Outcome{RecordID: recordID, Kind: OutcomeUpdated, Warnings: warnings}
}

// Skipped builds a SkippedDuplicate outcome
func Skipped(recordID int64, warnings ...Warning) Outcome {
	return Outcome{RecordID: recordID, Kind: OutcomeSkippedDuplicate, Warnings: warnings}
}

// Failed builds a Failed outcome, classifying err
func Failed(recordID int64, phase Phase, err error, warnings ...Warning) Outcome {
	return Outcome{
		RecordID: recordID,
		Kind:     OutcomeFailed,
		Phase:    phase,
		Class:    Classify(err),
		Err:      err,
		Warnings: warnings,
	}
}

// IsFailure reports whether the record was not written
func (o Outcome) IsFailure() bool {
	return o.Kind == OutcomeFailed
}

// Message returns the error text of a failed outcome
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
