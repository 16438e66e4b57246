package bulk

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/importer/internal/domain/integration"
	"github.com/erp/importer/internal/domain/shared"
)

// FailureClass is the classified reason of a failed or degraded record
type FailureClass string

const (
	ClassTimeout                       FailureClass = "Timeout"
	ClassConnectionError               FailureClass = "ConnectionError"
	ClassHTTPError                     FailureClass = "HttpError"
	ClassMalformedData                 FailureClass = "MalformedData"
	ClassMissingParent                 FailureClass = "MissingParent"
	ClassCyclicHierarchy               FailureClass = "CyclicHierarchy"
	ClassReferentialIntegrityViolation FailureClass = "ReferentialIntegrityViolation"
	ClassTransientStorageFailure       FailureClass = "TransientStorageFailure"
	ClassCritical                      FailureClass = "Critical"
)

var remediationHints = map[FailureClass]string{
	ClassTimeout:                       "The source answered too slowly. Lower the per-run record cap or raise the request timeouts, then run again.",
	ClassConnectionError:               "The source could not be reached. Check the shop URL, DNS and firewall rules, then run the connection test.",
	ClassHTTPError:                     "The source rejected the request. Verify the API key and that the webservice grants GET on this resource.",
	ClassMalformedData:                 "The source returned an unexpected document (often an HTML error page). Check that the webservice is enabled and the URL points at the shop root.",
	ClassMissingParent:                 "A parent category is missing in the source. The category was placed at the root; fix the parent in the source and re-run to move it.",
	ClassCyclicHierarchy:               "The category parent chain loops or is too deep. Fix the parent of the reported category in the source.",
	ClassReferentialIntegrityViolation: "A referenced record does not exist in the target relation. Import the referenced entity kind first, then re-run.",
	ClassTransientStorageFailure:       "The target database rejected the write temporarily. Re-run the import; persistent failures point at locks or connection limits.",
	ClassCritical:                      "An unexpected error stopped the run. Inspect the logs for the record and phase reported below.",
}

// Hint returns the fixed remediation hint for the class
func (c FailureClass) Hint() string {
	if h, ok := remediationHints[c]; ok {
		return h
	}
	return remediationHints[ClassCritical]
}

// StopsRun reports whether a failure of this class aborts the whole run
func (c FailureClass) StopsRun() bool {
	return c == ClassCritical
}

// IsSourceUnavailable reports whether the class means the source could not serve the call
func (c FailureClass) IsSourceUnavailable() bool {
	return c == ClassTimeout || c == ClassConnectionError
}

// RecordError pins a classification onto an error
type RecordError struct {
	Class FailureClass
	Err   error
}

func (e *RecordError) Error() string {
	if e.Err == nil {
		return string(e.Class)
	}
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// NewRecordError classifies err explicitly
func NewRecordError(class FailureClass, err error) *RecordError {
	return &RecordError{Class: class, Err: err}
}

// Classify maps an error onto the failure taxonomy.
// Errors that match nothing known are Critical.
func Classify(err error) FailureClass {
	if err == nil {
		return ""
	}

	var re *RecordError
	if errors.As(err, &re) {
		return re.Class
	}

	switch {
	case errors.Is(err, context.Canceled):
		return ClassCritical
	case errors.Is(err, integration.ErrSourceTimeout), errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case errors.Is(err, integration.ErrSourceConnection), errors.Is(err, integration.ErrSourceUnavailable):
		return ClassConnectionError
	case errors.Is(err, integration.ErrSourceMalformed):
		return ClassMalformedData
	case errors.Is(err, integration.ErrSourceHTTP),
		errors.Is(err, integration.ErrSourceAuthFailed),
		errors.Is(err, integration.ErrSourceNotFound):
		return ClassHTTPError
	}

	var de *shared.DomainError
	if errors.As(err, &de) {
		if de.Code == shared.ErrNotFound.Code {
			return ClassReferentialIntegrityViolation
		}
		return ClassMalformedData
	}

	return ClassCritical
}
