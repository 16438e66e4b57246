package bulk

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrorSample is one recorded failure or warning kept for the run report
type ErrorSample struct {
	Phase    Phase        `json:"phase"`
	RecordID int64        `json:"record_id"`
	Class    FailureClass `json:"class"`
	Message  string       `json:"message"`
	Hint     string       `json:"hint"`
	Warning  bool         `json:"warning,omitempty"`
}

// RunSummary aggregates the outcomes of one import run
type RunSummary struct {
	Kind           EntityKind           `json:"kind"`
	Status         RunStatus            `json:"status"`
	Listed         int                  `json:"listed"`
	Processed      int                  `json:"processed"`
	Created        int                  `json:"created"`
	Updated        int                  `json:"updated"`
	Skipped        int                  `json:"skipped"`
	Errors         int                  `json:"errors"`
	Warnings       int                  `json:"warnings"`
	ClassCounts    map[FailureClass]int `json:"class_counts"`
	Samples        []ErrorSample        `json:"samples"`
	DroppedSamples int                  `json:"dropped_samples"`
	Reason         string               `json:"reason,omitempty"`
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at"`
}

// ImportedCount returns the number of records written (created or updated)
func (s RunSummary) ImportedCount() int {
	return s.Created + s.Updated
}

// ErrorRatio returns errors over processed records
func (s RunSummary) ErrorRatio() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Processed)
}

// Duration returns how long the run took
func (s RunSummary) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Diagnosis explains a run that wrote nothing. It is empty when records were written.
func (s RunSummary) Diagnosis() string {
	if s.ImportedCount() > 0 {
		return ""
	}
	for _, sample := range s.Samples {
		if !sample.Warning {
			return fmt.Sprintf("nothing was written; first failure in phase %s, record %d: %s (%s)",
				sample.Phase, sample.RecordID, sample.Class, sample.Message)
		}
	}
	switch {
	case s.Reason != "":
		return "nothing was written; the run stopped: " + s.Reason
	case s.Listed == 0:
		return "nothing was written; the source listed zero records for this page. Check the offset and that the webservice exposes this resource"
	case s.Skipped == s.Processed:
		return "nothing was written; every record already matched the target (unchanged)"
	default:
		return "nothing was written and no failure was recorded; check the logs for this run"
	}
}

// Render returns a human-readable multi-line report of the run
func (s RunSummary) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Import of %s: %s\n", s.Kind, s.Status)
	pct := 100.0
	if s.Listed > 0 {
		pct = float64(s.Processed) / float64(s.Listed) * 100
	}
	fmt.Fprintf(&b, "  listed %d, processed %d (%.0f%%)\n", s.Listed, s.Processed, pct)
	fmt.Fprintf(&b, "  created %d, updated %d, skipped %d, errors %d, warnings %d\n",
		s.Created, s.Updated, s.Skipped, s.Errors, s.Warnings)
	if s.Processed > 0 {
		fmt.Fprintf(&b, "  error ratio %.1f%%\n", s.ErrorRatio()*100)
	}
	if d := s.Duration(); d > 0 {
		fmt.Fprintf(&b, "  duration %s\n", d.Round(time.Millisecond))
	}
	if s.Reason != "" {
		fmt.Fprintf(&b, "  reason: %s\n", s.Reason)
	}

	if len(s.ClassCounts) > 0 {
		b.WriteString("By class:\n")
		classes := make([]string, 0, len(s.ClassCounts))
		for c := range s.ClassCounts {
			classes = append(classes, string(c))
		}
		sort.Strings(classes)
		for _, c := range classes {
			class := FailureClass(c)
			fmt.Fprintf(&b, "  - %s: %d\n    hint: %s\n", class, s.ClassCounts[class], class.Hint())
		}
	}

	if len(s.Samples) > 0 {
		b.WriteString("Samples:\n")
		for _, sample := range s.Samples {
			tag := "error"
			if sample.Warning {
				tag = "warning"
			}
			fmt.Fprintf(&b, "  [%s/%s] record %d %s: %s\n", tag, sample.Phase, sample.RecordID, sample.Class, sample.Message)
		}
		if s.DroppedSamples > 0 {
			fmt.Fprintf(&b, "  ... %d more not shown\n", s.DroppedSamples)
		}
	}

	if d := s.Diagnosis(); d != "" {
		fmt.Fprintf(&b, "Diagnosis: %s\n", d)
	}

	return b.String()
}
