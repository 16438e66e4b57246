package dto

import (
	"time"

	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/domain/integration"
)

// RunImportRequest represents the request to start an import run
type RunImportRequest struct {
	Limit  *int `json:"limit" binding:"omitempty,min=0" example:"50"`
	Offset *int `json:"offset" binding:"omitempty,min=0" example:"0"`
}

// RunListRequest represents the query parameters for listing import runs
type RunListRequest struct {
	Kind        string `form:"kind" binding:"omitempty,oneof=categories products stock customers"`
	Status      string `form:"status" binding:"omitempty,oneof=running completed halted_on_error_rate failed"`
	StartedFrom string `form:"started_from"`
	StartedTo   string `form:"started_to"`
	Page        int    `form:"page" binding:"omitempty,min=1"`
	PageSize    int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// ErrorSampleResponse is one recorded failure or warning
type ErrorSampleResponse struct {
	Phase    string `json:"phase" example:"relationship"`
	RecordID int64  `json:"record_id" example:"42"`
	Class    string `json:"class" example:"ReferentialIntegrityViolation"`
	Message  string `json:"message"`
	Hint     string `json:"hint"`
	Warning  bool   `json:"warning,omitempty"`
}

// RunResponse represents an import run in API responses
// @Description Outcome of one import run
type RunResponse struct {
	ID             string                `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Kind           string                `json:"kind" example:"products"`
	Status         string                `json:"status" example:"completed"`
	Limit          int                   `json:"limit" example:"50"`
	Offset         int                   `json:"offset" example:"0"`
	Listed         int                   `json:"listed" example:"50"`
	Processed      int                   `json:"processed" example:"50"`
	Created        int                   `json:"created" example:"40"`
	Updated        int                   `json:"updated" example:"5"`
	Skipped        int                   `json:"skipped" example:"3"`
	Errors         int                   `json:"errors" example:"2"`
	Warnings       int                   `json:"warnings" example:"4"`
	ErrorRatio     float64               `json:"error_ratio" example:"0.04"`
	ClassCounts    map[string]int        `json:"class_counts"`
	Samples        []ErrorSampleResponse `json:"samples"`
	DroppedSamples int                   `json:"dropped_samples"`
	Reason         string                `json:"reason,omitempty"`
	Diagnosis      string                `json:"diagnosis,omitempty"`
	StartedAt      time.Time             `json:"started_at"`
	FinishedAt     *time.Time            `json:"finished_at,omitempty"`
	DurationMs     int64                 `json:"duration_ms" example:"1250"`
}

// ConnectionStepResponse is the outcome of one connectivity probe
type ConnectionStepResponse struct {
	Name       string `json:"name" example:"list_products"`
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code,omitempty" example:"200"`
	Detail     string `json:"detail"`
	DurationMs int64  `json:"duration_ms"`
}

// ConnectionReportResponse represents the result of a connection test
type ConnectionReportResponse struct {
	OK        bool                     `json:"ok"`
	BaseURL   string                   `json:"base_url" example:"https://shop.example.com/api"`
	MaskedKey string                   `json:"masked_key" example:"ABCD…WXYZ"`
	Steps     []ConnectionStepResponse `json:"steps"`
	Hint      string                   `json:"hint,omitempty"`
}

// ToRunResponse converts a domain import run to its API representation
func ToRunResponse(run *bulk.ImportRun) RunResponse {
	resp := RunResponse{
		ID:             run.ID.String(),
		Kind:           string(run.Kind),
		Status:         string(run.Status),
		Limit:          run.Limit,
		Offset:         run.Offset,
		Listed:         run.Listed,
		Processed:      run.Processed,
		Created:        run.Created,
		Updated:        run.Updated,
		Skipped:        run.Skipped,
		Errors:         run.Errors,
		Warnings:       run.Warnings,
		ErrorRatio:     run.ErrorRatio(),
		ClassCounts:    make(map[string]int, len(run.ClassCounts)),
		Samples:        make([]ErrorSampleResponse, 0, len(run.Samples)),
		DroppedSamples: run.DroppedSamples,
		Reason:         run.Reason,
		StartedAt:      run.StartedAt,
		FinishedAt:     run.CompletedAt,
		DurationMs:     run.Duration().Milliseconds(),
	}
	for class, n := range run.ClassCounts {
		resp.ClassCounts[string(class)] = n
	}
	for _, s := range run.Samples {
		resp.Samples = append(resp.Samples, ErrorSampleResponse{
			Phase:    string(s.Phase),
			RecordID: s.RecordID,
			Class:    string(s.Class),
			Message:  s.Message,
			Hint:     s.Hint,
			Warning:  s.Warning,
		})
	}
	if run.Status.IsTerminal() {
		resp.Diagnosis = run.Diagnosis()
	}
	return resp
}

// ToRunResponses converts a list of import runs
func ToRunResponses(runs []*bulk.ImportRun) []RunResponse {
	out := make([]RunResponse, len(runs))
	for i, run := range runs {
		out[i] = ToRunResponse(run)
	}
	return out
}

// ToConnectionReportResponse converts a connection report
func ToConnectionReportResponse(report *integration.ConnectionReport) ConnectionReportResponse {
	resp := ConnectionReportResponse{
		OK:        report.OK,
		BaseURL:   report.BaseURL,
		MaskedKey: report.MaskedKey,
		Steps:     make([]ConnectionStepResponse, len(report.Steps)),
		Hint:      report.Hint,
	}
	for i, step := range report.Steps {
		resp.Steps[i] = ConnectionStepResponse{
			Name:       step.Name,
			OK:         step.OK,
			StatusCode: step.StatusCode,
			Detail:     step.Detail,
			DurationMs: step.Duration.Milliseconds(),
		}
	}
	return resp
}
