package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	importapp "github.com/erp/importer/internal/application/import"
	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/domain/integration"
	"github.com/erp/importer/internal/domain/shared"
	"github.com/erp/importer/internal/interfaces/http/dto"
	"github.com/erp/importer/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ImportRunner is the part of the import service the HTTP layer drives
type ImportRunner interface {
	Run(ctx context.Context, kind bulk.EntityKind, opts importapp.RunOptions) (*bulk.ImportRun, error)
	TestConnection(ctx context.Context) (*integration.ConnectionReport, error)
	GetRun(ctx context.Context, id uuid.UUID) (*bulk.ImportRun, error)
	ListRuns(ctx context.Context, filter importapp.ListRunsFilter, page, pageSize int) (*bulk.ImportRunListResult, error)
}

// ImportHandler handles import-related API endpoints
type ImportHandler struct {
	BaseHandler
	service ImportRunner
}

// NewImportHandler creates a new ImportHandler
func NewImportHandler(service ImportRunner) *ImportHandler {
	return &ImportHandler{service: service}
}

// RunImport godoc
//
//	@Summary		Run an import
//	@Description	Imports one bounded page of the given entity kind from the remote catalog and returns the run summary
//	@Tags			import
//	@ID				runImport
//	@Accept			json
//	@Produce		json
//	@Param			kind	path		string					true	"Entity kind"	Enums(categories, products, stock, customers)
//	@Param			request	body		dto.RunImportRequest	false	"Page bounds"
//	@Success		200		{object}	APIResponse[dto.RunResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/imports/{kind} [post]
func (h *ImportHandler) RunImport(c *gin.Context) {
	kind, err := bulk.ParseEntityKind(c.Param("kind"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var req dto.RunImportRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			middleware.HandleValidationError(c, err)
			return
		}
	}

	opts := importapp.RunOptions{}
	if req.Limit != nil {
		opts.Limit = *req.Limit
	}
	if req.Offset != nil {
		opts.Offset = *req.Offset
	}

	run, err := h.service.Run(c.Request.Context(), kind, opts)
	if err != nil {
		// the run row exists even when the final save failed
		if run != nil && !errors.As(err, new(*shared.DomainError)) {
			h.InternalError(c, fmt.Sprintf("Import run %s finished but could not be saved", run.ID))
			return
		}
		h.HandleError(c, err)
		return
	}

	h.Success(c, dto.ToRunResponse(run))
}

// TestConnection godoc
//
//	@Summary		Test the source connection
//	@Description	Probes the remote catalog webservice and reports each step with a hint on failure
//	@Tags			import
//	@ID				testImportConnection
//	@Produce		json
//	@Success		200	{object}	APIResponse[dto.ConnectionReportResponse]
//	@Failure		502	{object}	ErrorResponse
//	@Router			/imports/connection-test [post]
func (h *ImportHandler) TestConnection(c *gin.Context) {
	report, err := h.service.TestConnection(c.Request.Context())
	if err != nil {
		h.HandleError(c, shared.ErrSourceFailure.WithCause(err))
		return
	}
	h.Success(c, dto.ToConnectionReportResponse(report))
}

// ListRuns godoc
//
//	@Summary		List import runs
//	@Description	Returns a paginated list of import runs, newest first
//	@Tags			import
//	@ID				listImportRuns
//	@Produce		json
//	@Param			kind			query		string	false	"Filter by entity kind"
//	@Param			status			query		string	false	"Filter by status"
//	@Param			started_from	query		string	false	"Runs started on or after, format: YYYY-MM-DD"
//	@Param			started_to		query		string	false	"Runs started on or before, format: YYYY-MM-DD"
//	@Param			page			query		int		false	"Page number (default: 1)"
//	@Param			page_size		query		int		false	"Page size (default: 20, max: 100)"
//	@Success		200				{object}	APIResponse[[]dto.RunResponse]
//	@Failure		400				{object}	ErrorResponse
//	@Failure		500				{object}	ErrorResponse
//	@Router			/imports/runs [get]
func (h *ImportHandler) ListRuns(c *gin.Context) {
	var req dto.RunListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	filter := importapp.ListRunsFilter{
		Kind:   req.Kind,
		Status: req.Status,
	}
	if req.StartedFrom != "" {
		t, err := time.Parse("2006-01-02", req.StartedFrom)
		if err != nil {
			h.BadRequest(c, "started_from must be formatted as YYYY-MM-DD")
			return
		}
		filter.StartedFrom = &t
	}
	if req.StartedTo != "" {
		t, err := time.Parse("2006-01-02", req.StartedTo)
		if err != nil {
			h.BadRequest(c, "started_to must be formatted as YYYY-MM-DD")
			return
		}
		endOfDay := t.Add(24*time.Hour - time.Nanosecond)
		filter.StartedTo = &endOfDay
	}

	result, err := h.service.ListRuns(c.Request.Context(), filter, req.Page, req.PageSize)
	if err != nil {
		h.InternalError(c, "Failed to list import runs: "+err.Error())
		return
	}

	h.SuccessWithMeta(c, dto.ToRunResponses(result.Items), result.TotalCount, result.Page, result.PageSize)
}

// GetRun godoc
//
//	@Summary		Get an import run
//	@Description	Returns the summary of one import run with its error samples and diagnosis
//	@Tags			import
//	@ID				getImportRun
//	@Produce		json
//	@Param			id	path		string	true	"Import run ID"
//	@Success		200	{object}	APIResponse[dto.RunResponse]
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/imports/runs/{id} [get]
func (h *ImportHandler) GetRun(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}
	h.Success(c, dto.ToRunResponse(run))
}

// GetRunErrors godoc
//
//	@Summary		Download import run errors as CSV
//	@Description	Downloads the recorded error and warning samples of an import run
//	@Tags			import
//	@ID				getImportRunErrors
//	@Produce		text/csv
//	@Param			id	path		string	true	"Import run ID"
//	@Success		200	{string}	string	"CSV content"
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/imports/runs/{id}/errors [get]
func (h *ImportHandler) GetRunErrors(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}
	if len(run.Samples) == 0 {
		h.BadRequest(c, "No errors to export for this import run")
		return
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"phase", "record_id", "class", "severity", "message", "hint"})
	for _, s := range run.Samples {
		severity := "error"
		if s.Warning {
			severity = "warning"
		}
		_ = w.Write([]string{string(s.Phase), strconv.FormatInt(s.RecordID, 10), string(s.Class), severity, s.Message, s.Hint})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		h.InternalError(c, "Failed to generate error report: "+err.Error())
		return
	}

	fileName := fmt.Sprintf("import_%s_%s_errors.csv", run.Kind, run.ID.String()[:8])
	c.Header("Content-Disposition", "attachment; filename=\""+fileName+"\"")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *ImportHandler) loadRun(c *gin.Context) (*bulk.ImportRun, bool) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid import run ID")
		return nil, false
	}

	run, err := h.service.GetRun(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.NotFound(c, "Import run not found")
			return nil, false
		}
		h.InternalError(c, "Failed to get import run: "+err.Error())
		return nil, false
	}
	return run, true
}
