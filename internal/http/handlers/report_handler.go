// Report HTTP handlers.
//
// This file exposes the report lifecycle endpoints:
//   - POST /reports/generate       (create and synchronously run a report)
//   - GET  /reports                (list, paginated, snapshots omitted)
//   - GET  /reports/{id}           (fetch one report with its snapshot)
//   - POST /reports/{id}/download  (register a download of a completed report)
//
// Generation supports safe retries via the Idempotency-Key header: a replay
// within the TTL returns the originally produced report.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/promptwatch/go-safety-backend/internal/domain"
	"github.com/promptwatch/go-safety-backend/internal/http/middleware"
	"github.com/promptwatch/go-safety-backend/internal/repo"
	"github.com/promptwatch/go-safety-backend/internal/services"
)

//
// DTOs
//

// GenerateReportRequest is the JSON payload for report generation.
type GenerateReportRequest struct {
	// Name optionally labels the report; a default is derived when empty.
	Name string `json:"name" example:"June safety review"`
	// Type selects the report type.
	Type string `json:"type" binding:"required" example:"Safety Analysis"`
	// Format tags the presentation format; defaults to "json".
	Format string `json:"format" example:"json"`
	// From/To bound the aggregation window (RFC 3339); defaults to the
	// trailing 30 days.
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// ListReportsResponse wraps a page of reports and pagination information.
type ListReportsResponse struct {
	Reports    []domain.Report `json:"reports"`
	Pagination Pagination      `json:"pagination"`
}

//
// Handlers
//

// GenerateReport godoc
// @ID          generateReport
// @Summary     Generate a report
// @Description Creates a report and synchronously runs the aggregation. Failed runs are returned with status "failed".
// @Tags        Reports
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"   example(user123)
// @Param       Idempotency-Key  header  string  false "Safe-retry key"          example(gen-2025-06-30)
// @Param       body             body    handlers.GenerateReportRequest  true  "Report parameters"
//
// @Success     201  {object} domain.Report
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /reports/generate [post]
func (h *Handlers) GenerateReport(c *gin.Context) {
	var req GenerateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	in := services.GenerateInput{
		Name:   req.Name,
		Type:   req.Type,
		Format: req.Format,
	}
	if req.From != nil {
		in.From = *req.From
	}
	if req.To != nil {
		in.To = *req.To
	}
	if key, present := middleware.GetIdempotencyKey(c); present {
		in.IdempotencyKey = key
	}

	r, err := h.reportSvc.Generate(c.Request.Context(), userID(c), in)
	if err != nil {
		if err == services.ErrInvalidReportInput {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid report parameters")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeGenerateFailed, err.Error())
		return
	}

	status := http.StatusCreated
	if middleware.IsReplay(c) {
		status = http.StatusOK
	} else {
		middleware.ObserveReport(r.Status)
	}
	ok(c, status, r)
}

// ListReports godoc
// @ID          listReports
// @Summary     List reports (paginated)
// @Description Returns a page of the user's reports; data snapshots are omitted from listings.
// @Tags        Reports
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       page       query   int     false "Page number"             minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"          minimum(1) maximum(100) default(20)
// @Param       type       query   string  false "Report type"             example(Safety Analysis)
// @Param       status     query   string  false "Lifecycle status"        Enums(generating, completed, failed)
//
// @Success     200  {object} handlers.ListReportsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /reports [get]
func (h *Handlers) ListReports(c *gin.Context) {
	page, pageSize := clampPagination(c)
	f := repo.ReportFilter{
		Type:   c.Query("type"),
		Status: c.Query("status"),
	}

	items, total, err := h.reportSvc.ListPage(c.Request.Context(), userID(c), f, page, pageSize)
	if err != nil {
		if err == services.ErrInvalidFilter {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid filter value")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListReportsResponse{
		Reports:    items,
		Pagination: buildPagination(page, pageSize, total),
	})
}

// GetReport godoc
// @ID          getReport
// @Summary     Fetch one report
// @Description Returns a single report, including its data snapshot when completed.
// @Tags        Reports
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Report ID (UUID)"       format(uuid)
//
// @Success     200  {object} domain.Report
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Report not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /reports/{id} [get]
func (h *Handlers) GetReport(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "report id must be a UUID")
		return
	}

	r, err := h.reportSvc.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		if err == services.ErrReportNotFound {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "report not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, r)
}

// DownloadReport godoc
// @ID          downloadReport
// @Summary     Register a report download
// @Description Bumps the download counter of a completed report and returns it.
// @Tags        Reports
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Report ID (UUID)"       format(uuid)
//
// @Success     200  {object} domain.Report
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Report not found"
// @Failure     409  {object} handlers.ErrorResponse "Report not completed"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /reports/{id}/download [post]
func (h *Handlers) DownloadReport(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "report id must be a UUID")
		return
	}

	r, err := h.reportSvc.Download(c.Request.Context(), userID(c), id)
	if err != nil {
		switch err {
		case services.ErrReportNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "report not found")
		case services.ErrReportNotReady:
			fail(c, http.StatusConflict, ErrCodeReportNotReady, "report is not completed yet")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, r)
}
