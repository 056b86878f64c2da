// Query HTTP handlers.
//
// This file exposes REST endpoints for query resources:
//   - POST   /queries/analyze   (classify and persist a query)
//   - GET    /queries           (list, filtered + paginated, ETag support)
//   - GET    /queries/realtime  (newest records for live feeds)
//   - GET    /queries/{id}      (fetch one record)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/promptwatch/go-safety-backend/internal/analytics"
	"github.com/promptwatch/go-safety-backend/internal/domain"
	"github.com/promptwatch/go-safety-backend/internal/http/middleware"
	"github.com/promptwatch/go-safety-backend/internal/repo"
	"github.com/promptwatch/go-safety-backend/internal/services"
	"github.com/promptwatch/go-safety-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// QueryService defines query analysis and retrieval operations consumed by
// HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type QueryService interface {
	// Analyze classifies text and persists the scored record.
	Analyze(ctx context.Context, userID, text, ipAddress, userAgent string) (*domain.QueryRecord, error)
	// ListPage returns a filtered page of records and the total count.
	ListPage(ctx context.Context, userID string, f repo.QueryFilter, page, pageSize int) ([]domain.QueryRecord, int64, error)
	// Get fetches a single record owned by userID.
	Get(ctx context.Context, userID, id string) (*domain.QueryRecord, error)
	// Recent returns the newest records, up to limit.
	Recent(ctx context.Context, userID string, limit int) ([]domain.QueryRecord, error)
}

// DashboardService defines the dashboard feeds consumed by HTTP handlers.
type DashboardService interface {
	// Stats returns the headline counter block.
	Stats(ctx context.Context, userID string) (*services.DashboardStats, error)
	// RecentActivity returns display rows of the newest queries.
	RecentActivity(ctx context.Context, userID string, limit int) ([]services.ActivityItem, error)
	// Alerts returns high-risk events from the trailing 24 hours.
	Alerts(ctx context.Context, userID string) ([]services.Alert, error)
}

// AnalyticsService defines the chart-ready analytics views.
type AnalyticsService interface {
	// Overview returns the distribution charts plus a weekly series.
	Overview(ctx context.Context, userID string) (*services.Overview, error)
	// Trends returns the trailing daily series for the given window.
	Trends(ctx context.Context, userID string, days int) ([]analytics.TrendPoint, error)
}

// ReportService defines the report lifecycle operations.
type ReportService interface {
	// Generate creates and synchronously runs a report.
	Generate(ctx context.Context, userID string, in services.GenerateInput) (*domain.Report, error)
	// ListPage returns a filtered page of reports and the total count.
	ListPage(ctx context.Context, userID string, f repo.ReportFilter, page, pageSize int) ([]domain.Report, int64, error)
	// Get fetches a single report owned by userID.
	Get(ctx context.Context, userID, id string) (*domain.Report, error)
	// Download registers a download of a completed report.
	Download(ctx context.Context, userID, id string) (*domain.Report, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for queries, the dashboard, analytics, and
// reports. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	querySvc     QueryService
	dashSvc      DashboardService
	analyticsSvc AnalyticsService
	reportSvc    ReportService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(querySvc QueryService, dashSvc DashboardService, analyticsSvc AnalyticsService, reportSvc ReportService) *Handlers {
	return &Handlers{querySvc: querySvc, dashSvc: dashSvc, analyticsSvc: analyticsSvc, reportSvc: reportSvc}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// AnalyzeQueryRequest is the JSON payload for submitting a query.
type AnalyzeQueryRequest struct {
	// Query is the text to classify (1–10000 chars by default).
	Query string `json:"query" binding:"required" example:"Explain how goroutines are scheduled"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListQueriesResponse wraps a page of query records and pagination information.
type ListQueriesResponse struct {
	Queries    []domain.QueryRecord `json:"queries"`
	Pagination Pagination           `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// buildPagination assembles the pagination block for list responses.
func buildPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// parseQueryFilter reads the listing filter from query parameters. The time
// bounds accept RFC 3339 timestamps or plain dates (YYYY-MM-DD).
func parseQueryFilter(c *gin.Context) (repo.QueryFilter, error) {
	var f repo.QueryFilter
	if v := c.Query("flagged"); v != "" {
		b := v == "true" || v == "1"
		if !b && v != "false" && v != "0" {
			return f, fmt.Errorf("flagged must be a boolean")
		}
		f.Flagged = &b
	}
	f.RiskLevel = strings.TrimSpace(c.Query("risk_level"))
	f.Category = strings.TrimSpace(c.Query("category"))
	if v := c.Query("from"); v != "" {
		t, err := parseTimeParam(v)
		if err != nil {
			return f, err
		}
		f.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := parseTimeParam(v)
		if err != nil {
			return f, err
		}
		f.To = &t
	}
	return f, nil
}

func parseTimeParam(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("time must be RFC 3339 or YYYY-MM-DD")
	}
	return t, nil
}

//
// Handlers
//

// AnalyzeQuery godoc
// @ID          analyzeQuery
// @Summary     Analyze a query
// @Description Classifies the submitted text and persists the scored record.
// @Tags        Queries
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.AnalyzeQueryRequest  true  "Query payload"
//
// @Success     201  {object}  domain.QueryRecord
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /queries/analyze [post]
func (h *Handlers) AnalyzeQuery(c *gin.Context) {
	var req AnalyzeQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	rec, err := h.querySvc.Analyze(c.Request.Context(), userID(c), req.Query, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		switch err {
		case services.ErrEmptyQuery:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query must not be empty")
		case services.ErrQueryTooLong:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query exceeds the maximum length")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeAnalyzeFailed, err.Error())
		}
		return
	}
	middleware.ObserveAnalysis(rec.Analysis.Safety, rec.Analysis.RiskLevel)
	ok(c, http.StatusCreated, rec)
}

// ListQueries godoc
// @ID          listQueries
// @Summary     List queries (filtered, paginated)
// @Description Returns a page of the user's scored queries. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Queries
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       flagged        query   bool    false "Only flagged (or unflagged) records"
// @Param       risk_level     query   string  false "Risk level filter"            Enums(low, medium, high)
// @Param       category       query   string  false "Category filter"
// @Param       from           query   string  false "Window start (RFC 3339 or YYYY-MM-DD)"
// @Param       to             query   string  false "Window end (RFC 3339 or YYYY-MM-DD)"
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListQueriesResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /queries [get]
func (h *Handlers) ListQueries(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	f, err := parseQueryFilter(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, okCast := h.querySvc.(*services.QueryService); okCast {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.QueriesStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"queries:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.querySvc.ListPage(ctx, uid, f, page, pageSize)
	if err != nil {
		if err == services.ErrInvalidFilter {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid filter value")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListQueriesResponse{
		Queries:    items,
		Pagination: buildPagination(page, pageSize, total),
	})
}

// RealtimeQueries godoc
// @ID          realtimeQueries
// @Summary     Newest queries for live feeds
// @Description Returns the most recent scored queries, newest first.
// @Tags        Queries
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       limit      query   int     false "Maximum records"        minimum(1) maximum(100) default(20)
//
// @Success     200  {array}  domain.QueryRecord
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /queries/realtime [get]
func (h *Handlers) RealtimeQueries(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 0)
	recs, err := h.querySvc.Recent(c.Request.Context(), userID(c), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, recs)
}

// GetQuery godoc
// @ID          getQuery
// @Summary     Fetch one query record
// @Description Returns a single scored query owned by the current user.
// @Tags        Queries
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Query ID (UUID)"        format(uuid)
//
// @Success     200  {object} domain.QueryRecord
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Query not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /queries/{id} [get]
func (h *Handlers) GetQuery(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query id must be a UUID")
		return
	}

	rec, err := h.querySvc.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		if err == services.ErrQueryNotFound {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "query not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, rec)
}
