// Analytics HTTP handlers.
//
// This file exposes the chart-ready analytics endpoints:
//   - GET /analytics/overview  (risk/category/emotion distributions + weekly series)
//   - GET /analytics/trends    (trailing daily series, configurable window)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/promptwatch/go-safety-backend/internal/utils"
)

// AnalyticsOverview godoc
// @ID          analyticsOverview
// @Summary     Analytics overview
// @Description Returns colored risk/emotion distributions, a category ranking, and a 7-day series.
// @Tags        Analytics
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {object} services.Overview
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /analytics/overview [get]
func (h *Handlers) AnalyticsOverview(c *gin.Context) {
	ov, err := h.analyticsSvc.Overview(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ov)
}

// AnalyticsTrends godoc
// @ID          analyticsTrends
// @Summary     Daily trend series
// @Description Returns a trailing daily series of query volume and verdicts.
// @Tags        Analytics
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       days       query   int     false "Window length in days"   minimum(1) default(30)
//
// @Success     200  {array}  analytics.TrendPoint
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /analytics/trends [get]
func (h *Handlers) AnalyticsTrends(c *gin.Context) {
	days := utils.AtoiDefault(c.Query("days"), 0)
	points, err := h.analyticsSvc.Trends(c.Request.Context(), userID(c), days)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, points)
}
