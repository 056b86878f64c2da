// Dashboard HTTP handlers.
//
// This file exposes the read-only dashboard endpoints:
//   - GET /dashboard/stats            (headline counters)
//   - GET /dashboard/recent-activity  (newest queries, display-truncated)
//   - GET /dashboard/alerts           (high-risk events, trailing 24h)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/promptwatch/go-safety-backend/internal/utils"
)

// DashboardStats godoc
// @ID          dashboardStats
// @Summary     Dashboard headline counters
// @Description Returns total/flagged/safe/today counts and averages for the current user.
// @Tags        Dashboard
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {object} services.DashboardStats
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /dashboard/stats [get]
func (h *Handlers) DashboardStats(c *gin.Context) {
	stats, err := h.dashSvc.Stats(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, stats)
}

// RecentActivity godoc
// @ID          recentActivity
// @Summary     Recent activity feed
// @Description Returns the newest queries as display rows with truncated text.
// @Tags        Dashboard
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       limit      query   int     false "Maximum rows"            minimum(1) default(10)
//
// @Success     200  {array}  services.ActivityItem
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /dashboard/recent-activity [get]
func (h *Handlers) RecentActivity(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 0)
	items, err := h.dashSvc.RecentActivity(c.Request.Context(), userID(c), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}

// DashboardAlerts godoc
// @ID          dashboardAlerts
// @Summary     High-risk alerts
// @Description Returns flagged high-risk queries from the trailing 24 hours.
// @Tags        Dashboard
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {array}  services.Alert
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /dashboard/alerts [get]
func (h *Handlers) DashboardAlerts(c *gin.Context) {
	alerts, err := h.dashSvc.Alerts(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, alerts)
}
