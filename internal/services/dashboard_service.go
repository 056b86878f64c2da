// Package services – DashboardService
//
// This file implements DashboardService, which assembles the headline view
// of the dashboard: overall counters, today's volume, recent activity, and
// high-risk alerts. "Today" is computed in the configured bucketing
// location so the dashboard day boundary matches the aggregation engine's.
package services

import (
	"context"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/promptwatch/go-safety-backend/internal/repo"
)

const (
	activityTextMax      = 100
	defaultActivityLimit = 10
	alertWindow          = 24 * time.Hour
	maxAlerts            = 50
)

// TodayStats breaks down the current calendar day's volume.
type TodayStats struct {
	Queries int64 `json:"queries"`
	Flagged int64 `json:"flagged"`
	Safe    int64 `json:"safe"`
}

// DashboardStats is the headline counter block of the dashboard.
type DashboardStats struct {
	TotalQueries    int64      `json:"totalQueries"`
	FlaggedQueries  int64      `json:"flaggedQueries"`
	SafeQueries     int64      `json:"safeQueries"`
	TodayQueries    int64      `json:"todayQueries"`
	TodayStats      TodayStats `json:"todayStats"`
	AvgConfidence   float64    `json:"avgConfidence"`
	AvgResponseTime int64      `json:"avgResponseTime"` // milliseconds
}

// ActivityItem is one row of the recent-activity feed. Query text is
// truncated for display.
type ActivityItem struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Safety    string    `json:"safety"`
	RiskLevel string    `json:"riskLevel"`
	Category  string    `json:"category"`
	Emotion   string    `json:"emotion"`
	Flagged   bool      `json:"flagged"`
	Timestamp time.Time `json:"timestamp"`
}

// Alert is one high-risk event surfaced on the dashboard.
type Alert struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Category  string    `json:"category"`
	Severity  int       `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// DashboardService aggregates per-user headline numbers and feeds.
type DashboardService struct {
	DB *gorm.DB

	// Location sets the day boundary for TodayQueries; nil means UTC.
	Location *time.Location

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

func (s *DashboardService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *DashboardService) loc() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.UTC
}

// Stats returns the headline counters for userID. Averages are taken over
// all of the user's queries; confidence is rounded to two decimals and
// response time to whole milliseconds.
func (s *DashboardService) Stats(ctx context.Context, userID string) (*DashboardStats, error) {
	total, err := repo.CountQueries(ctx, s.DB, userID, repo.QueryFilter{})
	if err != nil {
		return nil, err
	}
	flaggedVal := true
	flagged, err := repo.CountQueries(ctx, s.DB, userID, repo.QueryFilter{Flagged: &flaggedVal})
	if err != nil {
		return nil, err
	}

	// Today in the bucketing location.
	now := s.clock().In(s.loc())
	dayFrom := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc())
	dayTo := dayFrom.AddDate(0, 0, 1).Add(-time.Nanosecond)
	today, err := repo.CountQueries(ctx, s.DB, userID, repo.QueryFilter{From: &dayFrom, To: &dayTo})
	if err != nil {
		return nil, err
	}
	todayFlagged, err := repo.CountQueries(ctx, s.DB, userID, repo.QueryFilter{Flagged: &flaggedVal, From: &dayFrom, To: &dayTo})
	if err != nil {
		return nil, err
	}

	avgConf, avgResp, err := repo.QueryAverages(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}

	return &DashboardStats{
		TotalQueries:   total,
		FlaggedQueries: flagged,
		SafeQueries:    total - flagged,
		TodayQueries:   today,
		TodayStats: TodayStats{
			Queries: today,
			Flagged: todayFlagged,
			Safe:    today - todayFlagged,
		},
		AvgConfidence:   math.Round(avgConf*100) / 100,
		AvgResponseTime: int64(math.Floor(avgResp + 0.5)),
	}, nil
}

// RecentActivity returns the newest queries as display rows. limit
// defaults to 10.
func (s *DashboardService) RecentActivity(ctx context.Context, userID string, limit int) ([]ActivityItem, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	recs, err := repo.ListRecentQueries(ctx, s.DB, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ActivityItem, 0, len(recs))
	for i := range recs {
		r := &recs[i]
		out = append(out, ActivityItem{
			ID:        r.ID,
			Query:     truncateText(r.Text, activityTextMax),
			Safety:    r.Analysis.Safety,
			RiskLevel: r.Analysis.RiskLevel,
			Category:  r.Analysis.Category,
			Emotion:   r.Analysis.Emotion.Type,
			Flagged:   r.Flagged,
			Timestamp: r.CreatedAt,
		})
	}
	return out, nil
}

// Alerts returns flagged high-risk queries from the trailing 24 hours,
// newest first.
func (s *DashboardService) Alerts(ctx context.Context, userID string) ([]Alert, error) {
	since := s.clock().Add(-alertWindow)
	recs, err := repo.ListHighRiskSince(ctx, s.DB, userID, since, maxAlerts)
	if err != nil {
		return nil, err
	}
	out := make([]Alert, 0, len(recs))
	for i := range recs {
		r := &recs[i]
		out = append(out, Alert{
			ID:        r.ID,
			Query:     truncateText(r.Text, activityTextMax),
			Category:  r.Analysis.Category,
			Severity:  r.Analysis.Severity,
			Timestamp: r.CreatedAt,
		})
	}
	return out, nil
}

// truncateText clips s to max runes, appending "..." when clipped.
func truncateText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
