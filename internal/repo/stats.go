// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (e.g., ETag generation) and dashboard headline
// numbers. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/promptwatch/go-safety-backend/internal/domain"
)

// QueriesStats returns aggregate metadata for a user's queries: the total
// number of rows and the maximum CreatedAt timestamp among those rows.
// Query rows are write-once, so CreatedAt is the freshness signal.
//
// When the user has no queries, the returned count is 0 and maxCreatedAt is
// nil.
//
// Return values:
//   - count:        total queries for userID
//   - maxCreatedAt: pointer to the greatest CreatedAt, or nil if no rows
//   - err:          database error, if any
func QueriesStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.QueryRecord{}).Where("user_id = ?", userID)

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}

// QueryAverages returns the mean classifier confidence and mean response
// time (milliseconds) over all of a user's queries. Both are 0 when the
// user has no rows.
func QueryAverages(ctx context.Context, db *gorm.DB, userID string) (avgConfidence, avgResponseTime float64, err error) {
	var row struct {
		AvgConfidence   float64
		AvgResponseTime float64
	}
	err = db.WithContext(ctx).
		Model(&domain.QueryRecord{}).
		Select("COALESCE(AVG(analysis_confidence), 0) AS avg_confidence, COALESCE(AVG(response_time), 0) AS avg_response_time").
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.AvgConfidence, row.AvgResponseTime, nil
}
