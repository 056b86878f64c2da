// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// QueryRecord model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateQuery(ctx, db, rec) -> error
//     Inserts a scored query row; assigns a UUID and UTC timestamp if unset.
//
//   - GetQuery(ctx, db, id, userID) -> *domain.QueryRecord, error
//     Fetches a single record by ID/userID, or ErrNotFound if missing.
//
//   - CountQueries(ctx, db, userID, f) -> (int64, error)
//     Counts the user's records matching the filter.
//
//   - ListQueriesPage(ctx, db, userID, f, offset, limit) -> []domain.QueryRecord, error
//     Returns a filtered, paginated slice ordered by creation time descending.
//
//   - ListQueriesRange(ctx, db, userID, from, to) -> []domain.QueryRecord, error
//     Returns all records in a closed time interval, oldest first. This is
//     the feed for the aggregation engine.
//
//   - ListRecentQueries(ctx, db, userID, limit) -> []domain.QueryRecord, error
//     Returns the newest records up to limit.
//
//   - ListHighRiskSince(ctx, db, userID, since, limit) -> []domain.QueryRecord, error
//     Returns flagged high-risk records created at or after since.
//
// This repository is designed to be wrapped by higher-level services
// (see services.QueryService and friends) which enforce business rules.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/promptwatch/go-safety-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// QueryFilter narrows query listings. Zero-valued fields are ignored.
type QueryFilter struct {
	Flagged   *bool
	RiskLevel string
	Category  string
	From      *time.Time
	To        *time.Time
}

func applyQueryFilter(q *gorm.DB, f QueryFilter) *gorm.DB {
	if f.Flagged != nil {
		q = q.Where("flagged = ?", *f.Flagged)
	}
	if f.RiskLevel != "" {
		q = q.Where("analysis_risk_level = ?", f.RiskLevel)
	}
	if f.Category != "" {
		q = q.Where("analysis_category = ?", f.Category)
	}
	// Timestamps are stored in UTC; bounds arrive in whatever location the
	// caller buckets days in and must be normalized before they hit SQL,
	// where the comparison is offset-blind.
	if f.From != nil {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", f.To.UTC())
	}
	return q
}

// CreateQuery inserts a scored query row. When rec.ID is empty a random UUID
// is assigned, and when rec.CreatedAt is zero it is set to time.Now().UTC().
// On failure, it returns a DB error.
func CreateQuery(ctx context.Context, db *gorm.DB, rec *domain.QueryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(rec).Error
}

// GetQuery fetches a single record by its ID and owner (userID). If the
// record does not exist, it returns ErrNotFound. On other DB errors, the raw
// error is returned.
func GetQuery(ctx context.Context, db *gorm.DB, id, userID string) (*domain.QueryRecord, error) {
	var rec domain.QueryRecord
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountQueries returns the number of records owned by userID that match the
// filter. On DB error, it returns the error.
func CountQueries(ctx context.Context, db *gorm.DB, userID string, f QueryFilter) (int64, error) {
	var total int64
	q := db.WithContext(ctx).
		Model(&domain.QueryRecord{}).
		Where("user_id = ?", userID)
	err := applyQueryFilter(q, f).Count(&total).Error
	return total, err
}

// ListQueriesPage returns a filtered, paginated slice of records for userID,
// ordered by creation time descending. Use CountQueries to obtain the total
// for pagination metadata. On DB error, it returns the error.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListQueriesPage(ctx context.Context, db *gorm.DB, userID string, f QueryFilter, offset, limit int) ([]domain.QueryRecord, error) {
	var out []domain.QueryRecord
	q := db.WithContext(ctx).
		Where("user_id = ?", userID)
	err := applyQueryFilter(q, f).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListQueriesRange returns every record for userID whose CreatedAt falls in
// the closed interval [from, to], ordered oldest first. This feeds the
// aggregation engine, which needs the full window in one pass.
func ListQueriesRange(ctx context.Context, db *gorm.DB, userID string, from, to time.Time) ([]domain.QueryRecord, error) {
	var out []domain.QueryRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ? AND created_at <= ?", userID, from.UTC(), to.UTC()).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// ListRecentQueries returns the newest records for userID, up to limit.
func ListRecentQueries(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.QueryRecord, error) {
	var out []domain.QueryRecord
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListHighRiskSince returns flagged high-risk records for userID created at
// or after since, newest first, up to limit.
func ListHighRiskSince(ctx context.Context, db *gorm.DB, userID string, since time.Time, limit int) ([]domain.QueryRecord, error) {
	var out []domain.QueryRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND flagged = ? AND analysis_risk_level = ? AND created_at >= ?",
			userID, true, domain.RiskHigh, since.UTC()).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
