// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Report
// model, including the status transitions of the generation lifecycle.
//
// Lifecycle writes are guarded: MarkReportCompleted and MarkReportFailed
// only move rows out of the "generating" state, so terminal states can never
// be overwritten. IncrementDownloadCount only touches "completed" rows.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/promptwatch/go-safety-backend/internal/domain"
)

// ReportFilter narrows report listings. Empty fields are ignored.
type ReportFilter struct {
	Type   string
	Status string
}

func applyReportFilter(q *gorm.DB, f ReportFilter) *gorm.DB {
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	return q
}

// CreateReport inserts a new Report row in status "generating". The report
// ID is a randomly generated UUID (string), and CreatedAt is set to UTC.
//
// On success, it returns the persisted Report. On failure, it returns a DB error.
func CreateReport(ctx context.Context, db *gorm.DB, userID, name, typ, format string, rng domain.DateRange) (*domain.Report, error) {
	r := &domain.Report{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Type:      typ,
		DateRange: rng,
		Format:    format,
		Status:    domain.ReportGenerating,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// MarkReportCompleted attaches the data snapshot to a generating report and
// moves it to "completed". If the report is missing or already terminal, it
// returns ErrNotFound.
func MarkReportCompleted(ctx context.Context, db *gorm.DB, id string, data *domain.ReportData, fileSize int64, completedAt time.Time) error {
	// Struct update so the data column goes through the model's JSON
	// serializer; a map value would be handed to the driver raw.
	res := db.WithContext(ctx).
		Model(&domain.Report{}).
		Where("id = ? AND status = ?", id, domain.ReportGenerating).
		Select("status", "data", "file_size", "completed_at").
		Updates(&domain.Report{
			Status:      domain.ReportCompleted,
			Data:        data,
			FileSize:    fileSize,
			CompletedAt: &completedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkReportFailed moves a generating report to "failed" and records the
// failure reason. If the report is missing or already terminal, it returns
// ErrNotFound.
func MarkReportFailed(ctx context.Context, db *gorm.DB, id, reason string) error {
	res := db.WithContext(ctx).
		Model(&domain.Report{}).
		Where("id = ? AND status = ?", id, domain.ReportGenerating).
		Updates(map[string]any{
			"status":         domain.ReportFailed,
			"failure_reason": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetReport fetches a single report by its ID and owner (userID), including
// the data snapshot. If the record does not exist, it returns ErrNotFound.
func GetReport(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Report, error) {
	var r domain.Report
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CountReports returns the number of reports owned by userID that match
// the filter.
func CountReports(ctx context.Context, db *gorm.DB, userID string, f ReportFilter) (int64, error) {
	var total int64
	q := db.WithContext(ctx).
		Model(&domain.Report{}).
		Where("user_id = ?", userID)
	err := applyReportFilter(q, f).Count(&total).Error
	return total, err
}

// ListReportsPage returns a filtered, paginated slice of reports for
// userID, ordered by creation time descending. The data snapshot column is
// omitted to keep listings light; fetch a single report to obtain it.
func ListReportsPage(ctx context.Context, db *gorm.DB, userID string, f ReportFilter, offset, limit int) ([]domain.Report, error) {
	var out []domain.Report
	q := db.WithContext(ctx).
		Omit("data").
		Where("user_id = ?", userID)
	err := applyReportFilter(q, f).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// IncrementDownloadCount bumps the download counter of a completed report
// owned by userID. If no completed report matches, it returns ErrNotFound.
func IncrementDownloadCount(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Report{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, domain.ReportCompleted).
		UpdateColumn("download_count", gorm.Expr("download_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
