package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/promptwatch/go-safety-backend/internal/domain"
)

func newRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedQuery(t *testing.T, db *gorm.DB, userID, risk, category string, flagged bool, at time.Time) *domain.QueryRecord {
	t.Helper()
	safety := domain.SafetySafe
	if flagged {
		safety = domain.SafetyUnsafe
	}
	rec := &domain.QueryRecord{
		UserID: userID,
		Text:   "seed text",
		Analysis: domain.Analysis{
			Safety:     safety,
			RiskLevel:  risk,
			Confidence: 0.8,
			Category:   category,
			Severity:   1,
			Emotion:    domain.Emotion{Type: domain.EmotionNeutral, Emoji: "😐"},
		},
		Flagged:      flagged,
		ResponseTime: 5,
		CreatedAt:    at,
	}
	if err := CreateQuery(context.Background(), db, rec); err != nil {
		t.Fatalf("seed query: %v", err)
	}
	return rec
}

func TestCreateQuery_AssignsIDAndTimestamp(t *testing.T) {
	db := newRepoDB(t, &domain.QueryRecord{})

	start := time.Now().UTC().Add(-time.Minute)
	rec := &domain.QueryRecord{
		UserID:   "u1",
		Text:     "is this safe?",
		Analysis: domain.Analysis{Safety: domain.SafetySafe, RiskLevel: domain.RiskLow, Category: domain.CategoryNone, Severity: 1},
	}
	if err := CreateQuery(context.Background(), db, rec); err != nil {
		t.Fatalf("CreateQuery: %v", err)
	}
	if rec.ID == "" {
		t.Fatalf("expected generated ID")
	}
	if rec.CreatedAt.Before(start) {
		t.Fatalf("CreatedAt seems unset/really old: %v", rec.CreatedAt)
	}

	var got domain.QueryRecord
	if err := db.First(&got, "id = ?", rec.ID).Error; err != nil {
		t.Fatalf("load created query: %v", err)
	}
	if got.UserID != "u1" || got.Text != "is this safe?" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestCreateQuery_Error_NoTable(t *testing.T) {
	db := newRepoDB(t /* no migrations */)
	err := CreateQuery(context.Background(), db, &domain.QueryRecord{UserID: "u1", Text: "x"})
	if err == nil {
		t.Fatalf("expected error creating without table")
	}
}

func TestGetQuery_OwnershipAndNotFound(t *testing.T) {
	db := newRepoDB(t, &domain.QueryRecord{})
	rec := seedQuery(t, db, "u1", domain.RiskLow, "Technical", false, time.Now().UTC())

	got, err := GetQuery(context.Background(), db, rec.ID, "u1")
	if err != nil || got.ID != rec.ID {
		t.Fatalf("GetQuery: got=%+v err=%v", got, err)
	}

	// Other user must not see it.
	if _, err := GetQuery(context.Background(), db, rec.ID, "u2"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for foreign user, got %v", err)
	}
	if _, err := GetQuery(context.Background(), db, "missing", "u1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for missing id, got %v", err)
	}
}

func TestCountAndListQueriesPage_Filters(t *testing.T) {
	db := newRepoDB(t, &domain.QueryRecord{})
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	seedQuery(t, db, "u1", domain.RiskLow, "Technical", false, base)
	seedQuery(t, db, "u1", domain.RiskHigh, "Prompt Injection", true, base.Add(time.Hour))
	seedQuery(t, db, "u1", domain.RiskHigh, "Hate Speech", true, base.Add(2*time.Hour))
	seedQuery(t, db, "u2", domain.RiskHigh, "Hate Speech", true, base) // other user

	flagged := true
	f := QueryFilter{Flagged: &flagged, RiskLevel: domain.RiskHigh}
	total, err := CountQueries(context.Background(), db, "u1", f)
	if err != nil || total != 2 {
		t.Fatalf("CountQueries: total=%d err=%v", total, err)
	}

	page, err := ListQueriesPage(context.Background(), db, "u1", f, 0, 10)
	if err != nil {
		t.Fatalf("ListQueriesPage: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page))
	}
	// Newest first.
	if !page[0].CreatedAt.After(page[1].CreatedAt) {
		t.Fatalf("expected descending order: %v then %v", page[0].CreatedAt, page[1].CreatedAt)
	}

	// Category filter.
	cat := QueryFilter{Category: "Technical"}
	if total, err = CountQueries(context.Background(), db, "u1", cat); err != nil || total != 1 {
		t.Fatalf("category filter: total=%d err=%v", total, err)
	}

	// Time window filter.
	from := base.Add(30 * time.Minute)
	to := base.Add(90 * time.Minute)
	win := QueryFilter{From: &from, To: &to}
	rows, err := ListQueriesPage(context.Background(), db, "u1", win, 0, 10)
	if err != nil || len(rows) != 1 || rows[0].Analysis.Category != "Prompt Injection" {
		t.Fatalf("window filter: rows=%+v err=%v", rows, err)
	}

	// Pagination offset.
	rows, err = ListQueriesPage(context.Background(), db, "u1", QueryFilter{}, 1, 1)
	if err != nil || len(rows) != 1 {
		t.Fatalf("offset page: rows=%d err=%v", len(rows), err)
	}
}

func TestListQueriesRange_ClosedIntervalOldestFirst(t *testing.T) {
	db := newRepoDB(t, &domain.QueryRecord{})
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	seedQuery(t, db, "u1", domain.RiskLow, "Technical", false, base)                // boundary: from
	seedQuery(t, db, "u1", domain.RiskLow, "Technical", false, base.Add(time.Hour)) // inside
	seedQuery(t, db, "u1", domain.RiskLow, "Technical", false, base.Add(48*time.Hour))

	rows, err := ListQueriesRange(context.Background(), db, "u1", base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ListQueriesRange: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows in window, got %d", len(rows))
	}
	if !rows[0].CreatedAt.Before(rows[1].CreatedAt) {
		t.Fatalf("expected ascending order")
	}
}

func TestQueryTimeBounds_NormalizedToUTC(t *testing.T) {
	db := newRepoDB(t, &domain.QueryRecord{})
	athens := time.FixedZone("UTC+3", 3*3600)

	// Stored in UTC; chronologically inside an Athens day window whose
	// bounds carry a +03:00 offset.
	seedQuery(t, db, "u1", domain.RiskLow, "Technical", false, time.Date(2025, 6, 14, 23, 30, 0, 0, time.UTC))

	from := time.Date(2025, 6, 15, 0, 0, 0, 0, athens) // 21:00 UTC June 14
	to := time.Date(2025, 6, 16, 0, 0, 0, 0, athens)

	rows, err := ListQueriesRange(context.Background(), db, "u1", from, to)
	if err != nil || len(rows) != 1 {
		t.Fatalf("range with offset bounds: rows=%d err=%v", len(rows), err)
	}

	total, err := CountQueries(context.Background(), db, "u1", QueryFilter{From: &from, To: &to})
	if err != nil || total != 1 {
		t.Fatalf("filter with offset bounds: total=%d err=%v", total, err)
	}

	page, err := ListQueriesPage(context.Background(), db, "u1", QueryFilter{From: &from, To: &to}, 0, 10)
	if err != nil || len(page) != 1 {
		t.Fatalf("page with offset bounds: rows=%d err=%v", len(page), err)
	}
}

func TestListRecentQueries_LimitAndOrder(t *testing.T) {
	db := newRepoDB(t, &domain.QueryRecord{})
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedQuery(t, db, "u1", domain.RiskLow, "Technical", false, base.Add(time.Duration(i)*time.Minute))
	}

	rows, err := ListRecentQueries(context.Background(), db, "u1", 3)
	if err != nil || len(rows) != 3 {
		t.Fatalf("ListRecentQueries: rows=%d err=%v", len(rows), err)
	}
	if !rows[0].CreatedAt.Equal(base.Add(4 * time.Minute)) {
		t.Fatalf("expected newest first, got %v", rows[0].CreatedAt)
	}
}

func TestListHighRiskSince(t *testing.T) {
	db := newRepoDB(t, &domain.QueryRecord{})
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	seedQuery(t, db, "u1", domain.RiskHigh, "Hate Speech", true, now.Add(-time.Hour))
	seedQuery(t, db, "u1", domain.RiskHigh, "Harassment", true, now.Add(-30*time.Hour)) // too old
	seedQuery(t, db, "u1", domain.RiskMedium, "Misinformation", true, now.Add(-time.Hour))
	seedQuery(t, db, "u1", domain.RiskHigh, "Technical", false, now.Add(-time.Hour)) // not flagged

	rows, err := ListHighRiskSince(context.Background(), db, "u1", now.Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("ListHighRiskSince: %v", err)
	}
	if len(rows) != 1 || rows[0].Analysis.Category != "Hate Speech" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
