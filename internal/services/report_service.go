// Package services – ReportService
//
// This file implements ReportService, which owns the report generation
// lifecycle. Generation is synchronous: the report row is created in the
// "generating" state, the aggregation engine runs over the requested
// window, and the row is moved to "completed" with its data snapshot or to
// "failed" with the failure reason. Failed runs are persisted, not raised:
// the caller receives the failed report so the outcome stays visible.
//
// Safe retries: when an idempotency key accompanies the request, a replay
// within the TTL returns the originally produced report without re-running
// the aggregation.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/promptwatch/go-safety-backend/internal/analytics"
	"github.com/promptwatch/go-safety-backend/internal/domain"
	"github.com/promptwatch/go-safety-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// reportResource is the idempotency resource tag for report generation.
	reportResource = "reports"

	defaultReportFormat = "json"
	defaultRangeDays    = 30
	defaultIdemTTL      = 24 * time.Hour
)

// GenerateInput carries the parameters of a report generation request.
// Zero-valued From/To default to the trailing 30 days ending now.
type GenerateInput struct {
	Name   string
	Type   string
	Format string
	From   time.Time
	To     time.Time

	// IdempotencyKey enables safe retries when non-empty.
	IdempotencyKey string
}

// ReportService owns report generation, listing, and downloads.
type ReportService struct {
	DB *gorm.DB

	// Location sets day boundaries for the aggregation; nil means UTC.
	Location *time.Location

	// NameMaxRunes caps stored report names; 0 disables the check.
	NameMaxRunes int

	// IdempotencyTTL bounds replay detection; 0 means 24h.
	IdempotencyTTL time.Duration

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

func (s *ReportService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *ReportService) loc() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.UTC
}

func (s *ReportService) idemTTL() time.Duration {
	if s.IdempotencyTTL > 0 {
		return s.IdempotencyTTL
	}
	return defaultIdemTTL
}

// Generate validates the input, creates the report row, runs the
// aggregation over the requested window, and persists the terminal state.
// Aggregation failures are recorded on the report and returned as a failed
// report, not as an error. Replays carrying a known idempotency key return
// the original report.
func (s *ReportService) Generate(ctx context.Context, userID string, in GenerateInput) (*domain.Report, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("report.type", in.Type),
		),
	)
	defer span.End()

	// Replay?
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		if rec, err := repo.GetIdempotency(ctx, s.DB, userID, reportResource, key, s.clock().UTC()); err == nil {
			return s.Get(ctx, userID, rec.ReportID)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}

	in, err := s.normalizeInput(in)
	if err != nil {
		return nil, err
	}

	report, err := repo.CreateReport(ctx, s.DB, userID, in.Name, in.Type, in.Format,
		domain.DateRange{From: in.From, To: in.To})
	if err != nil {
		return nil, err
	}

	// Record the idempotency tuple before the heavy work so retries replay
	// even a failed run instead of generating twice.
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		if _, err := repo.CreateIdempotency(ctx, s.DB, userID, reportResource, key, report.ID, 201, s.idemTTL()); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			return nil, err
		}
	}

	records, err := repo.ListQueriesRange(ctx, s.DB, userID, in.From, in.To)
	if err != nil {
		return s.fail(ctx, report, fmt.Sprintf("loading queries: %v", err))
	}

	data, err := analytics.Aggregate(records, in.From, in.To, s.loc())
	if err != nil {
		return s.fail(ctx, report, err.Error())
	}

	raw, err := json.Marshal(&data)
	if err != nil {
		return s.fail(ctx, report, fmt.Sprintf("encoding result: %v", err))
	}

	completedAt := s.clock().UTC()
	if err := repo.MarkReportCompleted(ctx, s.DB, report.ID, &data, int64(len(raw)), completedAt); err != nil {
		return nil, err
	}
	report.Status = domain.ReportCompleted
	report.Data = &data
	report.FileSize = int64(len(raw))
	report.CompletedAt = &completedAt
	return report, nil
}

// fail moves the report to the failed state and returns it with the reason
// attached. The datastore error, if any, wins over the failure itself.
func (s *ReportService) fail(ctx context.Context, report *domain.Report, reason string) (*domain.Report, error) {
	if err := repo.MarkReportFailed(ctx, s.DB, report.ID, reason); err != nil {
		return nil, err
	}
	report.Status = domain.ReportFailed
	report.FailureReason = reason
	return report, nil
}

// normalizeInput applies defaults and validates the closed sets and range.
func (s *ReportService) normalizeInput(in GenerateInput) (GenerateInput, error) {
	in.Type = strings.TrimSpace(in.Type)
	if !domain.ValidReportType(in.Type) {
		return in, ErrInvalidReportInput
	}

	in.Format = strings.ToLower(strings.TrimSpace(in.Format))
	if in.Format == "" {
		in.Format = defaultReportFormat
	}
	if !domain.ValidReportFormat(in.Format) {
		return in, ErrInvalidReportInput
	}

	now := s.clock().UTC()
	if in.To.IsZero() {
		in.To = now
	}
	if in.From.IsZero() {
		in.From = in.To.AddDate(0, 0, -defaultRangeDays)
	}
	if in.From.After(in.To) {
		return in, ErrInvalidReportInput
	}

	in.Name = normalizeName(in.Name)
	if in.Name == "" {
		// e.g. "Safety Analysis Report 2025-06-30"
		caser := cases.Title(language.English)
		in.Name = fmt.Sprintf("%s Report %s", caser.String(strings.ToLower(in.Type)), in.To.Format("2006-01-02"))
	}
	if s.NameMaxRunes > 0 && utf8.RuneCountInString(in.Name) > s.NameMaxRunes {
		in.Name = string([]rune(in.Name)[:s.NameMaxRunes])
	}
	return in, nil
}

// normalizeName trims whitespace and collapses multiple spaces to one.
func normalizeName(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// Get fetches a single report owned by userID, or ErrReportNotFound.
func (s *ReportService) Get(ctx context.Context, userID, id string) (*domain.Report, error) {
	r, err := repo.GetReport(ctx, s.DB, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	return r, nil
}

// ListPage returns a filtered page of the user's reports (data snapshots
// omitted) plus the total count. Filter values outside the closed type and
// status sets yield ErrInvalidFilter; defaults apply for invalid
// page/pageSize.
func (s *ReportService) ListPage(ctx context.Context, userID string, f repo.ReportFilter, page, pageSize int) ([]domain.Report, int64, error) {
	if f.Type != "" && !domain.ValidReportType(f.Type) {
		return nil, 0, ErrInvalidFilter
	}
	if f.Status != "" && !domain.ValidReportStatus(f.Status) {
		return nil, 0, ErrInvalidFilter
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountReports(ctx, s.DB, userID, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Report{}, 0, nil
	}

	items, err := repo.ListReportsPage(ctx, s.DB, userID, f, offset, pageSize)
	return items, total, err
}

// Download registers a download of a completed report and returns it with
// the refreshed counter. Reports that are still generating or failed yield
// ErrReportNotReady.
func (s *ReportService) Download(ctx context.Context, userID, id string) (*domain.Report, error) {
	r, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if r.Status != domain.ReportCompleted {
		return nil, ErrReportNotReady
	}
	if err := repo.IncrementDownloadCount(ctx, s.DB, id, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReportNotReady
		}
		return nil, err
	}
	r.DownloadCount++
	return r, nil
}
