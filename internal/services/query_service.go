// Package services – QueryService
//
// This file implements QueryService, the application-level component that
// owns the lifecycle of scored queries. It validates inputs, runs the
// configured classify.Classifier, enforces the flagged invariant
// (flagged == unsafe), measures classification latency, and persists the
// resulting record. Records are write-once: after Analyze they are only
// ever read back through listings and lookups.
//
// Observability: the analyze path is OpenTelemetry-instrumented; spans
// include user identifiers and classification outcome attributes.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/promptwatch/go-safety-backend/internal/classify"
	"github.com/promptwatch/go-safety-backend/internal/domain"
	"github.com/promptwatch/go-safety-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPageSize    = 20
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// QueryService coordinates classification and persistence of queries.
type QueryService struct {
	DB         *gorm.DB
	Classifier classify.Classifier

	// MaxQueryRunes caps accepted query length; 0 disables the check.
	MaxQueryRunes int

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

func (s *QueryService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Analyze validates the query text, classifies it, and persists the scored
// record. The stored Flagged field is derived from the classifier verdict
// (unsafe ⇒ flagged) and ResponseTime captures the classification latency
// in milliseconds.
func (s *QueryService) Analyze(ctx context.Context, userID, text, ipAddress, userAgent string) (*domain.QueryRecord, error) {
	tr := otel.Tracer("services/QueryService")
	ctx, span := tr.Start(ctx, "Analyze",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if s.MaxQueryRunes > 0 && utf8.RuneCountInString(text) > s.MaxQueryRunes {
		return nil, ErrQueryTooLong
	}

	start := s.clock()
	analysis, err := s.Classifier.Classify(ctx, text)
	if err != nil {
		return nil, err
	}
	elapsed := s.clock().Sub(start).Milliseconds()

	span.SetAttributes(
		attribute.String("analysis.safety", analysis.Safety),
		attribute.String("analysis.risk_level", analysis.RiskLevel),
		attribute.String("analysis.category", analysis.Category),
	)

	rec := &domain.QueryRecord{
		UserID:       userID,
		Text:         text,
		Analysis:     analysis,
		Flagged:      analysis.Safety == domain.SafetyUnsafe,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		ResponseTime: elapsed,
		CreatedAt:    s.clock().UTC(),
	}
	if err := repo.CreateQuery(ctx, s.DB, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListPage returns a filtered, paginated slice of the user's queries plus
// the total matching count. It applies defaults for invalid page/pageSize
// and rejects filter values outside the closed sets with ErrInvalidFilter.
func (s *QueryService) ListPage(ctx context.Context, userID string, f repo.QueryFilter, page, pageSize int) ([]domain.QueryRecord, int64, error) {
	if err := validateFilter(f); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountQueries(ctx, s.DB, userID, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.QueryRecord{}, 0, nil
	}

	items, err := repo.ListQueriesPage(ctx, s.DB, userID, f, offset, pageSize)
	return items, total, err
}

// Get fetches a single query record owned by userID, or ErrQueryNotFound.
func (s *QueryService) Get(ctx context.Context, userID, id string) (*domain.QueryRecord, error) {
	rec, err := repo.GetQuery(ctx, s.DB, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQueryNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Recent returns the newest queries for the realtime feed. limit defaults
// to 20 and is capped at 100.
func (s *QueryService) Recent(ctx context.Context, userID string, limit int) ([]domain.QueryRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	return repo.ListRecentQueries(ctx, s.DB, userID, limit)
}

// validateFilter rejects values outside the closed risk/category sets and
// inverted time windows.
func validateFilter(f repo.QueryFilter) error {
	if f.RiskLevel != "" && !domain.ValidRiskLevel(f.RiskLevel) {
		return ErrInvalidFilter
	}
	if f.Category != "" && !domain.ValidCategory(f.Category) {
		return ErrInvalidFilter
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return ErrInvalidFilter
	}
	return nil
}
