// Package services – AnalyticsService
//
// This file implements AnalyticsService, which shapes the aggregation
// engine's output into the chart-ready structures the analytics views
// consume: colored risk/emotion distributions, a category ranking, a
// weekly series with weekday labels, and a configurable daily trend.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/promptwatch/go-safety-backend/internal/analytics"
	"github.com/promptwatch/go-safety-backend/internal/domain"
	"github.com/promptwatch/go-safety-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTrendDays = 30
	overviewWeekDays = 7
)

// Risk display names and chart colors, keyed by risk level.
var riskDisplay = map[string]struct {
	Name  string
	Color string
}{
	domain.RiskLow:    {"Low Risk", "#10B981"},
	domain.RiskMedium: {"Medium Risk", "#F59E0B"},
	domain.RiskHigh:   {"High Risk", "#EF4444"},
}

// Chart colors per emotion type; unknown types fall back to the neutral color.
var emotionColors = map[string]string{
	"happy":      "#FBBF24",
	"sad":        "#60A5FA",
	"angry":      "#EF4444",
	"confused":   "#A78BFA",
	"fearful":    "#818CF8",
	"neutral":    "#9CA3AF",
	"excited":    "#F472B6",
	"frustrated": "#FB923C",
}

// NamedSlice is one colored slice of a distribution chart.
type NamedSlice struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

// WeeklyPoint is one weekday of the overview's trailing-week series.
type WeeklyPoint struct {
	Day     string `json:"day"` // short weekday label, e.g. "Mon"
	Total   int    `json:"total"`
	Safe    int    `json:"safe"`
	Flagged int    `json:"flagged"`
}

// Overview is the chart bundle for the analytics landing view.
type Overview struct {
	RiskData     []NamedSlice           `json:"riskData"`
	CategoryData []domain.CategoryCount `json:"categoryData"`
	EmotionData  []NamedSlice           `json:"emotionData"`
	WeeklyTrend  []WeeklyPoint          `json:"weeklyTrend"`
}

// AnalyticsService computes chart-ready views over a user's full history.
type AnalyticsService struct {
	DB *gorm.DB

	// Location sets day boundaries for trend bucketing; nil means UTC.
	Location *time.Location

	// TrendMaxDays caps the configurable trend window; 0 disables the cap.
	TrendMaxDays int

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

func (s *AnalyticsService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *AnalyticsService) loc() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.UTC
}

// Overview aggregates the user's entire history into the distribution
// charts plus a trailing 7-day series labeled by weekday.
func (s *AnalyticsService) Overview(ctx context.Context, userID string) (*Overview, error) {
	tr := otel.Tracer("services/AnalyticsService")
	ctx, span := tr.Start(ctx, "Overview",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	now := s.clock()
	records, err := repo.ListQueriesRange(ctx, s.DB, userID, time.Time{}, now)
	if err != nil {
		return nil, err
	}

	// Distributions over the full history. The daily axis is not wanted
	// here, so only the breakdowns are computed.
	riskBreakdown, categoryBreakdown, emotionBreakdown := analytics.Breakdowns(records)

	out := &Overview{
		RiskData:     make([]NamedSlice, 0, len(riskBreakdown)),
		CategoryData: categoryBreakdown,
		EmotionData:  make([]NamedSlice, 0, len(emotionBreakdown)),
		WeeklyTrend:  make([]WeeklyPoint, 0, overviewWeekDays),
	}
	// The distribution charts plot percentage shares, not raw counts.
	for _, rl := range riskBreakdown {
		d := riskDisplay[rl.Level]
		out.RiskData = append(out.RiskData, NamedSlice{Name: d.Name, Value: rl.Percentage, Color: d.Color})
	}
	for _, ec := range emotionBreakdown {
		color, ok := emotionColors[ec.Emotion]
		if !ok {
			color = emotionColors[domain.EmotionNeutral]
		}
		out.EmotionData = append(out.EmotionData, NamedSlice{Name: ec.Emotion, Value: ec.Percentage, Color: color})
	}

	for _, p := range analytics.Trend(records, now, overviewWeekDays, s.loc()) {
		d, perr := time.ParseInLocation("2006-01-02", p.Date, s.loc())
		if perr != nil {
			return nil, perr
		}
		out.WeeklyTrend = append(out.WeeklyTrend, WeeklyPoint{
			Day:     d.Format("Mon"),
			Total:   p.Total,
			Safe:    p.Safe,
			Flagged: p.Flagged,
		})
	}
	return out, nil
}

// Trends returns the trailing daily series for the given window. days
// defaults to 30 and is capped at TrendMaxDays when configured.
func (s *AnalyticsService) Trends(ctx context.Context, userID string, days int) ([]analytics.TrendPoint, error) {
	tr := otel.Tracer("services/AnalyticsService")
	ctx, span := tr.Start(ctx, "Trends",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("days", days),
		),
	)
	defer span.End()

	if days <= 0 {
		days = defaultTrendDays
	}
	if s.TrendMaxDays > 0 && days > s.TrendMaxDays {
		days = s.TrendMaxDays
	}

	now := s.clock()
	from := now.In(s.loc()).AddDate(0, 0, -(days - 1))
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, s.loc())
	records, err := repo.ListQueriesRange(ctx, s.DB, userID, start, now)
	if err != nil {
		return nil, err
	}
	return analytics.Trend(records, now, days, s.loc()), nil
}
