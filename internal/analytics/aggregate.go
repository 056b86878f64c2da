// Package analytics implements the query aggregation engine: pure,
// deterministic functions that turn an owner-scoped set of scored query
// records plus a closed calendar range into statistical summaries
// (totals, breakdowns, daily buckets, trends).
//
// Engineering notes, in the spirit of a small library:
//
//   - No logging and no I/O; callers fetch records and decide persistence.
//   - No shared mutable state: concurrent calls never interfere.
//   - Deterministic output: the same records and range always produce the
//     same result, byte for byte (stable ordering, fixed tie-breaks).
//   - Calendar-day bucketing is performed in an explicit *time.Location so
//     day-boundary behavior is a parameter, not an ambient global. A record
//     timestamped exactly at midnight belongs to that day.
//
// Percentages are integers computed as floor(count/total*100 + 0.5) — the
// rounding downstream consumers were built against — and 0 when total is 0.
package analytics

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/promptwatch/go-safety-backend/internal/domain"
)

// ErrInvalidRange is returned when the requested range has from after to
// (compared at calendar-day granularity in the bucketing location).
var ErrInvalidRange = errors.New("invalid date range: from is after to")

// categoryUnknown is the bucket for records carrying no category value.
// It is intentionally distinct from the closed category set.
const categoryUnknown = "Unknown"

// Aggregate computes the full aggregation result for records over the
// closed calendar range [from, to]. The records are assumed to be already
// scoped to one owner and to the interval by the caller; Aggregate itself
// does not filter by time.
//
// An empty record set is not an error: all counts and percentages are zero
// and DailyStats still enumerates every day of the range.
func Aggregate(records []domain.QueryRecord, from, to time.Time, loc *time.Location) (domain.ReportData, error) {
	if loc == nil {
		loc = time.UTC
	}
	fromDay := dayStart(from, loc)
	toDay := dayStart(to, loc)
	if fromDay.After(toDay) {
		return domain.ReportData{}, ErrInvalidRange
	}

	total := len(records)
	flagged := 0
	var confidenceSum float64
	var responseSum int64

	// Per-day accumulators keyed by calendar day in loc.
	type dayCount struct{ total, flagged int }
	days := make(map[string]*dayCount, total)

	for i := range records {
		r := &records[i]
		if r.Flagged {
			flagged++
		}
		confidenceSum += r.Analysis.Confidence
		responseSum += r.ResponseTime

		key := r.CreatedAt.In(loc).Format("2006-01-02")
		dc := days[key]
		if dc == nil {
			dc = &dayCount{}
			days[key] = dc
		}
		dc.total++
		if r.Flagged {
			dc.flagged++
		}
	}

	out := domain.ReportData{
		TotalQueries:   total,
		FlaggedQueries: flagged,
		SafeQueries:    total - flagged,
	}
	if total > 0 {
		out.AverageConfidence = round2(confidenceSum / float64(total))
		out.AverageResponseTime = int64(math.Floor(float64(responseSum)/float64(total) + 0.5))
	}

	out.RiskLevelBreakdown, out.CategoryBreakdown, out.EmotionalAnalysis = Breakdowns(records)

	// Daily axis: one entry per calendar day, both endpoints inclusive,
	// zero-filled for quiet days.
	n := daysBetween(fromDay, toDay) + 1
	out.DailyStats = make([]domain.DailyStat, 0, n)
	for d := fromDay; !d.After(toDay); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		var t, f int
		if dc := days[key]; dc != nil {
			t, f = dc.total, dc.flagged
		}
		out.DailyStats = append(out.DailyStats, domain.DailyStat{
			Date:           d,
			TotalQueries:   t,
			FlaggedQueries: f,
			SafeQueries:    t - f,
		})
	}

	return out, nil
}

// Breakdowns computes the three distribution slices over records without
// touching the daily axis. Views that only chart distributions call this
// directly; enumerating every calendar day of a long history would be
// wasted work there.
//
// Category and emotion keep only observed keys in first-encountered order
// (categories then sorted by descending count, ties stable); risk is seeded
// with all three levels so absent ones still appear with zero counts.
func Breakdowns(records []domain.QueryRecord) ([]domain.RiskLevelCount, []domain.CategoryCount, []domain.EmotionCount) {
	total := len(records)

	categoryOrder := make([]string, 0, 8)
	categoryCounts := make(map[string]int, 8)
	emotionOrder := make([]string, 0, 8)
	emotionCounts := make(map[string]int, 8)
	riskCounts := map[string]int{
		domain.RiskLow:    0,
		domain.RiskMedium: 0,
		domain.RiskHigh:   0,
	}

	for i := range records {
		r := &records[i]

		cat := r.Analysis.Category
		if cat == "" {
			cat = categoryUnknown
		}
		if _, seen := categoryCounts[cat]; !seen {
			categoryOrder = append(categoryOrder, cat)
		}
		categoryCounts[cat]++

		if _, ok := riskCounts[r.Analysis.RiskLevel]; ok {
			riskCounts[r.Analysis.RiskLevel]++
		}

		emo := r.Analysis.Emotion.Type
		if emo == "" {
			emo = domain.EmotionNeutral
		}
		if _, seen := emotionCounts[emo]; !seen {
			emotionOrder = append(emotionOrder, emo)
		}
		emotionCounts[emo]++
	}

	// Risk breakdown: dense, canonical low → medium → high order.
	risk := make([]domain.RiskLevelCount, 0, len(domain.RiskLevels))
	for _, lv := range domain.RiskLevels {
		risk = append(risk, domain.RiskLevelCount{
			Level:      lv,
			Count:      riskCounts[lv],
			Percentage: percentage(riskCounts[lv], total),
		})
	}

	// Category breakdown: descending count, ties keep first-encounter order.
	category := make([]domain.CategoryCount, 0, len(categoryOrder))
	for _, c := range categoryOrder {
		category = append(category, domain.CategoryCount{
			Category:   c,
			Count:      categoryCounts[c],
			Percentage: percentage(categoryCounts[c], total),
		})
	}
	sort.SliceStable(category, func(a, b int) bool {
		return category[a].Count > category[b].Count
	})

	// Emotion breakdown: sparse, first-encounter order.
	emotion := make([]domain.EmotionCount, 0, len(emotionOrder))
	for _, e := range emotionOrder {
		emotion = append(emotion, domain.EmotionCount{
			Emotion:    e,
			Count:      emotionCounts[e],
			Percentage: percentage(emotionCounts[e], total),
		})
	}

	return risk, category, emotion
}

// percentage returns the integer percentage of count over total using
// floor(x + 0.5) rounding, or 0 when total is 0.
func percentage(count, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Floor(float64(count)/float64(total)*100 + 0.5))
}

// round2 rounds to two decimal places.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// dayStart returns t truncated to midnight of its calendar day in loc.
func dayStart(t time.Time, loc *time.Location) time.Time {
	tl := t.In(loc)
	return time.Date(tl.Year(), tl.Month(), tl.Day(), 0, 0, 0, 0, loc)
}

// daysBetween returns the number of whole calendar days from a to b.
// Both arguments must already be day-start values in the same location.
func daysBetween(a, b time.Time) int {
	n := 0
	for d := a; d.Before(b); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}
