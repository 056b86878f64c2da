package analytics

import (
	"time"

	"github.com/promptwatch/go-safety-backend/internal/domain"
)

// TrendPoint is one calendar day of a rolling trend series.
type TrendPoint struct {
	Date          string  `json:"date"` // YYYY-MM-DD in the bucketing location
	Total         int     `json:"total"`
	Safe          int     `json:"safe"`
	Flagged       int     `json:"flagged"`
	AvgConfidence float64 `json:"avgConfidence"` // per-day mean, 0 when no records
}

// Trend computes a trailing daily series of `days` calendar days ending on
// the day of `end` (inclusive). Records outside the window are ignored.
// Days without records yield a zero point with AvgConfidence 0.
//
// days values below 1 are clamped to 1.
func Trend(records []domain.QueryRecord, end time.Time, days int, loc *time.Location) []TrendPoint {
	if loc == nil {
		loc = time.UTC
	}
	if days < 1 {
		days = 1
	}
	endDay := dayStart(end, loc)
	startDay := endDay.AddDate(0, 0, -(days - 1))

	type dayAgg struct {
		total, flagged int
		confidenceSum  float64
	}
	byDay := make(map[string]*dayAgg, days)
	for i := range records {
		r := &records[i]
		d := dayStart(r.CreatedAt, loc)
		if d.Before(startDay) || d.After(endDay) {
			continue
		}
		key := d.Format("2006-01-02")
		agg := byDay[key]
		if agg == nil {
			agg = &dayAgg{}
			byDay[key] = agg
		}
		agg.total++
		if r.Flagged {
			agg.flagged++
		}
		agg.confidenceSum += r.Analysis.Confidence
	}

	out := make([]TrendPoint, 0, days)
	for d := startDay; !d.After(endDay); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		p := TrendPoint{Date: key}
		if agg := byDay[key]; agg != nil {
			p.Total = agg.total
			p.Flagged = agg.flagged
			p.Safe = agg.total - agg.flagged
			p.AvgConfidence = round2(agg.confidenceSum / float64(agg.total))
		}
		out = append(out, p)
	}
	return out
}
