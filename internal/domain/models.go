// Package domain defines the persistence models for scored queries and
// generated reports. These types are mapped with GORM and form the core
// data layer of the safety dashboard backend.
package domain

import (
	"time"
)

// Safety classification values produced by the classifier.
const (
	SafetySafe    = "safe"
	SafetyUnsafe  = "unsafe"
	SafetyUnknown = "unknown"
)

// Risk levels. RiskLevels lists them in canonical (ascending) order; the
// risk breakdown in ReportData is always seeded with all three.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// RiskLevels is the closed, ordered set of risk levels.
var RiskLevels = []string{RiskLow, RiskMedium, RiskHigh}

// Categories is the closed set of content categories a query can be
// assigned. CategoryNone is the default for unclassified content.
var Categories = []string{
	"Hate Speech",
	"Harassment",
	"Sexually Explicit",
	"Dangerous & Illegal",
	"Prompt Injection",
	"Misinformation",
	"Educational",
	"Creative",
	"Technical",
	"Business",
	"None",
}

// CategoryNone is the default category for queries with no matched class.
const CategoryNone = "None"

// Emotions is the closed set of emotion types the classifier may emit.
var Emotions = []string{
	"happy", "sad", "angry", "confused",
	"fearful", "neutral", "excited", "frustrated",
}

// EmotionNeutral is the default emotion type.
const EmotionNeutral = "neutral"

// ValidRiskLevel reports whether s is one of the allowed risk levels.
func ValidRiskLevel(s string) bool {
	return s == RiskLow || s == RiskMedium || s == RiskHigh
}

// ValidCategory reports whether s is a member of the closed category set.
func ValidCategory(s string) bool {
	for _, c := range Categories {
		if c == s {
			return true
		}
	}
	return false
}

// ValidEmotion reports whether s is a member of the closed emotion set.
func ValidEmotion(s string) bool {
	for _, e := range Emotions {
		if e == s {
			return true
		}
	}
	return false
}

// Emotion captures the dominant emotion detected in a query.
type Emotion struct {
	Type  string `json:"type"  gorm:"type:varchar(16);not null;default:'neutral'"`
	Emoji string `json:"emoji" gorm:"type:varchar(8);not null;default:'😐'"`
}

// Analysis is the structured classifier output embedded in a QueryRecord.
// It is computed exactly once at submission time and never mutated.
//
// Fields:
//   - Safety: "safe", "unsafe" or "unknown".
//   - RiskLevel: "low", "medium" or "high".
//   - Confidence: classifier confidence in [0,1].
//   - Category: one of the closed category set; "None" when unclassified.
//   - Severity: integer severity in [1,10].
//   - Reason: optional free-text rationale.
//   - Emotion: dominant emotion type plus display emoji.
type Analysis struct {
	Safety     string  `json:"safety"     gorm:"type:varchar(16);not null"`
	RiskLevel  string  `json:"riskLevel"  gorm:"type:varchar(16);not null;index:idx_user_risk,priority:2"`
	Confidence float64 `json:"confidence" gorm:"not null"`
	Category   string  `json:"category"   gorm:"type:varchar(32);not null;default:'None';index:idx_user_category,priority:2"`
	Severity   int     `json:"severity"   gorm:"not null;default:1"`
	Reason     string  `json:"reason,omitempty" gorm:"type:text"`
	Emotion    Emotion `json:"emotion"    gorm:"embedded;embeddedPrefix:emotion_"`
}

// QueryRecord is one scored query event. Records are write-once: created on
// submission with their analysis attached, then only ever read.
//
// Invariant: Flagged == (Analysis.Safety == "unsafe").
type QueryRecord struct {
	ID           string    `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID       string    `json:"-"            gorm:"type:varchar(64);not null;index:idx_user_queries,priority:1;index:idx_user_risk,priority:1;index:idx_user_category,priority:1"`
	Text         string    `json:"query"        gorm:"type:text;not null"`
	Analysis     Analysis  `json:"analysis"     gorm:"embedded;embeddedPrefix:analysis_"`
	Flagged      bool      `json:"flagged"      gorm:"not null;default:false;index"`
	IPAddress    string    `json:"-"            gorm:"type:varchar(64)"`
	UserAgent    string    `json:"-"            gorm:"type:varchar(255)"`
	ResponseTime int64     `json:"responseTime" gorm:"not null;default:0"` // milliseconds
	CreatedAt    time.Time `json:"createdAt"    gorm:"index:idx_user_queries,priority:2"`
}

// TableName returns the database table name for QueryRecord.
func (QueryRecord) TableName() string { return "queries" }

// ReportTypes is the closed set of report types.
var ReportTypes = []string{
	"Safety Analysis",
	"Risk Assessment",
	"Emotional Analysis",
	"Usage Statistics",
	"Custom Report",
}

// ValidReportType reports whether s is an allowed report type.
func ValidReportType(s string) bool {
	for _, t := range ReportTypes {
		if t == s {
			return true
		}
	}
	return false
}

// ReportFormats lists the allowed presentation formats. The format is a tag
// only; the stored data is always the JSON aggregation result, and file
// encoders consume it downstream.
var ReportFormats = []string{"csv", "xlsx", "pdf", "json"}

// ValidReportFormat reports whether s is an allowed report format.
func ValidReportFormat(s string) bool {
	for _, f := range ReportFormats {
		if f == s {
			return true
		}
	}
	return false
}

// Report lifecycle states. The state machine is
// generating → completed | failed; both end states are terminal.
const (
	ReportGenerating = "generating"
	ReportCompleted  = "completed"
	ReportFailed     = "failed"
)

// ValidReportStatus reports whether s is a known lifecycle state.
func ValidReportStatus(s string) bool {
	return s == ReportGenerating || s == ReportCompleted || s == ReportFailed
}

// DateRange is a closed calendar interval [From, To].
type DateRange struct {
	From time.Time `json:"from" gorm:"not null"`
	To   time.Time `json:"to"   gorm:"not null"`
}

// CategoryCount is one category bucket of an aggregation result.
type CategoryCount struct {
	Category   string `json:"category"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// RiskLevelCount is one risk-level bucket. All three levels are always
// present in a result, including zero-count ones.
type RiskLevelCount struct {
	Level      string `json:"level"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// EmotionCount is one emotion bucket. Only observed emotions appear.
type EmotionCount struct {
	Emotion    string `json:"emotion"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// DailyStat is the per-calendar-day slice of an aggregation result.
// The daily axis covers every day of the requested range, including days
// with no records.
type DailyStat struct {
	Date           time.Time `json:"date"`
	TotalQueries   int       `json:"totalQueries"`
	FlaggedQueries int       `json:"flaggedQueries"`
	SafeQueries    int       `json:"safeQueries"`
}

// ReportData is a full aggregation result as captured inside a Report.
//
// Invariants:
//   - SafeQueries + FlaggedQueries == TotalQueries.
//   - Every percentage is an integer in [0,100]; all zero when empty.
//   - RiskLevelBreakdown always holds exactly low, medium, high.
//   - DailyStats has one entry per calendar day of the range, in order.
type ReportData struct {
	TotalQueries        int              `json:"totalQueries"`
	FlaggedQueries      int              `json:"flaggedQueries"`
	SafeQueries         int              `json:"safeQueries"`
	AverageConfidence   float64          `json:"averageConfidence"`
	AverageResponseTime int64            `json:"averageResponseTime"`
	CategoryBreakdown   []CategoryCount  `json:"categoryBreakdown"`
	RiskLevelBreakdown  []RiskLevelCount `json:"riskLevelBreakdown"`
	EmotionalAnalysis   []EmotionCount   `json:"emotionalAnalysis"`
	DailyStats          []DailyStat      `json:"dailyStats"`
}

// Report is a named, persisted capture of one aggregation run.
//
// Lifecycle: created in status "generating"; on success the data snapshot
// is attached and the status becomes "completed"; on aggregation failure
// the status becomes "failed" with FailureReason set and the row is kept,
// so the failure stays visible. DownloadCount only moves from "completed".
type Report struct {
	ID            string      `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID        string      `json:"-"             gorm:"type:varchar(64);not null;index:idx_user_reports,priority:1"`
	Name          string      `json:"name"          gorm:"type:varchar(200);not null"`
	Type          string      `json:"type"          gorm:"type:varchar(32);not null"`
	DateRange     DateRange   `json:"dateRange"     gorm:"embedded;embeddedPrefix:range_"`
	Format        string      `json:"format"        gorm:"type:varchar(8);not null"`
	Status        string      `json:"status"        gorm:"type:varchar(16);not null;default:'generating';index"`
	Data          *ReportData `json:"data,omitempty" gorm:"serializer:json"`
	FailureReason string      `json:"failureReason,omitempty" gorm:"type:text"`
	FileSize      int64       `json:"fileSize"      gorm:"not null;default:0"` // bytes of serialized data
	DownloadCount int         `json:"downloadCount" gorm:"not null;default:0"`
	CreatedAt     time.Time   `json:"createdAt"     gorm:"index:idx_user_reports,priority:2"`
	CompletedAt   *time.Time  `json:"completedAt,omitempty"`
}

// TableName returns the database table name for Report.
func (Report) TableName() string { return "reports" }
