package report

import (
	"time"

	"github.com/google/uuid"
)

// Breakdown holds the per-rubric sub-scores making up a sleep score.
type Breakdown struct {
	DurationScore   int `json:"durationScore"`
	DeepScore       int `json:"deepScore"`
	REMScore        int `json:"remScore"`
	EfficiencyScore int `json:"efficiencyScore"`
}

// Summary aggregates a session's stage dwell times and ratios.
type Summary struct {
	TotalDurationHours float64 `json:"totalDurationHours"`
	DeepSleepHours     float64 `json:"deepSleepHours"`
	REMSleepHours      float64 `json:"remSleepHours"`
	LightSleepHours    float64 `json:"lightSleepHours"`
	AwakeHours         float64 `json:"awakeHours"`

	DeepRatio  float64 `json:"deepRatio"`
	REMRatio   float64 `json:"remRatio"`
	AwakeRatio float64 `json:"awakeRatio"`

	ApneaCount     int     `json:"apneaCount"`
	SnoringMinutes float64 `json:"snoringMinutes"`
}

// Report is the scored outcome of one completed sleep session.
type Report struct {
	ReportID   uuid.UUID `json:"reportId"`
	UserID     string    `json:"userId"`
	SessionID  string    `json:"sessionId"`
	TotalScore int       `json:"totalScore"`
	Grade      string    `json:"grade"`
	Message    string    `json:"message"`
	Breakdown  Breakdown `json:"breakdown"`
	Summary    Summary   `json:"summary"`
	CreatedAt  time.Time `json:"createdAt"`
}

// InsightType orders insights by urgency.
type InsightType string

const (
	InsightCritical InsightType = "critical"
	InsightWarning  InsightType = "warning"
	InsightInfo     InsightType = "info"
)

// Insight is a single advisory derived from a report.
type Insight struct {
	Type     InsightType `json:"type"`
	Category string      `json:"category"`
	Title    string      `json:"title"`
	Message  string      `json:"message"`
	Priority int         `json:"priority"`
	Impact   string      `json:"impact"`
	Actions  []string    `json:"actions"`
}

// ActionPlan buckets insight actions by horizon.
type ActionPlan struct {
	Today    []string `json:"today"`
	ThisWeek []string `json:"thisWeek"`
	LongTerm []string `json:"longTerm"`
}

// Overall is the summary verdict attached to an insight set.
type Overall struct {
	Grade   string `json:"grade"`
	Message string `json:"message"`
	Summary string `json:"summary"`
}

// InsightSet is the persisted collection of insights for a session.
type InsightSet struct {
	SessionID   string     `json:"sessionId"`
	Score       int        `json:"score"`
	Overall     Overall    `json:"overall"`
	Insights    []Insight  `json:"insights"`
	ActionPlan  ActionPlan `json:"actionPlan"`
	GeneratedAt time.Time  `json:"generatedAt"`
}
