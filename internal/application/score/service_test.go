package score

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sleep-hub/sleep-hub/internal/domain/report"
	"github.com/sleep-hub/sleep-hub/internal/domain/stage"
	"github.com/sleep-hub/sleep-hub/internal/domain/transition"
)

type memTransitionRepo struct {
	records []*transition.Record
}

func (m *memTransitionRepo) Append(_ context.Context, rec *transition.Record) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memTransitionRepo) ListBySession(_ context.Context, sessionID string) ([]*transition.Record, error) {
	var out []*transition.Record
	for _, r := range m.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChangedAt.Before(out[j].ChangedAt) })
	return out, nil
}

type memReportRepo struct {
	bySession map[string]*report.Report
	insights  map[string]*report.InsightSet
}

func newMemReportRepo() *memReportRepo {
	return &memReportRepo{
		bySession: make(map[string]*report.Report),
		insights:  make(map[string]*report.InsightSet),
	}
}

func (m *memReportRepo) Upsert(_ context.Context, r *report.Report) error {
	m.bySession[r.SessionID] = r
	return nil
}

func (m *memReportRepo) GetBySession(_ context.Context, sessionID string) (*report.Report, error) {
	return m.bySession[sessionID], nil
}

func (m *memReportRepo) ListByUserSince(_ context.Context, userID string, since time.Time) ([]*report.Report, error) {
	var out []*report.Report
	for _, r := range m.bySession {
		if r.UserID == userID && !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memReportRepo) SaveInsights(_ context.Context, set *report.InsightSet) error {
	m.insights[set.SessionID] = set
	return nil
}

func (m *memReportRepo) GetInsights(_ context.Context, sessionID string) (*report.InsightSet, error) {
	return m.insights[sessionID], nil
}

func newTestService() (*Service, *memTransitionRepo, *memReportRepo) {
	transitions := &memTransitionRepo{}
	reports := newMemReportRepo()
	return NewService(transitions, reports, zerolog.Nop()), transitions, reports
}

func rec(userID, sessionID string, st stage.Stage, at time.Time) *transition.Record {
	return transition.NewRecord(userID, sessionID, st, st, at, at)
}

var night = time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)

func TestSessionScorePerfectNight(t *testing.T) {
	svc, transitions, reports := newTestService()

	// 8h total: 2h Light, 1.6h Deep (20%), 1.8h REM (22.5%), rest Light.
	transitions.records = []*transition.Record{
		rec("u1", "s1", stage.StageLight, night),
		rec("u1", "s1", stage.StageDeep, night.Add(2*time.Hour)),
		rec("u1", "s1", stage.StageREM, night.Add(2*time.Hour+5760*time.Second)),
		rec("u1", "s1", stage.StageLight, night.Add(2*time.Hour+(5760+6480)*time.Second)),
		rec("u1", "s1", stage.StageAwake, night.Add(8*time.Hour)),
	}

	rep, err := svc.SessionScore(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, 100, rep.TotalScore)
	assert.Equal(t, "S", rep.Grade)
	assert.Equal(t, 40, rep.Breakdown.DurationScore)
	assert.Equal(t, 25, rep.Breakdown.DeepScore)
	assert.Equal(t, 20, rep.Breakdown.REMScore)
	assert.Equal(t, 15, rep.Breakdown.EfficiencyScore)
	assert.Equal(t, 8.0, rep.Summary.TotalDurationHours)
	assert.Equal(t, 20.0, rep.Summary.DeepRatio)
	assert.Equal(t, 22.5, rep.Summary.REMRatio)
	assert.Equal(t, 0, rep.Summary.ApneaCount)
	assert.Equal(t, "u1", rep.UserID)

	stored, _ := reports.GetBySession(context.Background(), "s1")
	require.NotNil(t, stored)
	assert.Equal(t, rep.TotalScore, stored.TotalScore)
}

func TestSessionScoreRoughNight(t *testing.T) {
	svc, transitions, _ := newTestService()

	// 4h, entirely awake until the last record.
	transitions.records = []*transition.Record{
		rec("u1", "s2", stage.StageAwake, night),
		rec("u1", "s2", stage.StageDeep, night.Add(4*time.Hour)),
	}

	rep, err := svc.SessionScore(context.Background(), "s2")
	require.NoError(t, err)

	assert.Equal(t, 31, rep.TotalScore)
	assert.Equal(t, "D", rep.Grade)
	assert.Equal(t, 10, rep.Breakdown.DurationScore)
	assert.Equal(t, 3, rep.Breakdown.EfficiencyScore)
}

func TestSessionScoreCountsApneaAndSnoring(t *testing.T) {
	svc, transitions, _ := newTestService()

	transitions.records = []*transition.Record{
		rec("u1", "s3", stage.StageDeep, night),
		rec("u1", "s3", stage.StageApnea, night.Add(1*time.Hour)),
		rec("u1", "s3", stage.StageDeep, night.Add(1*time.Hour+2*time.Minute)),
		rec("u1", "s3", stage.StageApnea, night.Add(2*time.Hour)),
		rec("u1", "s3", stage.StageSnoring, night.Add(2*time.Hour+3*time.Minute)),
		rec("u1", "s3", stage.StageLight, night.Add(2*time.Hour+45*time.Minute)),
	}

	rep, err := svc.SessionScore(context.Background(), "s3")
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Summary.ApneaCount)
	assert.Equal(t, 42.0, rep.Summary.SnoringMinutes)
}

func TestSessionScoreNoData(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.SessionScore(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNoSessionData)
}

func TestSessionScoreIsIdempotent(t *testing.T) {
	svc, transitions, reports := newTestService()

	transitions.records = []*transition.Record{
		rec("u1", "s4", stage.StageDeep, night),
		rec("u1", "s4", stage.StageAwake, night.Add(7*time.Hour)),
	}

	first, err := svc.SessionScore(context.Background(), "s4")
	require.NoError(t, err)
	second, err := svc.SessionScore(context.Background(), "s4")
	require.NoError(t, err)

	assert.Equal(t, first.TotalScore, second.TotalScore)
	assert.Len(t, reports.bySession, 1)
}

func seedReport(reports *memReportRepo, sessionID string, score int, hours float64, createdAt time.Time) {
	reports.bySession[sessionID] = &report.Report{
		UserID:     "u1",
		SessionID:  sessionID,
		TotalScore: score,
		Summary:    report.Summary{TotalDurationHours: hours},
		CreatedAt:  createdAt,
	}
}

func TestWeeklyStats(t *testing.T) {
	svc, _, reports := newTestService()
	start := time.Now().UTC().AddDate(0, 0, -7)

	seedReport(reports, "d1", 60, 6.0, start.Add(24*time.Hour))
	seedReport(reports, "d2", 65, 6.5, start.Add(48*time.Hour))
	seedReport(reports, "d3", 80, 7.5, start.Add(96*time.Hour))
	seedReport(reports, "d4", 85, 8.0, start.Add(120*time.Hour))

	stats, err := svc.WeeklyStats(context.Background(), "u1", start)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.ReportCount)
	assert.Equal(t, 72.5, stats.Averages.Score)
	assert.Equal(t, 7.0, stats.Averages.SleepHours)
	assert.Equal(t, "d4", stats.BestDay.SessionID)
	assert.Equal(t, "d1", stats.WorstDay.SessionID)
	assert.Equal(t, "improving", stats.Trend)
}

func TestWeeklyStatsEmpty(t *testing.T) {
	svc, _, _ := newTestService()

	stats, err := svc.WeeklyStats(context.Background(), "nobody", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ReportCount)
	assert.Equal(t, "insufficient_data", stats.Trend)
}

func TestInsightsForTroubledSleep(t *testing.T) {
	svc, _, reports := newTestService()

	reports.bySession["s5"] = &report.Report{
		UserID:     "u1",
		SessionID:  "s5",
		TotalScore: 45,
		Summary: report.Summary{
			TotalDurationHours: 4.5,
			DeepRatio:          3.0,
			REMRatio:           8.0,
			AwakeRatio:         25.0,
			ApneaCount:         18,
			SnoringMinutes:     75,
		},
		CreatedAt: time.Now().UTC(),
	}

	set, err := svc.Insights(context.Background(), "s5")
	require.NoError(t, err)

	assert.Equal(t, "D", set.Overall.Grade)
	require.NotEmpty(t, set.Insights)
	// criticals sort first
	assert.Equal(t, report.InsightCritical, set.Insights[0].Type)

	categories := make(map[string]bool)
	for _, in := range set.Insights {
		categories[in.Category] = true
	}
	assert.True(t, categories["duration"])
	assert.True(t, categories["quality"])
	assert.True(t, categories["efficiency"])
	assert.True(t, categories["health"])

	assert.NotEmpty(t, set.ActionPlan.Today)
	assert.NotEmpty(t, set.ActionPlan.ThisWeek)

	stored, _ := reports.GetInsights(context.Background(), "s5")
	require.NotNil(t, stored)
}

func TestInsightsCleanSleepHasNone(t *testing.T) {
	svc, _, reports := newTestService()

	reports.bySession["s6"] = &report.Report{
		UserID:     "u1",
		SessionID:  "s6",
		TotalScore: 100,
		Summary: report.Summary{
			TotalDurationHours: 8,
			DeepRatio:          20,
			REMRatio:           22,
			AwakeRatio:         2,
		},
		CreatedAt: time.Now().UTC(),
	}

	set, err := svc.Insights(context.Background(), "s6")
	require.NoError(t, err)

	assert.Equal(t, "S", set.Overall.Grade)
	assert.Empty(t, set.Insights)
}

func TestInsightsMissingReport(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Insights(context.Background(), "missing")
	assert.Error(t, err)
}

func TestMonthlyTrends(t *testing.T) {
	svc, _, reports := newTestService()
	now := time.Now().UTC()

	// Two reports per week, newer weeks scoring higher.
	for week := 0; week < 4; week++ {
		base := 60 + (3-week)*10
		for i := 0; i < 2; i++ {
			createdAt := now.AddDate(0, 0, -(week*7 + 1 + i))
			seedReport(reports, fmt.Sprintf("s-w%d-%d", week, i), base, 7.0, createdAt)
		}
	}

	trends, err := svc.MonthlyTrends(context.Background(), "u1", 30)
	require.NoError(t, err)

	assert.Equal(t, 8, trends.ReportCount)
	assert.Equal(t, "improving", trends.Trend)
	assert.Equal(t, 7.0, trends.OverallAverage.SleepHours)
	require.Len(t, trends.WeeklyTrends, 4)
	assert.Greater(t, trends.WeeklyTrends[3].AvgScore, trends.WeeklyTrends[0].AvgScore)
	assert.NotEmpty(t, trends.ByWeekday)
}

func TestMonthlyTrendsEmpty(t *testing.T) {
	svc, _, _ := newTestService()

	trends, err := svc.MonthlyTrends(context.Background(), "nobody", 0)
	require.NoError(t, err)
	assert.Equal(t, 30, trends.PeriodDays)
	assert.Equal(t, "insufficient_data", trends.Trend)
}
