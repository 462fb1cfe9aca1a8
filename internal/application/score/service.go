package score

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sleep-hub/sleep-hub/internal/domain/report"
	"github.com/sleep-hub/sleep-hub/internal/domain/stage"
	"github.com/sleep-hub/sleep-hub/internal/domain/transition"
)

// ErrNoSessionData is returned when a session has no transition log to score.
var ErrNoSessionData = errors.New("no transition data for session")

// Service computes sleep scores, insights and longer range statistics from
// the transition log and the stored reports.
type Service struct {
	transitions transition.Repository
	reports     report.Repository
	logger      zerolog.Logger
}

// NewService creates a score service.
func NewService(transitions transition.Repository, reports report.Repository, logger zerolog.Logger) *Service {
	return &Service{
		transitions: transitions,
		reports:     reports,
		logger:      logger.With().Str("service", "score").Logger(),
	}
}

// SessionScore scores one session from its transition log and upserts the
// resulting report. Rescoring a session replaces its earlier report.
func (s *Service) SessionScore(ctx context.Context, sessionID string) (*report.Report, error) {
	records, err := s.transitions.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transitions: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoSessionData
	}

	userID := records[0].UserID

	totalSec := records[len(records)-1].ChangedAt.Sub(records[0].ChangedAt).Seconds()
	totalHours := totalSec / 3600

	// Each stage holds from its transition until the next one. The final
	// stage has no successor and contributes no duration.
	durations := make(map[stage.Stage]float64)
	apneaCount := 0
	for i, rec := range records {
		if rec.Stage == stage.StageApnea {
			apneaCount++
		}
		if i == len(records)-1 {
			break
		}
		durations[rec.Stage] += records[i+1].ChangedAt.Sub(rec.ChangedAt).Seconds()
	}

	var deepRatio, remRatio, awakeRatio float64
	if totalSec > 0 {
		deepRatio = durations[stage.StageDeep] / totalSec
		remRatio = durations[stage.StageREM] / totalSec
		awakeRatio = durations[stage.StageAwake] / totalSec
	}

	breakdown := report.Breakdown{
		DurationScore:   durationScore(totalHours),
		DeepScore:       deepScore(deepRatio),
		REMScore:        remScore(remRatio),
		EfficiencyScore: efficiencyScore(awakeRatio),
	}
	total := breakdown.DurationScore + breakdown.DeepScore + breakdown.REMScore + breakdown.EfficiencyScore
	grade, message := gradeFor(total)

	rep := &report.Report{
		ReportID:   uuid.New(),
		UserID:     userID,
		SessionID:  sessionID,
		TotalScore: total,
		Grade:      grade,
		Message:    message,
		Breakdown:  breakdown,
		Summary: report.Summary{
			TotalDurationHours: round2(totalHours),
			DeepSleepHours:     round2(durations[stage.StageDeep] / 3600),
			REMSleepHours:      round2(durations[stage.StageREM] / 3600),
			LightSleepHours:    round2(durations[stage.StageLight] / 3600),
			AwakeHours:         round2(durations[stage.StageAwake] / 3600),
			DeepRatio:          round1(deepRatio * 100),
			REMRatio:           round1(remRatio * 100),
			AwakeRatio:         round1(awakeRatio * 100),
			ApneaCount:         apneaCount,
			SnoringMinutes:     round1(durations[stage.StageSnoring] / 60),
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := s.reports.Upsert(ctx, rep); err != nil {
		return nil, fmt.Errorf("failed to store report: %w", err)
	}

	s.logger.Info().
		Str("session_id", sessionID).
		Int("score", total).
		Str("grade", grade).
		Msg("sleep score computed")

	return rep, nil
}

// Sleep duration is worth 40 points; 7 to 9 hours is ideal.
func durationScore(hours float64) int {
	switch {
	case hours >= 7 && hours <= 9:
		return 40
	case hours > 9 && hours <= 10:
		return 35
	case hours >= 6 && hours < 7:
		return 30
	case hours >= 5 && hours < 6:
		return 20
	default:
		return 10
	}
}

// Deep sleep is worth 25 points; 15 to 25 percent of the night is ideal.
func deepScore(ratio float64) int {
	switch {
	case ratio >= 0.15 && ratio <= 0.25:
		return 25
	case ratio >= 0.10 && ratio < 0.15:
		return 20
	case ratio > 0.25 && ratio <= 0.30:
		return 20
	default:
		return 10
	}
}

// REM is worth 20 points; 20 to 25 percent of the night is ideal.
func remScore(ratio float64) int {
	switch {
	case ratio >= 0.20 && ratio <= 0.25:
		return 20
	case ratio >= 0.15 && ratio < 0.20:
		return 15
	case ratio > 0.25 && ratio <= 0.30:
		return 15
	default:
		return 8
	}
}

// Efficiency is worth 15 points; time awake under 5 percent is ideal.
func efficiencyScore(awakeRatio float64) int {
	switch {
	case awakeRatio < 0.05:
		return 15
	case awakeRatio < 0.10:
		return 12
	case awakeRatio < 0.15:
		return 8
	default:
		return 3
	}
}

func gradeFor(total int) (grade, message string) {
	switch {
	case total >= 90:
		return "S", "Excellent sleep!"
	case total >= 80:
		return "A", "Good sleep"
	case total >= 70:
		return "B", "Fair sleep"
	case total >= 60:
		return "C", "Sleep was insufficient"
	default:
		return "D", "Sleep needs improvement"
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Averages holds per-period mean values over a set of reports.
type Averages struct {
	Score      float64 `json:"score"`
	SleepHours float64 `json:"sleepHours"`
}

// DayHighlight points at a single session within a period.
type DayHighlight struct {
	SessionID  string  `json:"sessionId"`
	Score      int     `json:"score"`
	SleepHours float64 `json:"sleepHours"`
}

// WeeklyStats summarizes a user's reports over one week.
type WeeklyStats struct {
	UserID      string        `json:"userId"`
	WeekStart   time.Time     `json:"weekStart"`
	ReportCount int           `json:"reportCount"`
	Averages    Averages      `json:"averages"`
	BestDay     *DayHighlight `json:"bestDay,omitempty"`
	WorstDay    *DayHighlight `json:"worstDay,omitempty"`
	Trend       string        `json:"trend"`
}

// WeeklyStats aggregates the user's reports since weekStart. A zero weekStart
// defaults to seven days ago.
func (s *Service) WeeklyStats(ctx context.Context, userID string, weekStart time.Time) (*WeeklyStats, error) {
	if weekStart.IsZero() {
		weekStart = time.Now().UTC().AddDate(0, 0, -7)
	}

	reports, err := s.reports.ListByUserSince(ctx, userID, weekStart)
	if err != nil {
		return nil, fmt.Errorf("failed to load reports: %w", err)
	}

	stats := &WeeklyStats{
		UserID:      userID,
		WeekStart:   weekStart,
		ReportCount: len(reports),
		Trend:       "insufficient_data",
	}
	if len(reports) == 0 {
		return stats, nil
	}

	var scoreSum, hourSum float64
	best, worst := reports[0], reports[0]
	for _, r := range reports {
		scoreSum += float64(r.TotalScore)
		hourSum += r.Summary.TotalDurationHours
		if r.TotalScore > best.TotalScore {
			best = r
		}
		if r.TotalScore < worst.TotalScore {
			worst = r
		}
	}

	stats.Averages = Averages{
		Score:      round1(scoreSum / float64(len(reports))),
		SleepHours: round2(hourSum / float64(len(reports))),
	}
	stats.BestDay = &DayHighlight{SessionID: best.SessionID, Score: best.TotalScore, SleepHours: best.Summary.TotalDurationHours}
	stats.WorstDay = &DayHighlight{SessionID: worst.SessionID, Score: worst.TotalScore, SleepHours: worst.Summary.TotalDurationHours}

	// Compare the first half of the week against the second.
	if mid := len(reports) / 2; mid > 0 {
		var firstSum, secondSum float64
		for i, r := range reports {
			if i < mid {
				firstSum += float64(r.TotalScore)
			} else {
				secondSum += float64(r.TotalScore)
			}
		}
		firstAvg := firstSum / float64(mid)
		secondAvg := secondSum / float64(len(reports)-mid)
		switch {
		case secondAvg > firstAvg+5:
			stats.Trend = "improving"
		case secondAvg < firstAvg-5:
			stats.Trend = "declining"
		default:
			stats.Trend = "stable"
		}
	}

	return stats, nil
}

// Insights derives advisories from a session's stored report, persists them
// and returns the set. The report must exist; score the session first.
func (s *Service) Insights(ctx context.Context, sessionID string) (*report.InsightSet, error) {
	rep, err := s.reports.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	if rep == nil {
		return nil, fmt.Errorf("report not found for session %s", sessionID)
	}

	insights := buildInsights(rep)
	sort.SliceStable(insights, func(i, j int) bool { return insights[i].Priority < insights[j].Priority })

	set := &report.InsightSet{
		SessionID:   sessionID,
		Score:       rep.TotalScore,
		Overall:     overallFor(rep.TotalScore),
		Insights:    insights,
		ActionPlan:  buildActionPlan(insights),
		GeneratedAt: time.Now().UTC(),
	}

	if err := s.reports.SaveInsights(ctx, set); err != nil {
		return nil, fmt.Errorf("failed to store insights: %w", err)
	}

	s.logger.Info().
		Str("session_id", sessionID).
		Int("insights", len(insights)).
		Msg("insights generated")

	return set, nil
}

func buildInsights(rep *report.Report) []report.Insight {
	var out []report.Insight
	sum := rep.Summary

	switch {
	case sum.TotalDurationHours < 5:
		out = append(out, report.Insight{
			Type:     report.InsightCritical,
			Category: "duration",
			Title:    "Severe sleep deprivation",
			Message:  fmt.Sprintf("%.1f hours of sleep can put your health at risk", sum.TotalDurationHours),
			Priority: 1,
			Impact:   "health, focus, immune system",
			Actions: []string{
				"Aim for at least 7 hours tonight",
				"Move bedtime two hours earlier",
				"Keep naps under 20 minutes",
			},
		})
	case sum.TotalDurationHours < 6:
		out = append(out, report.Insight{
			Type:     report.InsightWarning,
			Category: "duration",
			Title:    "Short sleep duration",
			Message:  fmt.Sprintf("%.1f hours is below the recommended 7-9 hours", sum.TotalDurationHours),
			Priority: 2,
			Impact:   "accumulated fatigue, reduced productivity",
			Actions: []string{
				"Move bedtime one hour earlier",
				"Push the morning alarm 30 minutes later",
				"Catch up on sleep over the weekend",
			},
		})
	case sum.TotalDurationHours > 10:
		out = append(out, report.Insight{
			Type:     report.InsightInfo,
			Category: "duration",
			Title:    "Excessive sleep",
			Message:  fmt.Sprintf("%.1f hours exceeds the recommended 7-9 hours", sum.TotalDurationHours),
			Priority: 3,
			Impact:   "daytime drowsiness, low activity",
			Actions: []string{
				"Set a consistent wake-up time",
				"Increase daytime activity",
				"Cut back on caffeine",
			},
		})
	}

	switch {
	case sum.DeepRatio < 5:
		out = append(out, report.Insight{
			Type:     report.InsightCritical,
			Category: "quality",
			Title:    "Critically low deep sleep",
			Message:  fmt.Sprintf("Deep sleep at %.1f%% is far below the recommended 15-25%%", sum.DeepRatio),
			Priority: 1,
			Impact:   "recovery, growth hormone, immune system",
			Actions: []string{
				"No caffeine after 6pm",
				"30 minutes of cardio between 3pm and 5pm",
				"Warm shower two hours before bed",
				"Keep the bedroom at 18-20C",
			},
		})
	case sum.DeepRatio < 10:
		out = append(out, report.Insight{
			Type:     report.InsightWarning,
			Category: "quality",
			Title:    "Low deep sleep",
			Message:  fmt.Sprintf("Deep sleep at %.1f%% (%.1f hours) is below target", sum.DeepRatio, sum.DeepSleepHours),
			Priority: 2,
			Impact:   "recovery, memory",
			Actions: []string{
				"20-30 minutes of light exercise during the day",
				"Finish dinner three hours before bed",
				"10 minutes of stretching before bed",
			},
		})
	}

	if sum.REMRatio < 10 {
		out = append(out, report.Insight{
			Type:     report.InsightWarning,
			Category: "quality",
			Title:    "Low REM sleep",
			Message:  fmt.Sprintf("REM sleep at %.1f%% (%.1f hours) is below the recommended 20-25%%", sum.REMRatio, sum.REMSleepHours),
			Priority: 2,
			Impact:   "learning, memory, emotional regulation",
			Actions: []string{
				"Keep a regular sleep schedule",
				"Reduce alcohol intake",
				"Protect total sleep time",
			},
		})
	}

	switch {
	case sum.AwakeRatio > 20:
		out = append(out, report.Insight{
			Type:     report.InsightWarning,
			Category: "efficiency",
			Title:    "Very low sleep efficiency",
			Message:  fmt.Sprintf("Awake for %.1f%% (%.1f hours) of the night", sum.AwakeRatio, sum.AwakeHours),
			Priority: 2,
			Impact:   "sleep quality, daytime fatigue",
			Actions: []string{
				"Make the bedroom completely dark",
				"Block out noise (try earplugs)",
				"Screens off an hour before bed",
				"Use the bed only for sleep",
			},
		})
	case sum.AwakeRatio > 10:
		out = append(out, report.Insight{
			Type:     report.InsightInfo,
			Category: "efficiency",
			Title:    "Sleep efficiency could improve",
			Message:  fmt.Sprintf("Awake for %.1f%% of the night (target: under 5%%)", sum.AwakeRatio),
			Priority: 3,
			Impact:   "sleep quality",
			Actions: []string{
				"Check the bedroom for temperature, noise and light",
				"Build a consistent bedtime routine",
			},
		})
	}

	switch {
	case sum.ApneaCount > 15:
		out = append(out, report.Insight{
			Type:     report.InsightCritical,
			Category: "health",
			Title:    "Sleep apnea risk",
			Message:  fmt.Sprintf("%d apnea episodes detected during sleep", sum.ApneaCount),
			Priority: 1,
			Impact:   "cardiovascular health, brain oxygen supply",
			Actions: []string{
				"Book a sleep specialist consultation now",
				"A polysomnography study is recommended",
				"Sleep on your side for the time being",
			},
		})
	case sum.ApneaCount > 5:
		out = append(out, report.Insight{
			Type:     report.InsightWarning,
			Category: "health",
			Title:    "Apnea episodes detected",
			Message:  fmt.Sprintf("%d apnea episodes detected during sleep", sum.ApneaCount),
			Priority: 2,
			Impact:   "sleep quality, fatigue",
			Actions: []string{
				"Manage weight toward a normal BMI",
				"Avoid smoking and limit alcohol",
				"Get used to sleeping on your side",
				"See a doctor if it persists after two weeks",
			},
		})
	}

	switch {
	case sum.SnoringMinutes > 60:
		out = append(out, report.Insight{
			Type:     report.InsightWarning,
			Category: "health",
			Title:    "Heavy snoring detected",
			Message:  fmt.Sprintf("Snored for %.0f minutes during sleep", sum.SnoringMinutes),
			Priority: 2,
			Impact:   "sleep quality, bed partner",
			Actions: []string{
				"Sleep on your side (use a back-support pillow)",
				"Try nasal dilator strips",
				"Lose weight if overweight",
				"Reduce alcohol intake",
			},
		})
	case sum.SnoringMinutes > 30:
		out = append(out, report.Insight{
			Type:     report.InsightInfo,
			Category: "health",
			Title:    "Snoring detected",
			Message:  fmt.Sprintf("Snored for %.0f minutes during sleep", sum.SnoringMinutes),
			Priority: 3,
			Impact:   "sleep quality",
			Actions: []string{
				"Get used to sleeping on your side",
				"Adjust pillow height",
			},
		})
	}

	return out
}

func overallFor(score int) report.Overall {
	switch {
	case score >= 90:
		return report.Overall{Grade: "S", Message: "Perfect sleep!", Summary: "Every metric looks ideal. Keep your current sleep habits going."}
	case score >= 80:
		return report.Overall{Grade: "A", Message: "Good sleep", Summary: "Most metrics look healthy. A few small changes would make it perfect."}
	case score >= 70:
		return report.Overall{Grade: "B", Message: "Fair sleep", Summary: "The basics are there but some areas need work. See the advice below."}
	case score >= 60:
		return report.Overall{Grade: "C", Message: "Sleep needs improvement", Summary: "Several metrics need attention. Start with the highest priority items."}
	default:
		return report.Overall{Grade: "D", Message: "Sleep needs active management", Summary: "There are serious issues that can affect your health. Act on them now."}
	}
}

// buildActionPlan buckets the top insight actions by horizon: critical items
// land in today, warnings in this week, info in long term.
func buildActionPlan(insights []report.Insight) report.ActionPlan {
	var plan report.ActionPlan
	criticals, warnings, infos := 0, 0, 0
	for _, in := range insights {
		switch in.Type {
		case report.InsightCritical:
			if criticals < 2 {
				plan.Today = append(plan.Today, firstN(in.Actions, 2)...)
				criticals++
			}
		case report.InsightWarning:
			if warnings < 2 {
				plan.ThisWeek = append(plan.ThisWeek, firstN(in.Actions, 1)...)
				warnings++
			}
		case report.InsightInfo:
			if infos < 1 {
				plan.LongTerm = append(plan.LongTerm, firstN(in.Actions, 1)...)
				infos++
			}
		}
	}
	return plan
}

func firstN(actions []string, n int) []string {
	if len(actions) <= n {
		return actions
	}
	return actions[:n]
}
