package score

import (
	"context"
	"fmt"
	"time"

	"github.com/sleep-hub/sleep-hub/internal/domain/report"
)

// CohortStats averages a group of reports, e.g. all weekend nights.
type CohortStats struct {
	Count    int     `json:"count"`
	AvgScore float64 `json:"avgScore"`
	AvgHours float64 `json:"avgHours"`
}

// WeekTrendPoint is one week's average score within the trend window.
type WeekTrendPoint struct {
	WeeksAgo int     `json:"weeksAgo"`
	AvgScore float64 `json:"avgScore"`
	Count    int     `json:"count"`
}

// TrendInsight is a lightweight advisory derived from period statistics.
type TrendInsight struct {
	Type       report.InsightType `json:"type"`
	Message    string             `json:"message"`
	Suggestion string             `json:"suggestion"`
}

// MonthlyTrends analyzes a user's sleep pattern over a rolling window.
type MonthlyTrends struct {
	UserID      string `json:"userId"`
	PeriodDays  int    `json:"periodDays"`
	ReportCount int    `json:"reportCount"`

	OverallAverage struct {
		Score      float64 `json:"score"`
		SleepHours float64 `json:"sleepHours"`
		DeepRatio  float64 `json:"deepRatio"`
		REMRatio   float64 `json:"remRatio"`
	} `json:"overallAverage"`

	Weekday   *CohortStats           `json:"weekday,omitempty"`
	Weekend   *CohortStats           `json:"weekend,omitempty"`
	ByWeekday map[string]CohortStats `json:"byWeekday,omitempty"`

	WeeklyTrends []WeekTrendPoint `json:"weeklyTrends,omitempty"`
	Trend        string           `json:"trend"`
	TrendMessage string           `json:"trendMessage"`
	Insights     []TrendInsight   `json:"insights,omitempty"`
}

// MonthlyTrends aggregates the user's reports over the last days days and
// derives weekday versus weekend patterns plus a four week score trend.
// days defaults to 30 when non-positive.
func (s *Service) MonthlyTrends(ctx context.Context, userID string, days int) (*MonthlyTrends, error) {
	if days <= 0 {
		days = 30
	}
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -days)

	reports, err := s.reports.ListByUserSince(ctx, userID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to load reports: %w", err)
	}

	trends := &MonthlyTrends{
		UserID:      userID,
		PeriodDays:  days,
		ReportCount: len(reports),
		Trend:       "insufficient_data",
	}
	if len(reports) == 0 {
		trends.TrendMessage = "not enough data for a trend yet"
		return trends, nil
	}

	var scoreSum, hourSum, deepSum, remSum float64
	for _, r := range reports {
		scoreSum += float64(r.TotalScore)
		hourSum += r.Summary.TotalDurationHours
		deepSum += r.Summary.DeepRatio
		remSum += r.Summary.REMRatio
	}
	n := float64(len(reports))
	trends.OverallAverage.Score = round1(scoreSum / n)
	trends.OverallAverage.SleepHours = round2(hourSum / n)
	trends.OverallAverage.DeepRatio = round1(deepSum / n)
	trends.OverallAverage.REMRatio = round1(remSum / n)

	var weekdayReports, weekendReports []*report.Report
	byDay := make(map[time.Weekday][]*report.Report)
	for _, r := range reports {
		wd := r.CreatedAt.UTC().Weekday()
		byDay[wd] = append(byDay[wd], r)
		if wd == time.Saturday || wd == time.Sunday {
			weekendReports = append(weekendReports, r)
		} else {
			weekdayReports = append(weekdayReports, r)
		}
	}
	trends.Weekday = cohort(weekdayReports)
	trends.Weekend = cohort(weekendReports)

	trends.ByWeekday = make(map[string]CohortStats)
	for wd, group := range byDay {
		if c := cohort(group); c != nil {
			trends.ByWeekday[wd.String()] = *c
		}
	}

	// Weekly buckets, oldest first.
	for week := 3; week >= 0; week-- {
		bucketStart := now.AddDate(0, 0, -(week+1)*7)
		bucketEnd := now.AddDate(0, 0, -week*7)
		var sum float64
		count := 0
		for _, r := range reports {
			ts := r.CreatedAt.UTC()
			if !ts.Before(bucketStart) && ts.Before(bucketEnd) {
				sum += float64(r.TotalScore)
				count++
			}
		}
		if count > 0 {
			trends.WeeklyTrends = append(trends.WeeklyTrends, WeekTrendPoint{
				WeeksAgo: week + 1,
				AvgScore: round1(sum / float64(count)),
				Count:    count,
			})
		}
	}

	if len(trends.WeeklyTrends) >= 2 {
		first := trends.WeeklyTrends[0].AvgScore
		last := trends.WeeklyTrends[len(trends.WeeklyTrends)-1].AvgScore
		change := last - first
		switch {
		case change > 5:
			trends.Trend = "improving"
			trends.TrendMessage = fmt.Sprintf("improved by %.1f points over the last 4 weeks", change)
		case change < -5:
			trends.Trend = "declining"
			trends.TrendMessage = fmt.Sprintf("dropped by %.1f points over the last 4 weeks", -change)
		default:
			trends.Trend = "stable"
			trends.TrendMessage = "stable over the last 4 weeks"
		}
	} else {
		trends.TrendMessage = "not enough data for a trend yet"
	}

	trends.Insights = trendInsights(trends)
	return trends, nil
}

func cohort(reports []*report.Report) *CohortStats {
	if len(reports) == 0 {
		return nil
	}
	var scoreSum, hourSum float64
	for _, r := range reports {
		scoreSum += float64(r.TotalScore)
		hourSum += r.Summary.TotalDurationHours
	}
	n := float64(len(reports))
	return &CohortStats{
		Count:    len(reports),
		AvgScore: round1(scoreSum / n),
		AvgHours: round2(hourSum / n),
	}
}

func trendInsights(t *MonthlyTrends) []TrendInsight {
	var out []TrendInsight

	if t.Weekday != nil && t.Weekend != nil {
		diff := t.Weekend.AvgScore - t.Weekday.AvgScore
		if diff > 10 {
			out = append(out, TrendInsight{
				Type:       report.InsightInfo,
				Message:    fmt.Sprintf("weekend sleep scores %.0f points higher than weekdays", diff),
				Suggestion: "try keeping weekday sleep habits closer to your weekends",
			})
		} else if diff < -10 {
			out = append(out, TrendInsight{
				Type:       report.InsightWarning,
				Message:    fmt.Sprintf("weekend sleep scores %.0f points lower than weekdays", -diff),
				Suggestion: "keep a regular sleep schedule on weekends too",
			})
		}
	}

	if len(t.ByWeekday) > 0 {
		var bestDay, worstDay string
		var bestScore, worstScore float64
		first := true
		for day, c := range t.ByWeekday {
			if first || c.AvgScore > bestScore {
				bestDay, bestScore = day, c.AvgScore
			}
			if first || c.AvgScore < worstScore {
				worstDay, worstScore = day, c.AvgScore
			}
			first = false
		}
		out = append(out, TrendInsight{
			Type:       report.InsightInfo,
			Message:    fmt.Sprintf("%s is your best night (%.1f points)", bestDay, bestScore),
			Suggestion: fmt.Sprintf("apply your %s habits to the rest of the week", bestDay),
		})
		if worstScore < 60 {
			out = append(out, TrendInsight{
				Type:       report.InsightWarning,
				Message:    fmt.Sprintf("%s is your worst night (%.1f points)", worstDay, worstScore),
				Suggestion: fmt.Sprintf("take extra care the evening before %s", worstDay),
			})
		}
	}

	return out
}
