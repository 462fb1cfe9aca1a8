package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sleep-hub/sleep-hub/internal/domain/report"
)

// ReportRepository implements report.Repository. Breakdown and summary are
// stored as JSONB; scoring always writes them whole.
type ReportRepository struct {
	pool *pgxpool.Pool
}

func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

func (r *ReportRepository) Upsert(ctx context.Context, rep *report.Report) error {
	breakdown, err := json.Marshal(rep.Breakdown)
	if err != nil {
		return err
	}
	summary, err := json.Marshal(rep.Summary)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO sleep_reports (report_id, user_id, session_id, total_score, grade, message, breakdown, summary, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (session_id) DO UPDATE SET
			total_score=EXCLUDED.total_score, grade=EXCLUDED.grade, message=EXCLUDED.message,
			breakdown=EXCLUDED.breakdown, summary=EXCLUDED.summary, created_at=EXCLUDED.created_at
	`, rep.ReportID, rep.UserID, rep.SessionID, rep.TotalScore, rep.Grade, rep.Message, breakdown, summary, rep.CreatedAt)
	return err
}

func (r *ReportRepository) GetBySession(ctx context.Context, sessionID string) (*report.Report, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT report_id, user_id, session_id, total_score, grade, message, breakdown, summary, created_at
		FROM sleep_reports WHERE session_id=$1
	`, sessionID)
	return scanReport(row)
}

func (r *ReportRepository) ListByUserSince(ctx context.Context, userID string, since time.Time) ([]*report.Report, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT report_id, user_id, session_id, total_score, grade, message, breakdown, summary, created_at
		FROM sleep_reports WHERE user_id=$1 AND created_at >= $2 ORDER BY created_at ASC
	`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*report.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (r *ReportRepository) SaveInsights(ctx context.Context, set *report.InsightSet) error {
	overall, err := json.Marshal(set.Overall)
	if err != nil {
		return err
	}
	insights, err := json.Marshal(set.Insights)
	if err != nil {
		return err
	}
	plan, err := json.Marshal(set.ActionPlan)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO sleep_insights (session_id, score, overall, insights, action_plan, generated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (session_id) DO UPDATE SET
			score=EXCLUDED.score, overall=EXCLUDED.overall, insights=EXCLUDED.insights,
			action_plan=EXCLUDED.action_plan, generated_at=EXCLUDED.generated_at
	`, set.SessionID, set.Score, overall, insights, plan, set.GeneratedAt)
	return err
}

func (r *ReportRepository) GetInsights(ctx context.Context, sessionID string) (*report.InsightSet, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT session_id, score, overall, insights, action_plan, generated_at
		FROM sleep_insights WHERE session_id=$1
	`, sessionID)

	var set report.InsightSet
	var overall, insights, plan []byte
	if err := row.Scan(&set.SessionID, &set.Score, &overall, &insights, &plan, &set.GeneratedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(overall, &set.Overall); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(insights, &set.Insights); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(plan, &set.ActionPlan); err != nil {
		return nil, err
	}
	return &set, nil
}

func scanReport(row pgx.Row) (*report.Report, error) {
	var rep report.Report
	var breakdown, summary []byte
	if err := row.Scan(&rep.ReportID, &rep.UserID, &rep.SessionID, &rep.TotalScore, &rep.Grade, &rep.Message, &breakdown, &summary, &rep.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(breakdown, &rep.Breakdown); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(summary, &rep.Summary); err != nil {
		return nil, err
	}
	return &rep, nil
}
