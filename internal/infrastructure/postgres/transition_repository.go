package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sleep-hub/sleep-hub/internal/domain/transition"
)

// TransitionRepository implements transition.Repository.
type TransitionRepository struct {
	pool *pgxpool.Pool
}

func NewTransitionRepository(pool *pgxpool.Pool) *TransitionRepository {
	return &TransitionRepository{pool: pool}
}

func (r *TransitionRepository) Append(ctx context.Context, rec *transition.Record) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transitions (user_id, session_id, stage, raw_stage, confidence, recorded_at, changed_at, source_ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.UserID, rec.SessionID, rec.Stage, rec.RawStage, rec.Confidence, rec.RecordedAt, rec.ChangedAt, rec.SourceTS)
	return err
}

func (r *TransitionRepository) ListBySession(ctx context.Context, sessionID string) ([]*transition.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, session_id, stage, raw_stage, confidence, recorded_at, changed_at, source_ts
		FROM transitions WHERE session_id=$1 ORDER BY changed_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*transition.Record
	for rows.Next() {
		var rec transition.Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.SessionID, &rec.Stage, &rec.RawStage, &rec.Confidence, &rec.RecordedAt, &rec.ChangedAt, &rec.SourceTS); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
