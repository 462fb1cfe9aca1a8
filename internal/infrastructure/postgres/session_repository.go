package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sleep-hub/sleep-hub/internal/domain/session"
	"github.com/sleep-hub/sleep-hub/internal/domain/stage"
)

// txMaxAttempts bounds the retry loop for serialization conflicts.
const txMaxAttempts = 5

// SessionStateRepository implements session.Repository over Postgres.
// RunInTx runs its callback in a SERIALIZABLE transaction and retries on
// serialization failures, so concurrent evaluations of the same session key
// behave as if executed one at a time.
type SessionStateRepository struct {
	pool *pgxpool.Pool
}

func NewSessionStateRepository(pool *pgxpool.Pool) *SessionStateRepository {
	return &SessionStateRepository{pool: pool}
}

func (r *SessionStateRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, store session.TxStore) error) error {
	for attempt := 0; attempt < txMaxAttempts; attempt++ {
		err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			return fn(ctx, &sessionTx{tx: tx})
		})
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
	}
	return session.ErrTxExhausted
}

// isSerializationFailure matches serialization_failure and deadlock_detected,
// the two SQLSTATEs Postgres raises when a serializable transaction must be
// retried.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func (r *SessionStateRepository) Get(ctx context.Context, userID, sessionID string) (*session.State, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT user_id, session_id, stable_stage, raw_stage, last_change_at, updated_at, last_source_ts
		FROM session_state WHERE user_id=$1 AND session_id=$2
	`, userID, sessionID)
	return scanState(row)
}

func (r *SessionStateRepository) ListStaleAwake(ctx context.Context, cutoff time.Time, limit int) ([]*session.State, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, session_id, stable_stage, raw_stage, last_change_at, updated_at, last_source_ts
		FROM session_state
		WHERE stable_stage=$1 AND last_change_at < $2
		ORDER BY last_change_at ASC LIMIT $3
	`, stage.StageAwake, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*session.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// sessionTx exposes the per-transaction operations to the stabilizer.
type sessionTx struct {
	tx pgx.Tx
}

func (t *sessionTx) Get(ctx context.Context, userID, sessionID string) (*session.State, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT user_id, session_id, stable_stage, raw_stage, last_change_at, updated_at, last_source_ts
		FROM session_state WHERE user_id=$1 AND session_id=$2
	`, userID, sessionID)
	return scanState(row)
}

func (t *sessionTx) Create(ctx context.Context, st *session.State) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO session_state
		(user_id, session_id, stable_stage, raw_stage, last_change_at, updated_at, last_source_ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, st.UserID, st.SessionID, st.StableStage, st.RawStage, st.LastChangeAt, st.UpdatedAt, st.LastSourceTS)
	return err
}

func (t *sessionTx) Heartbeat(ctx context.Context, userID, sessionID string, raw stage.Stage, sourceTS, now time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE session_state SET raw_stage=$1, last_source_ts=$2, updated_at=$3
		WHERE user_id=$4 AND session_id=$5
	`, raw, sourceTS, now, userID, sessionID)
	return err
}

func (t *sessionTx) ApproveTransition(ctx context.Context, userID, sessionID string, raw stage.Stage, sourceTS, now time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE session_state SET stable_stage=$1, raw_stage=$1, last_change_at=$2, last_source_ts=$3, updated_at=$2
		WHERE user_id=$4 AND session_id=$5
	`, raw, now, sourceTS, userID, sessionID)
	return err
}

func scanState(row pgx.Row) (*session.State, error) {
	var st session.State
	if err := row.Scan(&st.UserID, &st.SessionID, &st.StableStage, &st.RawStage, &st.LastChangeAt, &st.UpdatedAt, &st.LastSourceTS); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}
