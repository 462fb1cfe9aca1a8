package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sleep-hub/sleep-hub/internal/domain/command"
)

// CommandRepository implements command.Repository.
type CommandRepository struct {
	pool *pgxpool.Pool
}

func NewCommandRepository(pool *pgxpool.Pool) *CommandRepository {
	return &CommandRepository{pool: pool}
}

// CreateIfAbsent inserts the command unless one with the same dedup key
// already exists. The unique index on dedup_key makes the insert a no-op in
// that case, which is what gives dispatch its exactly-once behavior.
func (r *CommandRepository) CreateIfAbsent(ctx context.Context, c *command.Command) (command.CreateOutcome, error) {
	res, err := r.pool.Exec(ctx, `
		INSERT INTO commands (user_id, session_id, type, payload, status, ttl_seconds, created_at, dedup_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (dedup_key) DO NOTHING
	`, c.UserID, c.SessionID, c.Type, c.Payload, c.Status, c.TTLSeconds, c.CreatedAt, c.DedupKey)
	if err != nil {
		return command.OutcomeAlreadyExists, err
	}
	if res.RowsAffected() == 0 {
		return command.OutcomeAlreadyExists, nil
	}
	return command.OutcomeCreated, nil
}

func (r *CommandRepository) GetByDedupKey(ctx context.Context, dedupKey string) (*command.Command, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, session_id, type, payload, status, ttl_seconds, created_at, dedup_key
		FROM commands WHERE dedup_key=$1
	`, dedupKey)
	return scanCommand(row)
}

func (r *CommandRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*command.Command, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, session_id, type, payload, status, ttl_seconds, created_at, dedup_key
		FROM commands WHERE session_id=$1 ORDER BY created_at DESC LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*command.Command
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCommand(row pgx.Row) (*command.Command, error) {
	var c command.Command
	var payload json.RawMessage
	if err := row.Scan(&c.ID, &c.UserID, &c.SessionID, &c.Type, &payload, &c.Status, &c.TTLSeconds, &c.CreatedAt, &c.DedupKey); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if len(payload) > 0 {
		c.Payload = payload
	}
	return &c, nil
}
