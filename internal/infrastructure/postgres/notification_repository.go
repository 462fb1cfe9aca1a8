package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sleep-hub/sleep-hub/internal/domain/notification"
)

// NotificationRepository implements notification.Repository.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications
		(notification_id, user_id, session_id, kind, channel, title, body, payload, status, retry_count, max_retries, last_error, expires_at, created_at, sent_at, failed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, n.NotificationID, n.UserID, n.SessionID, n.Kind, n.Channel, n.Title, n.Body, n.Payload, n.Status, n.RetryCount, n.MaxRetries, n.LastError, n.ExpiresAt, n.CreatedAt, n.SentAt, n.FailedAt)
	return err
}

func (r *NotificationRepository) GetByID(ctx context.Context, notificationID uuid.UUID) (*notification.Notification, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, notification_id, user_id, session_id, kind, channel, title, body, payload, status, retry_count, max_retries, last_error, expires_at, created_at, sent_at, failed_at
		FROM notifications WHERE notification_id=$1
	`, notificationID)
	return scanNotification(row)
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*notification.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, notification_id, user_id, session_id, kind, channel, title, body, payload, status, retry_count, max_retries, last_error, expires_at, created_at, sent_at, failed_at
		FROM notifications WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNotifications(rows)
}

func (r *NotificationRepository) Update(ctx context.Context, n *notification.Notification) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET status=$1, retry_count=$2, last_error=$3, sent_at=$4, failed_at=$5
		WHERE notification_id=$6
	`, n.Status, n.RetryCount, n.LastError, n.SentAt, n.FailedAt, n.NotificationID)
	return err
}

func (r *NotificationRepository) ListPendingNotifications(ctx context.Context, limit int) ([]*notification.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, notification_id, user_id, session_id, kind, channel, title, body, payload, status, retry_count, max_retries, last_error, expires_at, created_at, sent_at, failed_at
		FROM notifications WHERE status='PENDING' ORDER BY created_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNotifications(rows)
}

func (r *NotificationRepository) ListRetryableNotifications(ctx context.Context, limit int) ([]*notification.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, notification_id, user_id, session_id, kind, channel, title, body, payload, status, retry_count, max_retries, last_error, expires_at, created_at, sent_at, failed_at
		FROM notifications
		WHERE status='FAILED' AND retry_count < max_retries AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNotifications(rows)
}

func (r *NotificationRepository) ExpireNotifications(ctx context.Context) (int64, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET status='EXPIRED'
		WHERE status IN ('PENDING','FAILED') AND expires_at IS NOT NULL AND expires_at < NOW()
	`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func collectNotifications(rows pgx.Rows) ([]*notification.Notification, error) {
	var out []*notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	var n notification.Notification
	var payload []byte
	if err := row.Scan(&n.ID, &n.NotificationID, &n.UserID, &n.SessionID, &n.Kind, &n.Channel, &n.Title, &n.Body, &payload, &n.Status, &n.RetryCount, &n.MaxRetries, &n.LastError, &n.ExpiresAt, &n.CreatedAt, &n.SentAt, &n.FailedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if len(payload) > 0 {
		n.Payload = payload
	}
	return &n, nil
}
