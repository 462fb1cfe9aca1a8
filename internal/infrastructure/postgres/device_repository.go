package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sleep-hub/sleep-hub/internal/domain/device"
)

// DeviceRepository implements device.Repository.
type DeviceRepository struct {
	pool *pgxpool.Pool
}

func NewDeviceRepository(pool *pgxpool.Pool) *DeviceRepository {
	return &DeviceRepository{pool: pool}
}

func (r *DeviceRepository) Create(ctx context.Context, d *device.Device) error {
	settings, err := json.Marshal(d.Settings)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO devices (device_id, user_id, name, api_key_hash, push_token, settings, created_at, last_seen_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, d.DeviceID, d.UserID, d.Name, d.APIKeyHash, d.PushToken, settings, d.CreatedAt, d.LastSeenAt)
	return err
}

func (r *DeviceRepository) GetByID(ctx context.Context, deviceID uuid.UUID) (*device.Device, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT device_id, user_id, name, api_key_hash, push_token, settings, created_at, last_seen_at
		FROM devices WHERE device_id=$1
	`, deviceID)
	return scanDevice(row)
}

func (r *DeviceRepository) ListByUser(ctx context.Context, userID string) ([]*device.Device, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT device_id, user_id, name, api_key_hash, push_token, settings, created_at, last_seen_at
		FROM devices WHERE user_id=$1 ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*device.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DeviceRepository) UpdateSettings(ctx context.Context, deviceID uuid.UUID, settings device.NotificationSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `UPDATE devices SET settings=$1 WHERE device_id=$2`, data, deviceID)
	return err
}

func (r *DeviceRepository) UpdatePushToken(ctx context.Context, deviceID uuid.UUID, token string) error {
	_, err := r.pool.Exec(ctx, `UPDATE devices SET push_token=$1 WHERE device_id=$2`, token, deviceID)
	return err
}

func (r *DeviceRepository) TouchLastSeen(ctx context.Context, deviceID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE devices SET last_seen_at=$1 WHERE device_id=$2`, time.Now().UTC(), deviceID)
	return err
}

func scanDevice(row pgx.Row) (*device.Device, error) {
	var d device.Device
	var settings []byte
	if err := row.Scan(&d.DeviceID, &d.UserID, &d.Name, &d.APIKeyHash, &d.PushToken, &settings, &d.CreatedAt, &d.LastSeenAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(settings, &d.Settings); err != nil {
		return nil, err
	}
	return &d, nil
}
