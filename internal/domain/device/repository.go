package device

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for registered devices.
type Repository interface {
	Create(ctx context.Context, d *Device) error
	GetByID(ctx context.Context, deviceID uuid.UUID) (*Device, error)
	ListByUser(ctx context.Context, userID string) ([]*Device, error)
	UpdateSettings(ctx context.Context, deviceID uuid.UUID, settings NotificationSettings) error
	UpdatePushToken(ctx context.Context, deviceID uuid.UUID, token string) error
	TouchLastSeen(ctx context.Context, deviceID uuid.UUID) error
}
