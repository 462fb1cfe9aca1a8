package notification

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for notification persistence
type Repository interface {
	Create(ctx context.Context, notification *Notification) error
	GetByID(ctx context.Context, notificationID uuid.UUID) (*Notification, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error)
	Update(ctx context.Context, notification *Notification) error

	// Worker support
	ListPendingNotifications(ctx context.Context, limit int) ([]*Notification, error)
	ListRetryableNotifications(ctx context.Context, limit int) ([]*Notification, error)
	ExpireNotifications(ctx context.Context) (int64, error)
}

// SSEHub defines the interface for managing SSE connections
type SSEHub interface {
	// Client management
	Register(client *SSEClient)
	Unregister(clientID string)
	GetClient(clientID string) *SSEClient
	GetClientCount() int

	// Broadcasting
	BroadcastToAll(message *SSEMessage)
	BroadcastToUser(userID string, message *SSEMessage)
	SendToClient(clientID string, message *SSEMessage) error

	// Lifecycle
	Stop()
}
