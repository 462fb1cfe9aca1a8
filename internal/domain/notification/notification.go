package notification

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents the delivery status of a notification
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
	StatusExpired Status = "EXPIRED"
)

// Channel represents the notification delivery channel
type Channel string

const (
	ChannelSSE     Channel = "SSE"
	ChannelPush    Channel = "PUSH"
	ChannelWebhook Channel = "WEBHOOK"
)

// Kind classifies a sleep notification; kinds map one-to-one onto the
// per-user settings toggles.
type Kind string

const (
	KindSleepReport Kind = "SLEEP_REPORT"
	KindSleepScore  Kind = "SLEEP_SCORE"
	KindSnoring     Kind = "SNORING"
	KindGuide       Kind = "GUIDE"
	KindStageChange Kind = "STAGE_CHANGE"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrExpired           = errors.New("notification has expired")
	ErrClientNotFound    = errors.New("SSE client not found")
	ErrChannelFull       = errors.New("SSE message channel full")
	ErrCannotRetry       = errors.New("cannot retry notification")
)

// Notification represents a message queued for delivery to a user.
type Notification struct {
	ID             int64           `json:"id"`
	NotificationID uuid.UUID       `json:"notificationId"`
	UserID         string          `json:"userId"`
	SessionID      *string         `json:"sessionId,omitempty"`
	Kind           Kind            `json:"kind"`
	Channel        Channel         `json:"channel"`
	Title          string          `json:"title"`
	Body           string          `json:"body"`
	Payload        json.RawMessage `json:"payload"`
	Status         Status          `json:"status"`
	RetryCount     int             `json:"retryCount"`
	MaxRetries     int             `json:"maxRetries"`
	LastError      *string         `json:"lastError,omitempty"`
	ExpiresAt      *time.Time      `json:"expiresAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	SentAt         *time.Time      `json:"sentAt,omitempty"`
	FailedAt       *time.Time      `json:"failedAt,omitempty"`
}

// New creates a pending notification
func New(userID string, kind Kind, channel Channel, title, body string, payload json.RawMessage) *Notification {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return &Notification{
		NotificationID: uuid.New(),
		UserID:         userID,
		Kind:           kind,
		Channel:        channel,
		Title:          title,
		Body:           body,
		Payload:        payload,
		Status:         StatusPending,
		MaxRetries:     3,
		CreatedAt:      time.Now().UTC(),
	}
}

// SetSession ties the notification to a sleep session
func (n *Notification) SetSession(sessionID string) {
	n.SessionID = &sessionID
}

// SetExpiry sets the expiration time
func (n *Notification) SetExpiry(expiresAt time.Time) {
	n.ExpiresAt = &expiresAt
}

// IsExpired checks if the notification has expired
func (n *Notification) IsExpired() bool {
	if n.ExpiresAt == nil {
		return false
	}
	return time.Now().UTC().After(*n.ExpiresAt)
}

// CanTransitionTo checks if a transition to the target status is valid
func (n *Notification) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusPending: {StatusSent, StatusFailed, StatusExpired},
		StatusSent:    {},
		StatusFailed:  {StatusPending}, // Retry
		StatusExpired: {},
	}

	allowed, ok := transitions[n.Status]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// MarkSent marks the notification as sent
func (n *Notification) MarkSent() error {
	if n.IsExpired() {
		n.Status = StatusExpired
		return ErrExpired
	}
	if !n.CanTransitionTo(StatusSent) {
		return ErrInvalidTransition
	}
	n.Status = StatusSent
	now := time.Now().UTC()
	n.SentAt = &now
	return nil
}

// MarkFailed marks the notification as failed
func (n *Notification) MarkFailed(errMsg string) error {
	// Check expiration first - expired notifications should transition to EXPIRED state
	if n.IsExpired() {
		n.Status = StatusExpired
		return ErrExpired
	}
	if !n.CanTransitionTo(StatusFailed) {
		return ErrInvalidTransition
	}
	n.Status = StatusFailed
	now := time.Now().UTC()
	n.FailedAt = &now
	n.LastError = &errMsg
	n.RetryCount++
	return nil
}

// MarkExpired marks the notification as expired
func (n *Notification) MarkExpired() error {
	if !n.CanTransitionTo(StatusExpired) {
		return ErrInvalidTransition
	}
	n.Status = StatusExpired
	return nil
}

// CanRetry checks if the notification can be retried
func (n *Notification) CanRetry() bool {
	return n.Status == StatusFailed && n.RetryCount < n.MaxRetries && !n.IsExpired()
}

// ResetForRetry resets the notification for retry
func (n *Notification) ResetForRetry() error {
	if !n.CanRetry() {
		return ErrCannotRetry
	}
	n.Status = StatusPending
	n.FailedAt = nil
	return nil
}

// IsTerminal returns true if the notification is in a terminal state
func (n *Notification) IsTerminal() bool {
	return n.Status == StatusSent ||
		n.Status == StatusExpired ||
		(n.Status == StatusFailed && !n.CanRetry())
}

// SSEClient represents an active SSE connection
type SSEClient struct {
	ClientID    string
	UserID      *string
	ConnectedAt time.Time
	MessageChan chan *SSEMessage
}

// NewSSEClient creates a new SSE client
func NewSSEClient(clientID string, userID *string) *SSEClient {
	return &SSEClient{
		ClientID:    clientID,
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *SSEMessage, 100),
	}
}

// Close closes the client's message channel
func (c *SSEClient) Close() {
	close(c.MessageChan)
}

// SSEMessage represents a message to be sent via SSE
type SSEMessage struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewSSEMessage creates a new SSE message
func NewSSEMessage(event string, data json.RawMessage) *SSEMessage {
	return &SSEMessage{
		ID:        uuid.New().String(),
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
