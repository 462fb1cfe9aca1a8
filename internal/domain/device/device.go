package device

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidAPIKey = errors.New("invalid API key")
	ErrNotFound      = errors.New("device not found")
)

// NotificationSettings holds the per-user notification toggles. A missing
// toggle defaults to enabled.
type NotificationSettings struct {
	SleepReport bool `json:"sleepReport"`
	SleepScore  bool `json:"sleepScore"`
	Snoring     bool `json:"snoring"`
	Guide       bool `json:"guide"`
}

// DefaultSettings enables every notification kind.
func DefaultSettings() NotificationSettings {
	return NotificationSettings{
		SleepReport: true,
		SleepScore:  true,
		Snoring:     true,
		Guide:       true,
	}
}

// Device is a registered bed device tied to a user. The API key secret is
// stored only as a bcrypt hash; the plaintext is returned once at
// registration.
type Device struct {
	DeviceID   uuid.UUID            `json:"deviceId"`
	UserID     string               `json:"userId"`
	Name       string               `json:"name"`
	APIKeyHash string               `json:"-"`
	PushToken  *string              `json:"pushToken,omitempty"`
	Settings   NotificationSettings `json:"settings"`
	CreatedAt  time.Time            `json:"createdAt"`
	LastSeenAt *time.Time           `json:"lastSeenAt,omitempty"`
}

// NewDevice registers a device and hashes its API key secret.
func NewDevice(userID, name, apiKeySecret string) (*Device, error) {
	if userID == "" {
		return nil, errors.New("userId is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKeySecret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Device{
		DeviceID:   uuid.New(),
		UserID:     userID,
		Name:       name,
		APIKeyHash: string(hash),
		Settings:   DefaultSettings(),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// VerifyAPIKey checks an API key secret against the stored hash.
func (d *Device) VerifyAPIKey(secret string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(d.APIKeyHash), []byte(secret)); err != nil {
		return ErrInvalidAPIKey
	}
	return nil
}

// SetPushToken updates the device's push delivery token.
func (d *Device) SetPushToken(token string) {
	d.PushToken = &token
}

// Allows reports whether the user's settings permit a notification kind.
// Unknown kinds are allowed; the toggles gate only the named categories.
func (s NotificationSettings) Allows(kind string) bool {
	switch kind {
	case "SLEEP_REPORT":
		return s.SleepReport
	case "SLEEP_SCORE":
		return s.SleepScore
	case "SNORING":
		return s.Snoring
	case "GUIDE":
		return s.Guide
	default:
		return true
	}
}
