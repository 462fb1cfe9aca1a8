package command

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/sleep-hub/sleep-hub/internal/domain/stage"
)

// Status represents the lifecycle state of an actuator command. Only PENDING
// is assigned here; later states are owned by the actuator executor.
type Status string

const (
	StatusPending Status = "PENDING"
)

// Command is an actuator instruction created once per approved stage
// transition. A command document is immutable after creation.
type Command struct {
	ID         int64           `json:"id"`
	UserID     string          `json:"userId"`
	SessionID  string          `json:"sessionId"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Status     Status          `json:"status"`
	TTLSeconds int             `json:"ttlSeconds"`
	CreatedAt  time.Time       `json:"createdAt"`
	DedupKey   string          `json:"dedupKey"`
}

// New builds a PENDING command for a transition.
func New(userID, sessionID, cmdType string, payload json.RawMessage, ttlSeconds int, dedupKey string) *Command {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return &Command{
		UserID:     userID,
		SessionID:  sessionID,
		Type:       cmdType,
		Payload:    payload,
		Status:     StatusPending,
		TTLSeconds: ttlSeconds,
		CreatedAt:  time.Now().UTC(),
		DedupKey:   dedupKey,
	}
}

// dedupKeyLen truncates the digest; 12 hex chars are plenty for per-user
// command volumes while keeping keys readable in the store.
const dedupKeyLen = 12

// DedupKey derives the deterministic idempotency key for a transition. The
// digest covers (userId, sessionId, stage, changedAt truncated to whole
// seconds) so redelivery of the same transition maps to the same key while a
// later re-entry into the same stage gets a fresh one.
func DedupKey(userID, sessionID string, st stage.Stage, changedAt time.Time) string {
	core, _ := json.Marshal(struct {
		S   string `json:"s"`
		Stg string `json:"stg"`
		T   int64  `json:"t"`
		U   string `json:"u"`
	}{
		S:   sessionID,
		Stg: st.String(),
		T:   changedAt.Unix(),
		U:   userID,
	})
	sum := sha1.Sum(core)
	return hex.EncodeToString(sum[:])[:dedupKeyLen]
}
