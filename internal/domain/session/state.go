package session

import (
	"time"

	"github.com/sleep-hub/sleep-hub/internal/domain/stage"
)

// State is the single mutable document tracked per sleep session. StableStage
// is authoritative for all downstream consumers and changes only through an
// approved transition; the heartbeat fields advance on every processed event.
type State struct {
	UserID       string      `json:"userId"`
	SessionID    string      `json:"sessionId"`
	StableStage  stage.Stage `json:"stableStage"`
	RawStage     stage.Stage `json:"rawStage"`
	LastChangeAt time.Time   `json:"lastChangeAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
	LastSourceTS time.Time   `json:"lastSourceTs"`
}

// Key returns the document key for a session.
func Key(userID, sessionID string) string {
	return userID + "__" + sessionID
}

// Key returns the state's document key.
func (s *State) Key() string {
	return Key(s.UserID, s.SessionID)
}

// NewState builds the cold-start state for a session's first event.
func NewState(userID, sessionID string, raw stage.Stage, sourceTS, now time.Time) *State {
	return &State{
		UserID:       userID,
		SessionID:    sessionID,
		StableStage:  raw,
		RawStage:     raw,
		LastChangeAt: now,
		UpdatedAt:    now,
		LastSourceTS: sourceTS,
	}
}
