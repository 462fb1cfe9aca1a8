package transition

import (
	"time"

	"github.com/sleep-hub/sleep-hub/internal/domain/stage"
)

// Record is an immutable log entry for one approved stage transition. It
// carries both the raw stage at the moment of approval and the resulting
// stable stage; analytics reads these, nothing mutates them.
type Record struct {
	ID         int64       `json:"id"`
	UserID     string      `json:"userId"`
	SessionID  string      `json:"sessionId"`
	Stage      stage.Stage `json:"stage"`
	RawStage   stage.Stage `json:"rawStage"`
	Confidence float64     `json:"confidence"`
	RecordedAt time.Time   `json:"recordedAt"`
	ChangedAt  time.Time   `json:"changedAt"`
	SourceTS   time.Time   `json:"sourceTs"`
}

// NewRecord builds a transition record for an approved stable stage change.
func NewRecord(userID, sessionID string, stable, raw stage.Stage, changedAt, sourceTS time.Time) *Record {
	return &Record{
		UserID:     userID,
		SessionID:  sessionID,
		Stage:      stable,
		RawStage:   raw,
		Confidence: stable.Confidence(),
		RecordedAt: time.Now().UTC(),
		ChangedAt:  changedAt,
		SourceTS:   sourceTS,
	}
}
