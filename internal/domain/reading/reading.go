package reading

import (
	"encoding/json"
	"time"
)

// Default identifiers applied when an inbound event omits them.
const (
	DefaultUserID    = "demoUser"
	DefaultSessionID = "demoSession"
)

// DefaultSpO2 is the neutral oxygen-saturation value for readings that omit it.
const DefaultSpO2 = 98.0

// Reading is a single normalized sensor sample from the bed device.
type Reading struct {
	HR        float64   `json:"hr"`
	SpO2      float64   `json:"spo2"`
	MicLevel  float64   `json:"micLevel"`
	Pressure  float64   `json:"pressure"`
	UserID    string    `json:"userId"`
	SessionID string    `json:"sessionId"`
	SourceTS  time.Time `json:"sourceTs"`
}

// SessionKey returns the session-state document key for this reading.
func (r Reading) SessionKey() string {
	return r.UserID + "__" + r.SessionID
}

// rawEvent is the wire shape of an inbound event before defaulting. Numeric
// fields are pointers so absence can be told apart from zero; ts stays raw
// until the normalizer resolves it.
type rawEvent struct {
	HR            *float64        `json:"hr"`
	SpO2          *float64        `json:"spo2"`
	MicLevel      *float64        `json:"mic_level"`
	Motion        *float64        `json:"motion"`
	PressureLevel *float64        `json:"pressure_level"`
	Pressure      *float64        `json:"pressure"`
	UserID        string          `json:"userId"`
	SessionID     string          `json:"sessionId"`
	TS            json.RawMessage `json:"ts"`
}

// Decode parses an inbound event payload into a Reading, applying defaults
// for every missing field. Malformed payloads are never fatal: whatever can
// be read is kept and the rest falls back, so the pipeline always produces a
// classifiable sample. now is used when the event carries no usable timestamp.
func Decode(payload []byte, now time.Time) Reading {
	var ev rawEvent
	// Best effort; a partial decode still fills the fields it reached.
	_ = json.Unmarshal(payload, &ev)

	r := Reading{
		SpO2:      DefaultSpO2,
		UserID:    DefaultUserID,
		SessionID: DefaultSessionID,
		SourceTS:  NormalizeTimestamp(ev.TS, now),
	}
	if ev.HR != nil {
		r.HR = *ev.HR
	}
	if ev.SpO2 != nil {
		r.SpO2 = *ev.SpO2
	}
	// mic_level preferred, legacy motion accepted
	if ev.MicLevel != nil {
		r.MicLevel = *ev.MicLevel
	} else if ev.Motion != nil {
		r.MicLevel = *ev.Motion
	}
	// pressure_level preferred, legacy pressure accepted
	if ev.PressureLevel != nil {
		r.Pressure = *ev.PressureLevel
	} else if ev.Pressure != nil {
		r.Pressure = *ev.Pressure
	}
	if ev.UserID != "" {
		r.UserID = ev.UserID
	}
	if ev.SessionID != "" {
		r.SessionID = ev.SessionID
	}
	return r
}
