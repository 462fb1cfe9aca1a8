package reading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecodeDefaults(t *testing.T) {
	now := time.Date(2024, 3, 10, 4, 0, 0, 0, time.UTC)

	r := Decode([]byte(`{}`), now)

	assert.Equal(t, DefaultUserID, r.UserID)
	assert.Equal(t, DefaultSessionID, r.SessionID)
	assert.Equal(t, 0.0, r.HR)
	assert.Equal(t, DefaultSpO2, r.SpO2)
	assert.Equal(t, 0.0, r.MicLevel)
	assert.Equal(t, 0.0, r.Pressure)
	assert.Equal(t, now, r.SourceTS)
}

func TestDecodeFullEvent(t *testing.T) {
	now := time.Date(2024, 3, 10, 4, 0, 0, 0, time.UTC)
	payload := []byte(`{
		"hr": 58, "spo2": 96.5, "mic_level": 12, "pressure_level": 510,
		"userId": "u1", "sessionId": "s1", "ts": "2024-03-10T03:59:00Z"
	}`)

	r := Decode(payload, now)

	assert.Equal(t, 58.0, r.HR)
	assert.Equal(t, 96.5, r.SpO2)
	assert.Equal(t, 12.0, r.MicLevel)
	assert.Equal(t, 510.0, r.Pressure)
	assert.Equal(t, "u1", r.UserID)
	assert.Equal(t, "s1", r.SessionID)
	assert.Equal(t, time.Date(2024, 3, 10, 3, 59, 0, 0, time.UTC), r.SourceTS)
}

func TestDecodeLegacyAliases(t *testing.T) {
	now := time.Now().UTC()

	r := Decode([]byte(`{"motion": 7, "pressure": 1500}`), now)
	assert.Equal(t, 7.0, r.MicLevel)
	assert.Equal(t, 1500.0, r.Pressure)

	// canonical names win over aliases
	r = Decode([]byte(`{"mic_level": 3, "motion": 7, "pressure_level": 800, "pressure": 1500}`), now)
	assert.Equal(t, 3.0, r.MicLevel)
	assert.Equal(t, 800.0, r.Pressure)
}

func TestDecodeMalformedPayload(t *testing.T) {
	now := time.Now().UTC()

	// garbage payloads still yield a classifiable reading
	r := Decode([]byte(`not json at all`), now)
	assert.Equal(t, DefaultUserID, r.UserID)
	assert.Equal(t, now, r.SourceTS)
}

func TestSessionKey(t *testing.T) {
	r := Reading{UserID: "u1", SessionID: "s1"}
	assert.Equal(t, "u1__s1", r.SessionKey())
}
