package reading

import (
	"encoding/json"
	"time"
)

// epochMillisCutoff disambiguates epoch seconds from epoch milliseconds:
// values above it are treated as milliseconds.
const epochMillisCutoff = 1e12

// NormalizeTimestamp coerces the heterogeneous timestamp representations a
// device may send into an absolute UTC time. Accepted forms: RFC 3339 / ISO
// string, epoch seconds, epoch milliseconds, or a structured
// {"seconds": s, "nanos": n} pair. Absent or unparseable values fall back to
// now. The raw representation never escapes this function.
func NormalizeTimestamp(raw json.RawMessage, now time.Time) time.Time {
	if len(raw) == 0 {
		return now.UTC()
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return now.UTC()
	}

	switch t := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UTC()
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.UTC()
		}
		// ISO strings without a zone are taken as UTC
		if parsed, err := time.Parse("2006-01-02T15:04:05", t); err == nil {
			return parsed.UTC()
		}
		return now.UTC()
	case float64:
		if t <= 0 {
			return now.UTC()
		}
		if t > epochMillisCutoff {
			return time.UnixMilli(int64(t)).UTC()
		}
		sec := int64(t)
		nsec := int64((t - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	case map[string]interface{}:
		sec, ok := t["seconds"].(float64)
		if !ok {
			return now.UTC()
		}
		nanos, _ := t["nanos"].(float64)
		return time.Unix(int64(sec), int64(nanos)).UTC()
	default:
		return now.UTC()
	}
}
