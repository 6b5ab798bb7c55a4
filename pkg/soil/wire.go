package soil

import (
	"encoding/json"
	"fmt"
	"time"
)

// DecodeReading parses the flat inbound message format: a JSON object with
// device_id, an optional timestamp (seconds, fractional), and parameter
// values as top-level numeric fields. Non-numeric extra fields are ignored;
// a non-numeric value for a tracked parameter makes the payload malformed.
func DecodeReading(payload []byte) (Reading, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Reading{}, fmt.Errorf("decode reading: %w", err)
	}

	r := Reading{Values: make(map[string]float64, len(raw))}

	for key, val := range raw {
		switch key {
		case "device_id":
			id, ok := val.(string)
			if !ok {
				return Reading{}, ErrMissingDeviceID
			}
			r.DeviceID = id
		case "timestamp":
			ts, ok := val.(float64)
			if !ok || ts <= 0 {
				return Reading{}, ErrInvalidTimestamp
			}
			r.TimestampMs = int64(ts * 1000)
		default:
			num, ok := val.(float64)
			if !ok {
				if Tracked(key) {
					return Reading{}, fmt.Errorf("parameter %s: non-numeric value", key)
				}
				continue
			}
			r.Values[key] = num
		}
	}

	if r.TimestampMs == 0 {
		r.TimestampMs = time.Now().UnixMilli()
	}

	if err := r.Valid(); err != nil {
		return Reading{}, err
	}

	return r, nil
}
