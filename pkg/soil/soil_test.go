package soil

import (
	"testing"
)

func TestReadingValid(t *testing.T) {
	r := Reading{DeviceID: "device_germany", TimestampMs: 1700000000000, Values: map[string]float64{"N": 50}}
	if err := r.Valid(); err != nil {
		t.Errorf("expected valid reading, got %v", err)
	}

	r.DeviceID = ""
	if err := r.Valid(); err != ErrMissingDeviceID {
		t.Errorf("expected ErrMissingDeviceID, got %v", err)
	}

	r.DeviceID = "device_germany"
	r.Values = nil
	if err := r.Valid(); err != ErrNoValues {
		t.Errorf("expected ErrNoValues, got %v", err)
	}
}

func TestDecodeReading(t *testing.T) {
	payload := []byte(`{"device_id":"device_india","timestamp":1700000000.5,"N":50.5,"ph":6.8,"firmware":"v2","extra":12.0}`)

	r, err := DecodeReading(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if r.DeviceID != "device_india" {
		t.Errorf("expected device_india, got %s", r.DeviceID)
	}
	if r.TimestampMs != 1700000000500 {
		t.Errorf("expected timestamp 1700000000500, got %d", r.TimestampMs)
	}
	if r.Values["N"] != 50.5 {
		t.Errorf("expected N=50.5, got %f", r.Values["N"])
	}
	// Unknown numeric fields are preserved, non-numeric ones dropped.
	if r.Values["extra"] != 12.0 {
		t.Errorf("expected extra=12.0, got %f", r.Values["extra"])
	}
	if _, ok := r.Values["firmware"]; ok {
		t.Error("non-numeric field should not appear in values")
	}
}

func TestDecodeReadingMalformed(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"missing device id", `{"N":50}`},
		{"non-numeric tracked parameter", `{"device_id":"d1","N":"fifty"}`},
		{"not json", `not json`},
		{"no values", `{"device_id":"d1"}`},
	}

	for _, tc := range cases {
		if _, err := DecodeReading([]byte(tc.payload)); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestSeverityRank(t *testing.T) {
	order := []Severity{SeverityNormal, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("expected %s to rank above %s", order[i], order[i-1])
		}
	}
}
