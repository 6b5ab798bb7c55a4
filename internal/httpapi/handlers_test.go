package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soilsense/edge/internal/store"
	"github.com/soilsense/edge/pkg/soil"
)

func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemory()
	ctx := context.Background()

	base := time.Now().Add(-time.Minute).UnixMilli()
	for i := 0; i < 3; i++ {
		r := soil.Reading{
			DeviceID:    "sensor-1",
			TimestampMs: base + int64(i)*1000,
			Values:      map[string]float64{"N": 50 + float64(i)},
		}
		if err := st.AppendReading(ctx, r, time.Hour); err != nil {
			t.Fatal(err)
		}
	}
	return st
}

func TestReadingsHandler(t *testing.T) {
	api := New(seededStore(t))
	mux := http.NewServeMux()
	api.Register(mux)

	req := httptest.NewRequest("GET", "/api/v1/devices/sensor-1/readings?window=10m", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["device_id"] != "sensor-1" {
		t.Errorf("device_id = %v", response["device_id"])
	}
	if response["count"].(float64) != 3 {
		t.Errorf("count = %v, want 3", response["count"])
	}
}

func TestReadingsHandlerInvalidWindow(t *testing.T) {
	api := New(store.NewMemory())
	mux := http.NewServeMux()
	api.Register(mux)

	req := httptest.NewRequest("GET", "/api/v1/devices/sensor-1/readings?window=bogus", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestSummaryHandlerMissing(t *testing.T) {
	api := New(store.NewMemory())
	mux := http.NewServeMux()
	api.Register(mux)

	req := httptest.NewRequest("GET", "/api/v1/devices/sensor-1/summary", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestSummaryHandler(t *testing.T) {
	st := store.NewMemory()
	summary := soil.Summary{
		DeviceID:      "sensor-1",
		WindowSeconds: 300,
		TimestampMs:   time.Now().UnixMilli(),
		SampleCount:   3,
		Parameters:    map[string]soil.ParameterStats{"N": {Mean: 51, Min: 50, Max: 52}},
	}
	if err := st.CacheSummary(context.Background(), summary, time.Hour); err != nil {
		t.Fatal(err)
	}

	api := New(st)
	mux := http.NewServeMux()
	api.Register(mux)

	req := httptest.NewRequest("GET", "/api/v1/devices/sensor-1/summary", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var got soil.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if got.SampleCount != 3 || got.Parameters["N"].Mean != 51 {
		t.Errorf("unexpected summary %+v", got)
	}
}

func TestAnomaliesHandler(t *testing.T) {
	st := store.NewMemory()
	for i := 0; i < 5; i++ {
		rec := store.AnomalyRecord{
			TimestampMs: int64(1000 + i),
			DeviceID:    "sensor-1",
			Parameter:   "N",
			Value:       120,
			Method:      soil.MethodCriticalThreshold,
		}
		if err := st.StoreAnomaly(context.Background(), rec, time.Hour); err != nil {
			t.Fatal(err)
		}
	}

	api := New(st)
	mux := http.NewServeMux()
	api.Register(mux)

	req := httptest.NewRequest("GET", "/api/v1/devices/sensor-1/anomalies?limit=2", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var response struct {
		DeviceID  string                `json:"device_id"`
		Anomalies []store.AnomalyRecord `json:"anomalies"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(response.Anomalies) != 2 {
		t.Fatalf("expected 2 anomalies, got %d", len(response.Anomalies))
	}
	// Newest first.
	if response.Anomalies[0].TimestampMs != 1004 {
		t.Errorf("first anomaly ts = %d, want 1004", response.Anomalies[0].TimestampMs)
	}
}

func TestUnknownSubresource(t *testing.T) {
	api := New(store.NewMemory())
	mux := http.NewServeMux()
	api.Register(mux)

	req := httptest.NewRequest("GET", "/api/v1/devices/sensor-1/bogus", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api := New(store.NewMemory())
	mux := http.NewServeMux()
	api.Register(mux)

	req := httptest.NewRequest("POST", "/api/v1/devices/sensor-1/readings", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", w.Code)
	}
}
