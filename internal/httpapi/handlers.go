// Package httpapi exposes the node's local read-only API: recent readings,
// the cached aggregate and the recent-anomaly list per device. It serves
// operators on the farm LAN; the cloud sees only escalated alerts.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/soilsense/edge/internal/store"
)

const defaultReadingsWindow = time.Hour

type API struct {
	store store.Store
}

func New(st store.Store) *API {
	return &API{store: st}
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/devices/", a.deviceHandler)
}

func (a *API) deviceHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/devices/")
	parts := strings.Split(path, "/")

	if len(parts) < 1 || parts[0] == "" {
		http.Error(w, "device id required", http.StatusBadRequest)
		return
	}
	deviceID := parts[0]

	if len(parts) != 2 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch parts[1] {
	case "readings":
		a.readings(w, r, deviceID)
	case "summary":
		a.summary(w, r, deviceID)
	case "anomalies":
		a.anomalies(w, r, deviceID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (a *API) readings(w http.ResponseWriter, r *http.Request, deviceID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	window := defaultReadingsWindow
	if windowStr := r.URL.Query().Get("window"); windowStr != "" {
		parsed, err := time.ParseDuration(windowStr)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid window", http.StatusBadRequest)
			return
		}
		window = parsed
	}

	readings, err := a.store.QueryWindow(r.Context(), deviceID, window)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query readings: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"device_id":      deviceID,
		"window_seconds": int(window.Seconds()),
		"count":          len(readings),
		"readings":       readings,
	})
}

func (a *API) summary(w http.ResponseWriter, r *http.Request, deviceID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summary, ok, err := a.store.LatestSummary(r.Context(), deviceID)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to get summary: %v", err), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "no summary available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}

func (a *API) anomalies(w http.ResponseWriter, r *http.Request, deviceID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := store.AnomalyListCap
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	anomalies, err := a.store.RecentAnomalies(r.Context(), deviceID, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list anomalies: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"device_id": deviceID,
		"anomalies": anomalies,
	})
}
