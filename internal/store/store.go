// Package store persists the per-device reading history and derived
// artifacts. The windowed reading series is the sole source of truth for
// baseline queries; everything else (anomaly events, cached summaries, node
// state) is expiring bookkeeping.
package store

import (
	"context"
	"time"

	"github.com/soilsense/edge/pkg/soil"
)

// AnomalyListCap bounds the per-device recent-anomaly list.
const AnomalyListCap = 100

// AnomalyRecord is a persisted anomaly event for local analysis.
type AnomalyRecord struct {
	TimestampMs int64        `json:"timestamp_ms"`
	DeviceID    string       `json:"device_id"`
	Parameter   string       `json:"parameter"`
	Value       float64      `json:"value"`
	Method      string       `json:"method"`
	Verdict     soil.Verdict `json:"verdict"`
}

// NodeMetrics is the periodic heartbeat record for an edge node.
type NodeMetrics struct {
	TimestampMs        int64  `json:"timestamp_ms"`
	NodeID             string `json:"node_id"`
	Region             string `json:"region"`
	TransportConnected bool   `json:"transport_connected"`
	Status             string `json:"status"`
}

// Store is the backing-store contract the pipeline needs: append with
// expiry, bounded-recency range query, capped event list, expiring caches.
// Implementations must be safe for concurrent use and give per-device
// read-your-writes visibility: an append is visible to a query issued
// afterwards by the same caller.
type Store interface {
	// AppendReading stores a reading under its device. Entries older than
	// retention become unreachable; a query never returns an entry whose
	// age exceeds retention at query time.
	AppendReading(ctx context.Context, r soil.Reading, retention time.Duration) error

	// QueryWindow returns the device's readings with timestamps in
	// [now-window, now], ascending, ties in insertion order. Unknown
	// devices yield an empty result, not an error.
	QueryWindow(ctx context.Context, deviceID string, window time.Duration) ([]soil.Reading, error)

	// StoreAnomaly records an anomaly event with expiry and pushes it onto
	// the device's capped recent-anomaly list.
	StoreAnomaly(ctx context.Context, rec AnomalyRecord, retention time.Duration) error

	// RecentAnomalies returns up to limit events, newest first.
	RecentAnomalies(ctx context.Context, deviceID string, limit int) ([]AnomalyRecord, error)

	// CacheSummary stores the device's latest aggregate with a short expiry.
	CacheSummary(ctx context.Context, s soil.Summary, ttl time.Duration) error

	// LatestSummary returns the cached aggregate, or ok=false when none is
	// cached or it has expired.
	LatestSummary(ctx context.Context, deviceID string) (soil.Summary, bool, error)

	// SetNodeStatus and UpdateNodeMetrics hold expiring heartbeat state; a
	// node that stops refreshing them reads as offline.
	SetNodeStatus(ctx context.Context, nodeID, status string, ttl time.Duration) error
	UpdateNodeMetrics(ctx context.Context, m NodeMetrics, ttl time.Duration) error

	// Cleanup trims series index entries older than maxAge for the given
	// devices and returns the number removed.
	Cleanup(ctx context.Context, deviceIDs []string, maxAge time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
