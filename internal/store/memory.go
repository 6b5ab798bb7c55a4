package store

import (
	"context"
	"sync"
	"time"

	"github.com/soilsense/edge/pkg/soil"
)

// MemoryStore is an in-process Store used by tests and broker-less
// development runs. Expiry is lazy: aged entries are filtered at query time
// and removed by Cleanup.
type MemoryStore struct {
	mu        sync.RWMutex
	series    map[string][]memoryEntry
	anomalies map[string][]AnomalyRecord
	summaries map[string]expiringSummary
	statuses  map[string]string
	metrics   map[string]NodeMetrics
}

type memoryEntry struct {
	reading   soil.Reading
	expiresAt time.Time
}

type expiringSummary struct {
	summary   soil.Summary
	expiresAt time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		series:    map[string][]memoryEntry{},
		anomalies: map[string][]AnomalyRecord{},
		summaries: map[string]expiringSummary{},
		statuses:  map[string]string{},
		metrics:   map[string]NodeMetrics{},
	}
}

func (s *MemoryStore) AppendReading(ctx context.Context, r soil.Reading, retention time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.series[r.DeviceID]
	entry := memoryEntry{reading: r, expiresAt: time.Now().Add(retention)}

	// Keep ascending timestamp order; equal timestamps keep insertion order.
	i := len(entries)
	for i > 0 && entries[i-1].reading.TimestampMs > r.TimestampMs {
		i--
	}
	entries = append(entries, memoryEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = entry
	s.series[r.DeviceID] = entries

	return nil
}

func (s *MemoryStore) QueryWindow(ctx context.Context, deviceID string, window time.Duration) ([]soil.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	startMs := now.Add(-window).UnixMilli()
	nowMs := now.UnixMilli()

	var out []soil.Reading
	for _, e := range s.series[deviceID] {
		if e.reading.TimestampMs < startMs || e.reading.TimestampMs > nowMs {
			continue
		}
		if now.After(e.expiresAt) {
			continue
		}
		out = append(out, e.reading)
	}

	return out, nil
}

func (s *MemoryStore) StoreAnomaly(ctx context.Context, rec AnomalyRecord, retention time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append([]AnomalyRecord{rec}, s.anomalies[rec.DeviceID]...)
	if len(list) > AnomalyListCap {
		list = list[:AnomalyListCap]
	}
	s.anomalies[rec.DeviceID] = list

	return nil
}

func (s *MemoryStore) RecentAnomalies(ctx context.Context, deviceID string, limit int) ([]AnomalyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.anomalies[deviceID]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}

	out := make([]AnomalyRecord, limit)
	copy(out, list[:limit])
	return out, nil
}

func (s *MemoryStore) CacheSummary(ctx context.Context, summary soil.Summary, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries[summary.DeviceID] = expiringSummary{summary: summary, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) LatestSummary(ctx context.Context, deviceID string) (soil.Summary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cached, ok := s.summaries[deviceID]
	if !ok || time.Now().After(cached.expiresAt) {
		return soil.Summary{}, false, nil
	}
	return cached.summary, true, nil
}

func (s *MemoryStore) SetNodeStatus(ctx context.Context, nodeID, status string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statuses[nodeID] = status
	return nil
}

func (s *MemoryStore) UpdateNodeMetrics(ctx context.Context, m NodeMetrics, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics[m.NodeID] = m
	return nil
}

func (s *MemoryStore) Cleanup(ctx context.Context, deviceIDs []string, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoffMs := time.Now().Add(-maxAge).UnixMilli()

	var removed int64
	for _, device := range deviceIDs {
		entries := s.series[device]
		kept := entries[:0]
		for _, e := range entries {
			if e.reading.TimestampMs <= cutoffMs {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		s.series[device] = kept
	}

	return removed, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
