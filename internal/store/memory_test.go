package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/soilsense/edge/pkg/soil"
)

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func TestAppendThenQuery(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	r := soil.Reading{DeviceID: "dev1", TimestampMs: nowMs(), Values: map[string]float64{"N": 50}}
	if err := s.AppendReading(ctx, r, time.Hour); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.QueryWindow(ctx, "dev1", time.Minute)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one reading, got %d", len(got))
	}
	if got[0].Values["N"] != 50 {
		t.Errorf("unexpected reading: %+v", got[0])
	}
}

func TestQueryOrdering(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	base := nowMs()

	// Append out of order; queries must come back ascending.
	for _, offset := range []int64{-3000, -1000, -2000} {
		r := soil.Reading{DeviceID: "dev1", TimestampMs: base + offset, Values: map[string]float64{"N": float64(offset)}}
		if err := s.AppendReading(ctx, r, time.Hour); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.QueryWindow(ctx, "dev1", time.Minute)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].TimestampMs < got[i-1].TimestampMs {
			t.Errorf("readings out of order at %d: %d < %d", i, got[i].TimestampMs, got[i-1].TimestampMs)
		}
	}
}

func TestQueryWindowBounds(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	base := nowMs()

	inWindow := soil.Reading{DeviceID: "dev1", TimestampMs: base - 30_000, Values: map[string]float64{"N": 1}}
	outOfWindow := soil.Reading{DeviceID: "dev1", TimestampMs: base - 120_000, Values: map[string]float64{"N": 2}}
	for _, r := range []soil.Reading{inWindow, outOfWindow} {
		if err := s.AppendReading(ctx, r, time.Hour); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.QueryWindow(ctx, "dev1", time.Minute)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Values["N"] != 1 {
		t.Errorf("expected only the in-window reading, got %+v", got)
	}
}

func TestExpiredReadingsUnreachable(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	r := soil.Reading{DeviceID: "dev1", TimestampMs: nowMs(), Values: map[string]float64{"N": 50}}
	if err := s.AppendReading(ctx, r, -time.Second); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.QueryWindow(ctx, "dev1", time.Minute)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected expired reading to be unreachable, got %d", len(got))
	}
}

func TestDeviceIsolation(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for d := 0; d < 4; d++ {
		wg.Add(1)
		go func(d int) {
			defer wg.Done()
			device := fmt.Sprintf("dev%d", d)
			for i := 0; i < 20; i++ {
				r := soil.Reading{DeviceID: device, TimestampMs: nowMs() - int64(i), Values: map[string]float64{"N": float64(d)}}
				_ = s.AppendReading(ctx, r, time.Hour)
			}
		}(d)
	}
	wg.Wait()

	for d := 0; d < 4; d++ {
		device := fmt.Sprintf("dev%d", d)
		got, err := s.QueryWindow(ctx, device, time.Minute)
		if err != nil {
			t.Fatalf("query %s: %v", device, err)
		}
		if len(got) != 20 {
			t.Errorf("%s: expected 20 readings, got %d", device, len(got))
		}
		for _, r := range got {
			if r.Values["N"] != float64(d) {
				t.Errorf("%s: found reading from another device: %+v", device, r)
			}
		}
	}
}

func TestUnknownDeviceEmpty(t *testing.T) {
	s := NewMemory()

	got, err := s.QueryWindow(context.Background(), "ghost", time.Minute)
	if err != nil {
		t.Fatalf("expected no error for unknown device, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

func TestAnomalyListCap(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	for i := 0; i < AnomalyListCap+20; i++ {
		rec := AnomalyRecord{DeviceID: "dev1", TimestampMs: int64(i), Parameter: "N", Value: float64(i)}
		if err := s.StoreAnomaly(ctx, rec, time.Hour); err != nil {
			t.Fatalf("store anomaly: %v", err)
		}
	}

	got, err := s.RecentAnomalies(ctx, "dev1", 0)
	if err != nil {
		t.Fatalf("recent anomalies: %v", err)
	}
	if len(got) != AnomalyListCap {
		t.Errorf("expected list capped at %d, got %d", AnomalyListCap, len(got))
	}
	// Newest first.
	if got[0].TimestampMs != int64(AnomalyListCap+19) {
		t.Errorf("expected newest record first, got ts %d", got[0].TimestampMs)
	}
}

func TestSummaryCacheExpiry(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	summary := soil.Summary{DeviceID: "dev1", SampleCount: 5}
	if err := s.CacheSummary(ctx, summary, time.Hour); err != nil {
		t.Fatalf("cache: %v", err)
	}

	got, ok, err := s.LatestSummary(ctx, "dev1")
	if err != nil || !ok {
		t.Fatalf("expected cached summary, ok=%v err=%v", ok, err)
	}
	if got.SampleCount != 5 {
		t.Errorf("unexpected summary: %+v", got)
	}

	// An expired cache entry reads as absent.
	if err := s.CacheSummary(ctx, summary, -time.Second); err != nil {
		t.Fatalf("cache: %v", err)
	}
	if _, ok, _ := s.LatestSummary(ctx, "dev1"); ok {
		t.Error("expected expired summary to be absent")
	}
}

func TestCleanup(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	base := nowMs()

	old := soil.Reading{DeviceID: "dev1", TimestampMs: base - 7_200_000, Values: map[string]float64{"N": 1}}
	fresh := soil.Reading{DeviceID: "dev1", TimestampMs: base, Values: map[string]float64{"N": 2}}
	for _, r := range []soil.Reading{old, fresh} {
		if err := s.AppendReading(ctx, r, 24*time.Hour); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	removed, err := s.Cleanup(ctx, []string{"dev1"}, time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed entry, got %d", removed)
	}

	got, _ := s.QueryWindow(ctx, "dev1", 3*time.Hour)
	if len(got) != 1 || got[0].Values["N"] != 2 {
		t.Errorf("expected only the fresh reading to remain, got %+v", got)
	}
}
