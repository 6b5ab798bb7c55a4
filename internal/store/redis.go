package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soilsense/edge/pkg/soil"
)

// Redis key layout, one time-ordered index per device alongside expiring
// per-reading records:
//
//	reading:{device}:{ts}       JSON reading, expires with retention
//	readings:timeseries:{device} sorted set, score = timestamp ms
//	anomaly:{device}:{ts}        JSON anomaly event, expires with retention
//	anomalies:{device}           list of recent events, capped
//	aggregated:{device}          latest cached summary, short TTL
//	device:status:{id}           expiring status string
//	edge:metrics:{node}          expiring heartbeat record
type RedisStore struct {
	client *redis.Client
}

type RedisConfig struct {
	Addr        string
	DB          int
	DialTimeout time.Duration
}

func NewRedis(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func readingKey(deviceID string, tsMs int64) string {
	return fmt.Sprintf("reading:%s:%d", deviceID, tsMs)
}

func seriesKey(deviceID string) string {
	return "readings:timeseries:" + deviceID
}

func anomalyKey(deviceID string, tsMs int64) string {
	return fmt.Sprintf("anomaly:%s:%d", deviceID, tsMs)
}

func anomalyListKey(deviceID string) string {
	return "anomalies:" + deviceID
}

func summaryKey(deviceID string) string {
	return "aggregated:" + deviceID
}

func statusKey(deviceID string) string {
	return "device:status:" + deviceID
}

func nodeMetricsKey(nodeID string) string {
	return "edge:metrics:" + nodeID
}

func (s *RedisStore) AppendReading(ctx context.Context, r soil.Reading, retention time.Duration) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	key := readingKey(r.DeviceID, r.TimestampMs)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, retention)
	pipe.ZAdd(ctx, seriesKey(r.DeviceID), redis.Z{Score: float64(r.TimestampMs), Member: key})
	pipe.Expire(ctx, seriesKey(r.DeviceID), retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append reading: %w", err)
	}

	return nil
}

func (s *RedisStore) QueryWindow(ctx context.Context, deviceID string, window time.Duration) ([]soil.Reading, error) {
	nowMs := time.Now().UnixMilli()
	startMs := nowMs - window.Milliseconds()

	keys, err := s.client.ZRangeByScore(ctx, seriesKey(deviceID), &redis.ZRangeBy{
		Min: strconv.FormatInt(startMs, 10),
		Max: strconv.FormatInt(nowMs, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query series index: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	raw, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch readings: %w", err)
	}

	readings := make([]soil.Reading, 0, len(raw))
	for _, item := range raw {
		// Index members may outlive their expired reading records.
		str, ok := item.(string)
		if !ok {
			continue
		}
		var r soil.Reading
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			continue
		}
		readings = append(readings, r)
	}

	return readings, nil
}

func (s *RedisStore) StoreAnomaly(ctx context.Context, rec AnomalyRecord, retention time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal anomaly: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, anomalyKey(rec.DeviceID, rec.TimestampMs), data, retention)
	pipe.LPush(ctx, anomalyListKey(rec.DeviceID), data)
	pipe.LTrim(ctx, anomalyListKey(rec.DeviceID), 0, AnomalyListCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store anomaly: %w", err)
	}

	return nil
}

func (s *RedisStore) RecentAnomalies(ctx context.Context, deviceID string, limit int) ([]AnomalyRecord, error) {
	if limit <= 0 || limit > AnomalyListCap {
		limit = AnomalyListCap
	}

	items, err := s.client.LRange(ctx, anomalyListKey(deviceID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}

	records := make([]AnomalyRecord, 0, len(items))
	for _, item := range items {
		var rec AnomalyRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

func (s *RedisStore) CacheSummary(ctx context.Context, summary soil.Summary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	if err := s.client.Set(ctx, summaryKey(summary.DeviceID), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache summary: %w", err)
	}

	return nil
}

func (s *RedisStore) LatestSummary(ctx context.Context, deviceID string) (soil.Summary, bool, error) {
	data, err := s.client.Get(ctx, summaryKey(deviceID)).Result()
	if err == redis.Nil {
		return soil.Summary{}, false, nil
	}
	if err != nil {
		return soil.Summary{}, false, fmt.Errorf("get summary: %w", err)
	}

	var summary soil.Summary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return soil.Summary{}, false, fmt.Errorf("decode summary: %w", err)
	}

	return summary, true, nil
}

func (s *RedisStore) SetNodeStatus(ctx context.Context, nodeID, status string, ttl time.Duration) error {
	return s.client.Set(ctx, statusKey(nodeID), status, ttl).Err()
}

func (s *RedisStore) UpdateNodeMetrics(ctx context.Context, m NodeMetrics, ttl time.Duration) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal node metrics: %w", err)
	}
	return s.client.Set(ctx, nodeMetricsKey(m.NodeID), data, ttl).Err()
}

func (s *RedisStore) Cleanup(ctx context.Context, deviceIDs []string, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()

	var removed int64
	for _, device := range deviceIDs {
		n, err := s.client.ZRemRangeByScore(ctx, seriesKey(device), "-inf", strconv.FormatInt(cutoff, 10)).Result()
		if err != nil {
			return removed, fmt.Errorf("cleanup %s: %w", device, err)
		}
		removed += n
	}

	return removed, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
