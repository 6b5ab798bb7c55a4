// Package aggregate computes windowed descriptive statistics over a
// device's readings.
package aggregate

import (
	"math"
	"time"

	"github.com/soilsense/edge/pkg/soil"
)

type Config struct {
	MinReadings int
	Methods     []string
}

// Compute builds a summary over the given window readings. It returns false
// when fewer than MinReadings readings carry a tracked parameter; short
// windows are never reported as summaries. Statistics for a parameter run
// over the subsequence of readings that carry it.
func Compute(deviceID string, readings []soil.Reading, window time.Duration, cfg Config) (soil.Summary, bool) {
	sampleCount := 0
	for _, r := range readings {
		for _, p := range soil.Parameters {
			if _, ok := r.Values[p]; ok {
				sampleCount++
				break
			}
		}
	}

	if sampleCount < cfg.MinReadings {
		return soil.Summary{}, false
	}

	methods := map[string]bool{}
	for _, m := range cfg.Methods {
		methods[m] = true
	}

	summary := soil.Summary{
		DeviceID:      deviceID,
		WindowSeconds: int(window.Seconds()),
		TimestampMs:   time.Now().UnixMilli(),
		SampleCount:   sampleCount,
		Parameters:    map[string]soil.ParameterStats{},
	}

	for _, param := range soil.Parameters {
		var values []float64
		for _, r := range readings {
			if v, ok := r.Values[param]; ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}

		stats := soil.ParameterStats{}
		if methods["mean"] {
			stats.Mean = mean(values)
		}
		if methods["min"] {
			stats.Min = minOf(values)
		}
		if methods["max"] {
			stats.Max = maxOf(values)
		}
		if methods["stddev"] && len(values) > 1 {
			sd := stddev(values)
			stats.Stddev = &sd
		}
		summary.Parameters[param] = stats
	}

	return summary, true
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(values []float64) float64 {
	avg := mean(values)
	var variance float64
	for _, v := range values {
		delta := v - avg
		variance += delta * delta
	}
	return math.Sqrt(variance / float64(len(values)-1))
}
