// Package detector scores a single parameter value against its recent
// baseline and static critical bounds. All functions are pure: the same
// inputs always produce the same verdict.
package detector

import (
	"fmt"
	"math"
	"sort"

	"github.com/soilsense/edge/pkg/soil"
)

type Config struct {
	ZScoreThreshold     float64
	IQRMultiplier       float64
	ChangeRateThreshold float64
	// HighScoreFactor is the single-method amplification required to lift a
	// lone z-score or IQR trigger from medium to high.
	HighScoreFactor float64
}

// Evaluate runs all four detection methods and derives a severity from the
// triggered set. Methods that lack their inputs (short baseline, no previous
// value) report as non-triggering rather than erroring.
func Evaluate(parameter string, current float64, baseline []float64, previous *float64, bounds soil.ParameterBounds, cfg Config) soil.Verdict {
	methods := []soil.MethodResult{
		criticalThreshold(current, bounds),
		zScore(current, baseline, cfg.ZScoreThreshold),
		iqrOutlier(current, baseline, cfg.IQRMultiplier),
		changeRate(current, previous, cfg.ChangeRateThreshold),
	}

	triggering := make([]string, 0, len(methods))
	for _, m := range methods {
		if m.Triggered {
			triggering = append(triggering, m.Method)
		}
	}

	return soil.Verdict{
		Parameter:  parameter,
		Value:      current,
		Severity:   deriveSeverity(methods, cfg),
		Methods:    methods,
		Triggering: triggering,
	}
}

func criticalThreshold(current float64, bounds soil.ParameterBounds) soil.MethodResult {
	res := soil.MethodResult{Method: soil.MethodCriticalThreshold}

	switch {
	case current < bounds.CriticalLow:
		res.Triggered = true
		res.Score = bounds.CriticalLow - current
		res.Detail = fmt.Sprintf("%.2f below critical low %.2f", current, bounds.CriticalLow)
	case current > bounds.CriticalHigh:
		res.Triggered = true
		res.Score = current - bounds.CriticalHigh
		res.Detail = fmt.Sprintf("%.2f above critical high %.2f", current, bounds.CriticalHigh)
	}

	return res
}

func zScore(current float64, baseline []float64, threshold float64) soil.MethodResult {
	res := soil.MethodResult{Method: soil.MethodZScore}
	if len(baseline) < 2 {
		res.Detail = "insufficient baseline"
		return res
	}

	mean, std := meanStddev(baseline)
	if std == 0 {
		// A flat baseline gives no scale to score against.
		res.Detail = "zero-variance baseline"
		return res
	}

	res.Score = math.Abs(current-mean) / std
	res.Triggered = res.Score > threshold
	res.Detail = fmt.Sprintf("mean %.2f stddev %.2f", mean, std)
	return res
}

func iqrOutlier(current float64, baseline []float64, multiplier float64) soil.MethodResult {
	res := soil.MethodResult{Method: soil.MethodIQR}
	if len(baseline) < 4 {
		res.Detail = "insufficient baseline"
		return res
	}

	q1 := quantile(baseline, 0.25)
	q3 := quantile(baseline, 0.75)
	iqr := q3 - q1
	lower := q1 - multiplier*iqr
	upper := q3 + multiplier*iqr

	var exceed float64
	switch {
	case current < lower:
		res.Triggered = true
		exceed = lower - current
	case current > upper:
		res.Triggered = true
		exceed = current - upper
	}

	if res.Triggered && iqr > 0 {
		res.Score = exceed / iqr
	} else if res.Triggered {
		res.Score = exceed
	}
	res.Detail = fmt.Sprintf("fences [%.2f, %.2f]", lower, upper)
	return res
}

func changeRate(current float64, previous *float64, threshold float64) soil.MethodResult {
	res := soil.MethodResult{Method: soil.MethodChangeRate}
	if previous == nil {
		res.Detail = "no previous value"
		return res
	}
	if *previous == 0 {
		res.Detail = "previous value is zero"
		return res
	}

	res.Score = math.Abs(current-*previous) / math.Abs(*previous)
	res.Triggered = res.Score > threshold
	res.Detail = fmt.Sprintf("previous %.2f", *previous)
	return res
}

// deriveSeverity maps the triggered method set to a severity. Corroboration
// across statistical methods, or any critical-bound breach, is required for
// the top grades; a lone statistical trigger needs an amplified score to
// reach high.
func deriveSeverity(methods []soil.MethodResult, cfg Config) soil.Severity {
	var critical bool
	statTriggers := 0
	for _, m := range methods {
		if !m.Triggered {
			continue
		}
		if m.Method == soil.MethodCriticalThreshold {
			critical = true
		} else {
			statTriggers++
		}
	}

	switch {
	case critical, statTriggers >= 2:
		return soil.SeverityCritical
	case statTriggers == 1:
		if amplified(methods, cfg) {
			return soil.SeverityHigh
		}
		return soil.SeverityMedium
	default:
		return soil.SeverityNormal
	}
}

func amplified(methods []soil.MethodResult, cfg Config) bool {
	for _, m := range methods {
		if !m.Triggered {
			continue
		}
		switch m.Method {
		case soil.MethodZScore:
			return m.Score >= cfg.HighScoreFactor*cfg.ZScoreThreshold
		case soil.MethodIQR:
			return m.Score >= cfg.HighScoreFactor*cfg.IQRMultiplier
		}
	}
	return false
}

func meanStddev(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		delta := v - mean
		variance += delta * delta
	}

	return mean, math.Sqrt(variance / float64(len(values)-1))
}

// quantile computes the p-quantile with linear interpolation between the
// two nearest ranks.
func quantile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
