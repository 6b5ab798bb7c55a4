// Package escalate decides which anomaly verdicts are forwarded to the
// cloud layer.
package escalate

import (
	"fmt"

	"github.com/soilsense/edge/pkg/soil"
)

// Sensitivity is the operator-tuned knob for alert volume: it sets the
// minimum severity that leaves the edge, without touching detection
// thresholds.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"    // forward only critical
	SensitivityMedium Sensitivity = "medium" // forward high and critical
	SensitivityHigh   Sensitivity = "high"   // forward medium and above
)

func ParseSensitivity(s string) (Sensitivity, error) {
	switch Sensitivity(s) {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return Sensitivity(s), nil
	default:
		return "", fmt.Errorf("unknown sensitivity %q", s)
	}
}

// minRank is the lowest severity rank each tier forwards.
var minRank = map[Sensitivity]int{
	SensitivityLow:    soil.SeverityCritical.Rank(),
	SensitivityMedium: soil.SeverityHigh.Rank(),
	SensitivityHigh:   soil.SeverityMedium.Rank(),
}

// ShouldForward reports whether a verdict of the given severity escalates
// to the cloud. Normal never forwards.
func ShouldForward(severity soil.Severity, sensitivity Sensitivity) bool {
	min, ok := minRank[sensitivity]
	if !ok {
		return false
	}
	return severity.Rank() >= min
}
