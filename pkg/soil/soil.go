package soil

// Parameters is the closed set of soil parameters the node analyzes.
// Readings may carry additional numeric fields; those are stored but never
// scored against bounds.
var Parameters = []string{"N", "P", "K", "temperature", "humidity", "ph", "rainfall"}

// Tracked reports whether name is one of the analyzed soil parameters.
func Tracked(name string) bool {
	for _, p := range Parameters {
		if p == name {
			return true
		}
	}
	return false
}

// Reading is one timestamped measurement set from a single device.
// Immutable once stored.
type Reading struct {
	DeviceID    string             `json:"device_id"`
	TimestampMs int64              `json:"timestamp_ms"`
	Values      map[string]float64 `json:"values"`
}

func (r *Reading) Valid() error {
	if r.DeviceID == "" {
		return ErrMissingDeviceID
	}
	if len(r.Values) == 0 {
		return ErrNoValues
	}
	if r.TimestampMs <= 0 {
		return ErrInvalidTimestamp
	}
	return nil
}

var (
	ErrMissingDeviceID  = &validationError{"missing device_id"}
	ErrNoValues         = &validationError{"no parameter values"}
	ErrInvalidTimestamp = &validationError{"invalid timestamp"}
)

type validationError struct {
	msg string
}

func (v *validationError) Error() string {
	return v.msg
}

// ParameterBounds holds the static operating and critical range for one
// parameter. CriticalLow < CriticalHigh is enforced at configuration load.
type ParameterBounds struct {
	Min          float64 `yaml:"min" json:"min"`
	Max          float64 `yaml:"max" json:"max"`
	CriticalLow  float64 `yaml:"critical_low" json:"critical_low"`
	CriticalHigh float64 `yaml:"critical_high" json:"critical_high"`
}

// Severity grades anomaly strength.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities: normal < medium < high < critical.
func (s Severity) Rank() int {
	switch s {
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// Detection method names.
const (
	MethodCriticalThreshold = "critical-threshold"
	MethodZScore            = "z-score"
	MethodIQR               = "iqr-outlier"
	MethodChangeRate        = "change-rate"
)

// MethodResult is the outcome of one detection method for one value.
type MethodResult struct {
	Method    string  `json:"method"`
	Triggered bool    `json:"triggered"`
	Score     float64 `json:"score"`
	Detail    string  `json:"detail,omitempty"`
}

// Verdict is the combined anomaly evaluation for one parameter value.
// Severity is derived from the method results and is never stored without
// them; evaluating the same inputs again yields an identical verdict.
type Verdict struct {
	Parameter  string         `json:"parameter"`
	Value      float64        `json:"value"`
	Severity   Severity       `json:"severity"`
	Methods    []MethodResult `json:"methods"`
	Triggering []string       `json:"triggering"`
}

// AlertEvent is the outbound wire format for an escalated anomaly.
// Timestamp is seconds since epoch, fractional.
type AlertEvent struct {
	EdgeNode  string   `json:"edge_node"`
	DeviceID  string   `json:"device_id"`
	Timestamp float64  `json:"timestamp"`
	Parameter string   `json:"parameter"`
	Value     float64  `json:"value"`
	Severity  Severity `json:"severity"`
	Details   Verdict  `json:"details"`
}

// ParameterStats holds windowed descriptive statistics for one parameter.
// Stddev is nil when fewer than two samples carried the parameter.
type ParameterStats struct {
	Mean   float64  `json:"mean"`
	Min    float64  `json:"min"`
	Max    float64  `json:"max"`
	Stddev *float64 `json:"stddev,omitempty"`
}

// Summary is an aggregate over one device's reading window. Recomputation
// produces a fresh instance; summaries are cached with a short expiry and
// consumed locally, never forwarded.
type Summary struct {
	DeviceID      string                    `json:"device_id"`
	WindowSeconds int                       `json:"window_seconds"`
	TimestampMs   int64                     `json:"timestamp_ms"`
	SampleCount   int                       `json:"sample_count"`
	Parameters    map[string]ParameterStats `json:"parameters"`
}
