package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soilsense/edge/pkg/soil"
)

// Duration decodes yaml values like "300ms", "5s" or "24h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type NodeConfig struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Region         string   `yaml:"region"`
	ManagedDevices []string `yaml:"managed_devices"`
	HTTPAddr       string   `yaml:"http_addr"`
}

type TransportConfig struct {
	Kind           string   `yaml:"kind"` // mqtt or nats
	URL            string   `yaml:"url"`
	ClientID       string   `yaml:"client_id"`
	InputTopic     string   `yaml:"input_topic"`
	AlertTopic     string   `yaml:"alert_topic"`
	PublishTimeout Duration `yaml:"publish_timeout"`
}

type StorageConfig struct {
	Kind        string   `yaml:"kind"` // redis or memory
	RedisAddr   string   `yaml:"redis_addr"`
	RedisDB     int      `yaml:"redis_db"`
	DialTimeout Duration `yaml:"dial_timeout"`
	Retention   Duration `yaml:"retention"`
	OpTimeout   Duration `yaml:"op_timeout"`
}

type DetectionConfig struct {
	ZScoreThreshold     float64  `yaml:"zscore_threshold"`
	IQRMultiplier       float64  `yaml:"iqr_multiplier"`
	ChangeRateThreshold float64  `yaml:"change_rate_threshold"`
	BaselineSize        int      `yaml:"baseline_size"`
	BaselineWindow      Duration `yaml:"baseline_window"`
	HighScoreFactor     float64  `yaml:"high_score_factor"`
}

type AggregationConfig struct {
	Window      Duration `yaml:"window"`
	MinReadings int      `yaml:"min_readings"`
	Methods     []string `yaml:"methods"`
	CacheTTL    Duration `yaml:"cache_ttl"`
	Sweep       string   `yaml:"sweep"` // cron spec for the periodic sweep
}

type Config struct {
	ConfigVersion int                             `yaml:"config_version"`
	Node          NodeConfig                      `yaml:"node"`
	Transport     TransportConfig                 `yaml:"transport"`
	Storage       StorageConfig                   `yaml:"storage"`
	Detection     DetectionConfig                 `yaml:"detection"`
	Aggregation   AggregationConfig               `yaml:"aggregation"`
	Sensitivity   string                          `yaml:"sensitivity"`
	Bounds        map[string]soil.ParameterBounds `yaml:"bounds"`
}

// DefaultBounds is the soil threshold table used when the config file does
// not override a parameter.
var DefaultBounds = map[string]soil.ParameterBounds{
	"N":           {Min: 0, Max: 200, CriticalLow: 10, CriticalHigh: 150},
	"P":           {Min: 0, Max: 200, CriticalLow: 5, CriticalHigh: 100},
	"K":           {Min: 0, Max: 250, CriticalLow: 50, CriticalHigh: 200},
	"temperature": {Min: -10, Max: 50, CriticalLow: 5, CriticalHigh: 40},
	"humidity":    {Min: 0, Max: 100, CriticalLow: 20, CriticalHigh: 90},
	"ph":          {Min: 0, Max: 14, CriticalLow: 6.0, CriticalHigh: 7.5},
	"rainfall":    {Min: 0, Max: 500, CriticalLow: 0, CriticalHigh: 200},
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Node.HTTPAddr == "" {
		c.Node.HTTPAddr = ":8080"
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = "mqtt"
	}
	if c.Transport.InputTopic == "" {
		c.Transport.InputTopic = "farm/data"
	}
	if c.Transport.AlertTopic == "" {
		c.Transport.AlertTopic = "farm/cloud/alerts"
	}
	if c.Transport.ClientID == "" {
		c.Transport.ClientID = c.Node.ID
	}
	if c.Transport.PublishTimeout == 0 {
		c.Transport.PublishTimeout = Duration(5 * time.Second)
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = "redis"
	}
	if c.Storage.RedisAddr == "" {
		c.Storage.RedisAddr = "localhost:6379"
	}
	if c.Storage.DialTimeout == 0 {
		c.Storage.DialTimeout = Duration(5 * time.Second)
	}
	if c.Storage.Retention == 0 {
		c.Storage.Retention = Duration(24 * time.Hour)
	}
	if c.Storage.OpTimeout == 0 {
		c.Storage.OpTimeout = Duration(3 * time.Second)
	}
	if c.Detection.ZScoreThreshold == 0 {
		c.Detection.ZScoreThreshold = 2.5
	}
	if c.Detection.IQRMultiplier == 0 {
		c.Detection.IQRMultiplier = 1.5
	}
	if c.Detection.ChangeRateThreshold == 0 {
		c.Detection.ChangeRateThreshold = 0.3
	}
	if c.Detection.BaselineSize == 0 {
		c.Detection.BaselineSize = 20
	}
	if c.Detection.BaselineWindow == 0 {
		c.Detection.BaselineWindow = Duration(time.Hour)
	}
	if c.Detection.HighScoreFactor == 0 {
		c.Detection.HighScoreFactor = 2.0
	}
	if c.Aggregation.Window == 0 {
		c.Aggregation.Window = Duration(5 * time.Minute)
	}
	if c.Aggregation.MinReadings == 0 {
		c.Aggregation.MinReadings = 3
	}
	if len(c.Aggregation.Methods) == 0 {
		c.Aggregation.Methods = []string{"mean", "min", "max", "stddev"}
	}
	if c.Aggregation.CacheTTL == 0 {
		c.Aggregation.CacheTTL = Duration(time.Hour)
	}
	if c.Aggregation.Sweep == "" {
		c.Aggregation.Sweep = "@every 1m"
	}
	if c.Sensitivity == "" {
		c.Sensitivity = "medium"
	}
	if c.Bounds == nil {
		c.Bounds = map[string]soil.ParameterBounds{}
	}
	for param, b := range DefaultBounds {
		if _, ok := c.Bounds[param]; !ok {
			c.Bounds[param] = b
		}
	}
}

func (c *Config) validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("node.id is required")
	}
	if len(c.Node.ManagedDevices) == 0 {
		return fmt.Errorf("node.managed_devices must not be empty")
	}

	switch c.Transport.Kind {
	case "mqtt", "nats":
	default:
		return fmt.Errorf("transport.kind %q: must be mqtt or nats", c.Transport.Kind)
	}
	if c.Transport.URL == "" {
		return fmt.Errorf("transport.url is required")
	}

	switch c.Storage.Kind {
	case "redis", "memory":
	default:
		return fmt.Errorf("storage.kind %q: must be redis or memory", c.Storage.Kind)
	}

	switch c.Sensitivity {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("sensitivity %q: must be low, medium or high", c.Sensitivity)
	}

	for param, b := range c.Bounds {
		if b.CriticalLow >= b.CriticalHigh {
			return fmt.Errorf("bounds.%s: critical_low %.2f must be below critical_high %.2f", param, b.CriticalLow, b.CriticalHigh)
		}
	}

	for _, m := range c.Aggregation.Methods {
		switch m {
		case "mean", "min", "max", "stddev":
		default:
			return fmt.Errorf("aggregation.methods: unknown method %q", m)
		}
	}

	return nil
}
