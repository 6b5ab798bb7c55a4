package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edgenode.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
node:
  id: edge-europe
  region: Europe
  managed_devices: [device_germany, device_england]
transport:
  kind: nats
  url: nats://localhost:4222
storage:
  kind: memory
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Detection.ZScoreThreshold != 2.5 {
		t.Errorf("expected default zscore threshold 2.5, got %f", cfg.Detection.ZScoreThreshold)
	}
	if cfg.Detection.BaselineSize != 20 {
		t.Errorf("expected default baseline size 20, got %d", cfg.Detection.BaselineSize)
	}
	if cfg.Aggregation.MinReadings != 3 {
		t.Errorf("expected default min readings 3, got %d", cfg.Aggregation.MinReadings)
	}
	if cfg.Storage.Retention.Std() != 24*time.Hour {
		t.Errorf("expected default retention 24h, got %v", cfg.Storage.Retention)
	}
	if cfg.Sensitivity != "medium" {
		t.Errorf("expected default sensitivity medium, got %s", cfg.Sensitivity)
	}

	n, ok := cfg.Bounds["N"]
	if !ok {
		t.Fatal("expected default bounds for N")
	}
	if n.CriticalLow != 10 || n.CriticalHigh != 150 {
		t.Errorf("unexpected N bounds: %+v", n)
	}
}

func TestLoadOverridesBounds(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
bounds:
  N:
    min: 0
    max: 300
    critical_low: 20
    critical_high: 250
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Bounds["N"].CriticalHigh != 250 {
		t.Errorf("expected overridden critical_high 250, got %f", cfg.Bounds["N"].CriticalHigh)
	}
	// Other parameters keep their defaults.
	if cfg.Bounds["ph"].CriticalLow != 6.0 {
		t.Errorf("expected default ph bounds, got %+v", cfg.Bounds["ph"])
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing node id", `
node:
  managed_devices: [d1]
transport: {kind: nats, url: nats://localhost:4222}
`},
		{"no managed devices", `
node:
  id: edge-europe
transport: {kind: nats, url: nats://localhost:4222}
`},
		{"unknown transport", `
node:
  id: edge-europe
  managed_devices: [d1]
transport: {kind: kafka, url: localhost:9092}
`},
		{"unknown sensitivity", minimalConfig + `
sensitivity: paranoid
`},
		{"inverted critical bounds", minimalConfig + `
bounds:
  N: {min: 0, max: 200, critical_low: 150, critical_high: 10}
`},
		{"unknown aggregation method", minimalConfig + `
aggregation:
  methods: [mean, median]
`},
	}

	for _, tc := range cases {
		if _, err := Load(writeConfig(t, tc.body)); err == nil {
			t.Errorf("%s: expected load to fail", tc.name)
		}
	}
}
