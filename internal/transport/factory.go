package transport

import (
	"fmt"
	"time"
)

const disconnectTimeout = 5 * time.Second

// New builds the transport selected by cfg.Kind.
func New(cfg Config) (Transport, error) {
	switch cfg.Kind {
	case "mqtt":
		return NewMQTT(cfg)
	case "nats":
		return NewNATS(cfg)
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}
