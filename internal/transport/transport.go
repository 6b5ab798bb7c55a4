// Package transport connects the pipeline to the message layer. The
// pipeline only needs two primitives: a source of raw inbound payloads and
// a single-attempt alert publisher; delivery guarantees (QoS, redelivery)
// belong to the broker, not here.
package transport

import (
	"context"

	"github.com/soilsense/edge/pkg/soil"
)

// Handler consumes one raw inbound payload. Delivery is at-least-once and
// unordered; handlers must tolerate duplicates.
type Handler func(ctx context.Context, payload []byte)

// Source delivers inbound readings from the broker.
type Source interface {
	// Subscribe starts delivering payloads to h until ctx is cancelled or
	// Close is called.
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}

// AlertPublisher sends one escalated alert toward the cloud layer. Exactly
// one attempt per call; no internal queueing or retry.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, event soil.AlertEvent) error
}

// Transport is a connected broker session usable for both directions.
type Transport interface {
	Source
	AlertPublisher
	Connected() bool
}

type Config struct {
	Kind       string
	URL        string
	ClientID   string
	InputTopic string
	AlertTopic string
}
