package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/soilsense/edge/pkg/soil"
)

// NATSTransport delivers readings over a NATS subject and publishes alerts
// to another. Inbound subscriptions join a queue group so multiple nodes
// behind the same config split the stream.
type NATSTransport struct {
	nc         *nats.Conn
	inputSubj  string
	alertSubj  string
	queueGroup string
	sub        *nats.Subscription
}

func NewNATS(cfg Config) (*NATSTransport, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name(cfg.ClientID))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &NATSTransport{
		nc:         nc,
		inputSubj:  cfg.InputTopic,
		alertSubj:  cfg.AlertTopic,
		queueGroup: "edge-pipeline",
	}, nil
}

func (t *NATSTransport) Subscribe(ctx context.Context, h Handler) error {
	sub, err := t.nc.QueueSubscribe(t.inputSubj, t.queueGroup, func(msg *nats.Msg) {
		h(ctx, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", t.inputSubj, err)
	}
	t.sub = sub

	if err := t.nc.Flush(); err != nil {
		return err
	}

	return nil
}

func (t *NATSTransport) PublishAlert(ctx context.Context, event soil.AlertEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	if err := t.nc.Publish(t.alertSubj, payload); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}

	return nil
}

func (t *NATSTransport) Connected() bool {
	return t.nc != nil && t.nc.IsConnected()
}

func (t *NATSTransport) Close() error {
	if t.sub != nil {
		_ = t.sub.Unsubscribe()
	}
	if t.nc != nil && !t.nc.IsClosed() {
		if err := t.nc.Drain(); err != nil {
			t.nc.Close()
			return err
		}
	}
	return nil
}
