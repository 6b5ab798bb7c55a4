package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync/atomic"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/soilsense/edge/pkg/soil"
)

// MQTTTransport is a QoS 1 session against the farm broker: readings arrive
// on the input topic, escalated alerts go out on the cloud topic. autopaho
// maintains the session across broker reconnects; the persistent session
// keeps the subscription alive server-side.
type MQTTTransport struct {
	cfg       Config
	cm        *autopaho.ConnectionManager
	handler   Handler
	connected atomic.Bool
}

func NewMQTT(cfg Config) (*MQTTTransport, error) {
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("mqtt url: %w", err)
	}
	return &MQTTTransport{cfg: cfg}, nil
}

func (t *MQTTTransport) Subscribe(ctx context.Context, h Handler) error {
	t.handler = h

	serverURL, err := url.Parse(t.cfg.URL)
	if err != nil {
		return fmt.Errorf("mqtt url: %w", err)
	}

	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{serverURL},
		KeepAlive:                     60,
		CleanStartOnInitialConnection: false,
		SessionExpiryInterval:         300,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			t.connected.Store(true)
			if _, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{
					{Topic: t.cfg.InputTopic, QoS: 1},
				},
			}); err != nil {
				log.Printf("mqtt: subscribe %s: %v", t.cfg.InputTopic, err)
				return
			}
			log.Printf("mqtt: subscribed to %s", t.cfg.InputTopic)
		},
		OnConnectError: func(err error) {
			t.connected.Store(false)
			log.Printf("mqtt: connect error: %v", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: t.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					t.handler(ctx, pr.Packet.Payload)
					return true, nil
				},
			},
			OnClientError: func(err error) {
				t.connected.Store(false)
				log.Printf("mqtt: client error: %v", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				t.connected.Store(false)
				log.Printf("mqtt: server disconnect (reason %d)", d.ReasonCode)
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return fmt.Errorf("connect mqtt: %w", err)
	}
	t.cm = cm

	if err := cm.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("await mqtt connection: %w", err)
	}

	return nil
}

func (t *MQTTTransport) PublishAlert(ctx context.Context, event soil.AlertEvent) error {
	if t.cm == nil {
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	if _, err := t.cm.Publish(ctx, &paho.Publish{
		QoS:     1,
		Topic:   t.cfg.AlertTopic,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}

	return nil
}

func (t *MQTTTransport) Connected() bool {
	return t.connected.Load()
}

func (t *MQTTTransport) Close() error {
	if t.cm == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return t.cm.Disconnect(ctx)
}
