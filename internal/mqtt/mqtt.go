// Package mqtt mirrors heartbeats to an MQTT broker for live dashboards.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/gosight/gosight/engagement/internal/beacon"
	"github.com/gosight/gosight/engagement/internal/config"
)

// Publisher publishes heartbeats to an MQTT broker.
type Publisher struct {
	client paho.Client
	topic  string
}

// NewPublisher connects to cfg.Broker.
func NewPublisher(cfg config.MQTTConfig) (*Publisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &Publisher{
		client: client,
		topic:  cfg.Topic,
	}, nil
}

// Topic returns the per-project topic heartbeats are published on.
func Topic(base, projectID string) string {
	if projectID == "" {
		return base
	}
	return base + "/" + projectID
}

// FormatPayload creates the JSON payload for a heartbeat.
func FormatPayload(hb *beacon.Heartbeat) ([]byte, error) {
	return json.Marshal(hb)
}

// PublishHeartbeat sends hb at QoS 0 without waiting for the broker.
func (p *Publisher) PublishHeartbeat(_ context.Context, hb *beacon.Heartbeat) error {
	payload, err := FormatPayload(hb)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	token := p.client.Publish(Topic(p.topic, hb.ProjectID), 0, false, payload)
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
