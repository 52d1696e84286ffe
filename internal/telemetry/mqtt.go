package telemetry

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cjeanneret/holobot/internal/config"
	"github.com/cjeanneret/holobot/internal/debug"
)

// Publisher sends one diagnostic message.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
	Close()
}

// MQTTPublisher publishes diagnostics to an MQTT broker.
type MQTTPublisher struct {
	client  mqtt.Client
	timeout time.Duration
}

// NewMQTTPublisher connects to cfg.MQTTBroker.
func NewMQTTPublisher(cfg config.TelemetryConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.MQTTBroker, token.Error())
	}
	debug.Info("Telemetry connected to MQTT broker at %s", cfg.MQTTBroker)
	return &MQTTPublisher{client: client, timeout: 2 * time.Second}, nil
}

func (p *MQTTPublisher) Publish(topic string, payload []byte, retained bool) error {
	token := p.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("mqtt publish %s: timed out after %v", topic, p.timeout)
	}
	return token.Error()
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
