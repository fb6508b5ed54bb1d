package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTT publishes events as JSON messages, one topic per event type under the
// configured base topic.
type MQTT struct {
	broker   string
	topic    string
	clientID string
}

// NewMQTT creates an MQTT notifier publishing under baseTopic.
func NewMQTT(broker, baseTopic string) *MQTT {
	return &MQTT{
		broker:   broker,
		topic:    baseTopic,
		clientID: "dockhand",
	}
}

// Name returns the provider name for logging.
func (m *MQTT) Name() string { return "mqtt" }

// Send publishes the event to {base}/{type} over a fresh connection.
func (m *MQTT) Send(ctx context.Context, event Event) error {
	opts := mqtt.NewClientOptions().
		SetClientID(m.clientID).
		AddBroker(m.broker).
		SetConnectTimeout(10 * time.Second).
		SetWriteTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt connect timeout")
	}
	if tok.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", tok.Error())
	}
	defer client.Disconnect(250)

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal mqtt payload: %w", err)
	}

	topic := m.topic + "/" + string(event.Type)
	pub := client.Publish(topic, 0, false, body)
	if !pub.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt publish timeout")
	}
	if pub.Error() != nil {
		return fmt.Errorf("mqtt publish: %w", pub.Error())
	}
	return nil
}
