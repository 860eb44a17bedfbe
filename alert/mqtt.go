package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTNotifier publishes alerts as JSON to a broker topic.
type MQTTNotifier struct {
	client  publisher
	topic   string
	qos     byte
	timeout time.Duration
	close   func()
}

type mqttPayload struct {
	Message
	SentAt time.Time `json:"sentAt"`
}

// NewMQTTNotifier connects to broker, e.g. "tcp://localhost:1883".
func NewMQTTNotifier(broker, topic, clientID string) (*MQTTNotifier, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	n := newMQTTNotifier(client, topic)
	n.close = func() {
		if client.IsConnected() {
			client.Disconnect(250)
		}
	}
	return n, nil
}

func newMQTTNotifier(client publisher, topic string) *MQTTNotifier {
	return &MQTTNotifier{
		client:  client,
		topic:   topic,
		qos:     1,
		timeout: 2 * time.Second,
	}
}

func (n *MQTTNotifier) Name() string { return "mqtt" }

func (n *MQTTNotifier) Send(_ context.Context, msg Message) error {
	payload, err := json.Marshal(mqttPayload{Message: msg, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	token := n.client.Publish(n.topic, n.qos, false, payload)
	if !token.WaitTimeout(n.timeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() error {
	if n.close != nil {
		n.close()
	}
	return nil
}
