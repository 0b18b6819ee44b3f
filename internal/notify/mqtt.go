package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/conf"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
)

// DefaultTopic is used when mqtt.topic is empty
const DefaultTopic = "cvat-tools/runs"

const connectTimeout = 30 * time.Second

// MQTT publishes summaries as JSON to <topic>/<command>. The connection is
// opened on first use.
type MQTT struct {
	settings conf.MQTTSettings
	topic    string

	mu     sync.Mutex
	client mqtt.Client
	log    logger.Logger
}

// NewMQTT validates the broker settings
func NewMQTT(settings conf.MQTTSettings) (*MQTT, error) {
	if settings.Broker == "" {
		return nil, errors.Newf("mqtt.broker is required when mqtt is enabled").
			Category(errors.CategoryConfiguration).
			Component("notify").
			Build()
	}
	topic := strings.TrimRight(settings.Topic, "/")
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTT{settings: settings, topic: topic, log: GetLogger().With(logger.String("broker", settings.Broker))}, nil
}

func (m *MQTT) Name() string { return "mqtt" }

// Topic returns the topic summaries of command are published to
func (m *MQTT) Topic(command string) string {
	return m.topic + "/" + command
}

func (m *MQTT) connect(ctx context.Context) (mqtt.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil && m.client.IsConnected() {
		return m.client, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.settings.Broker)
	opts.SetClientID("cvat-tools-" + uuid.NewString()[:8])
	opts.SetUsername(m.settings.Username)
	opts.SetPassword(m.settings.Password)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(connectTimeout)

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("connection error: %w", err)
	}
	m.client = client
	m.log.Debug("connected to broker")
	return client, nil
}

// Send publishes sum with QoS 1
func (m *MQTT) Send(ctx context.Context, sum *Summary) error {
	payload, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	client, err := m.connect(ctx)
	if err == nil {
		err = wait(ctx, client.Publish(m.Topic(sum.Command), 1, false, payload))
	}
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryNetwork).
			Component("notify").
			Context("topic", m.Topic(sum.Command)).
			Build()
	}
	return nil
}

// Close disconnects from the broker
func (m *MQTT) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	m.client = nil
	return nil
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
