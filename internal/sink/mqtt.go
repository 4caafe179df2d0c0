package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/speedwagon-io/sensorsim/internal/config"
	"github.com/speedwagon-io/sensorsim/internal/model"
)

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTSink publishes every batch to <topic_prefix>/<run_id>.
type MQTTSink struct {
	log     *slog.Logger
	client  mqttClient
	prefix  string
	qos     byte
	timeout time.Duration
}

func NewMQTTSink(log *slog.Logger, cfg *config.MQTTSinkConfig) (*MQTTSink, error) {
	if cfg.QoS < 0 || cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt sink: qos must be 0, 1 or 2, got %d", cfg.QoS)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt sink: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt sink: failed to connect to %s: %w", cfg.Broker, err)
	}

	return newMQTTSink(log, client, cfg.TopicPrefix, byte(cfg.QoS), cfg.Timeout), nil
}

func newMQTTSink(log *slog.Logger, client mqttClient, prefix string, qos byte, timeout time.Duration) *MQTTSink {
	return &MQTTSink{log: log, client: client, prefix: prefix, qos: qos, timeout: timeout}
}

func (s *MQTTSink) Name() string {
	return "mqtt"
}

func (s *MQTTSink) topic(runID string) string {
	return s.prefix + "/" + runID
}

func (s *MQTTSink) Write(ctx context.Context, batch *model.Batch) error {
	payload, err := batch.Encode(model.EncodingJSON)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	topic := s.topic(batch.RunID)
	token := s.client.Publish(topic, s.qos, false, payload)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	case <-time.After(s.timeout):
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s failed: %w", topic, err)
	}
	return nil
}

func (s *MQTTSink) Commit(ctx context.Context) error {
	s.client.Disconnect(250)
	return nil
}

func (s *MQTTSink) Abort() error {
	s.client.Disconnect(0)
	return nil
}

func (s *MQTTSink) Health(ctx context.Context) error {
	if !s.client.IsConnected() {
		return fmt.Errorf("mqtt client disconnected")
	}
	return nil
}
