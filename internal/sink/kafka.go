package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/speedwagon-io/sensorsim/internal/config"
	"github.com/speedwagon-io/sensorsim/internal/model"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes one message per step, keyed by run id so that a run
// stays ordered within a single partition.
type KafkaSink struct {
	log     *slog.Logger
	w       messageWriter
	brokers []string
	topic   string
}

func NewKafkaSink(log *slog.Logger, cfg *config.KafkaSinkConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink: brokers and topic are required")
	}

	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	return newKafkaSink(log, w, cfg.Brokers, cfg.Topic), nil
}

func newKafkaSink(log *slog.Logger, w messageWriter, brokers []string, topic string) *KafkaSink {
	return &KafkaSink{log: log, w: w, brokers: brokers, topic: topic}
}

func (s *KafkaSink) Name() string {
	return "kafka"
}

func (s *KafkaSink) Write(ctx context.Context, batch *model.Batch) error {
	value, err := batch.Encode(model.EncodingJSON)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(batch.RunID),
		Value: value,
		Time:  time.UnixMilli(batch.TimestampMs),
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write to %s failed: %w", s.topic, err)
	}

	s.log.Debug("batch published", slog.String("topic", s.topic), slog.Int("step", batch.Step))
	return nil
}

func (s *KafkaSink) Commit(ctx context.Context) error {
	return s.w.Close()
}

func (s *KafkaSink) Abort() error {
	return s.w.Close()
}

func (s *KafkaSink) Health(ctx context.Context) error {
	var lastErr error
	for _, b := range s.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}
