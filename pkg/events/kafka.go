package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaOption configures a Kafka publisher.
type KafkaOption func(*KafkaConfig)

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	RequiredAcks int
	MaxAttempts  int
	WriteTimeout time.Duration
}

func WithBrokers(brokers []string) KafkaOption {
	return func(c *KafkaConfig) { c.Brokers = brokers }
}

func WithTopic(topic string) KafkaOption {
	return func(c *KafkaConfig) { c.Topic = topic }
}

func WithWriteTimeout(d time.Duration) KafkaOption {
	return func(c *KafkaConfig) { c.WriteTimeout = d }
}

func WithMaxAttempts(n int) KafkaOption {
	return func(c *KafkaConfig) { c.MaxAttempts = n }
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events as JSON keyed by rule set tag, so every change to
// one tag lands on the same partition.
type Kafka struct {
	writer messageWriter
	topic  string
}

func NewKafka(opts ...KafkaOption) (*Kafka, error) {
	cfg := &KafkaConfig{
		Topic:        "fxcalib.rulesets",
		RequiredAcks: -1,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &Kafka{writer: w, topic: cfg.Topic}, nil
}

func (k *Kafka) Publish(ctx context.Context, e Event) error {
	v, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Topic: k.topic,
		Key:   []byte(e.Tag),
		Value: v,
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s %s: %w", e.Type, e.Tag, err)
	}
	return nil
}

func (k *Kafka) Close() error { return k.writer.Close() }
