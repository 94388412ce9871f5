// Package kafka publishes operator notifications to a Kafka topic so
// downstream systems (paging, ticketing) can react to them.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/kilianp07/gridready/core/model"
	"github.com/kilianp07/gridready/core/notify"
)

// Config describes the target cluster and topic.
type Config struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per notification, keyed by plant id so a
// plant's notifications stay ordered within a partition.
type Publisher struct {
	writer messageWriter
}

// Validate checks the fields needed when publishing is enabled.
func (c Config) Validate() error {
	if c.Enabled && (len(c.Brokers) == 0 || c.Topic == "") {
		return fmt.Errorf("brokers and topic are required")
	}
	return nil
}

// NewPublisher creates a synchronous producer for cfg.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	return &Publisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}}, nil
}

func (p *Publisher) Publish(ctx context.Context, n model.Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(n.PlantID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "notification_type", Value: []byte(n.NotificationType)},
			{Key: "priority", Value: []byte(n.Priority)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ notify.Publisher = (*Publisher)(nil)
