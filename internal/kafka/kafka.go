// Package kafka publishes controller events to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sweeney/fridge-controller/internal/events"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "fridge.controller.events"

const writeTimeout = 5 * time.Second

// writer is the subset of *kafka.Writer the publisher uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per event. Messages are keyed by the
// controller name so a single partition keeps them in order.
type Publisher struct {
	w   writer
	key []byte
}

// NewPublisher creates a synchronous writer for topic on brokers.
func NewPublisher(brokers []string, topic, key string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			WriteTimeout: writeTimeout,
		},
		key: []byte(key),
	}
}

// Publish writes the event, waiting at most writeTimeout.
func (p *Publisher) Publish(event events.Event) error {
	payload, err := events.FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   p.key,
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event.Type)},
			{Key: "id", Value: []byte(event.ID)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}
