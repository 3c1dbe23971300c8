package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"posbridge/models"
)

// Publisher emits order sync events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, evt models.OrderSyncEvent) error
	Close() error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, models.OrderSyncEvent) error { return nil }
func (NoopPublisher) Close() error                                        { return nil }

// MultiPublisher fans out events to several publishers. Every publisher is
// tried; the errors are joined.
type MultiPublisher struct {
	publishers []Publisher
}

func NewMultiPublisher(ps ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: ps}
}

func (m *MultiPublisher) Publish(ctx context.Context, evt models.OrderSyncEvent) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiPublisher) Close() error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len reports how many publishers are attached.
func (m *MultiPublisher) Len() int { return len(m.publishers) }

// KafkaPublisher writes events to a Kafka topic, keyed by city and
// external number so one order's events stay on one partition.
type KafkaPublisher struct {
	writer kafkaMessageWriter
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaPublisher creates a synchronous writer. brokers is a
// comma-separated list of host:port.
func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	var addrs []string
	for _, a := range strings.Split(brokers, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}}
}

// NewKafkaPublisherWith is only for tests to inject a fake writer.
func NewKafkaPublisherWith(w kafkaMessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (k *KafkaPublisher) Publish(ctx context.Context, evt models.OrderSyncEvent) error {
	b, err := json.Marshal(&evt)
	if err != nil {
		return fmt.Errorf("marshal sync event: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(EventKey(evt)), Value: b}); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error { return k.writer.Close() }

// EventKey identifies the logical order an event belongs to.
func EventKey(evt models.OrderSyncEvent) string {
	return evt.City + "#" + evt.ExternalNumber
}
