package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"posbridge/config"
	"posbridge/models"
)

// channelPublisher is the part of *amqp.Channel the publisher needs.
type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends order sync events to a durable queue through the default
// exchange.
type Publisher struct {
	conn    *amqp.Connection
	channel channelPublisher
	queue   string

	mu sync.Mutex // amqp channels are not safe for concurrent publishing
}

func NewPublisher(cfg config.RabbitMQConfig) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := declareQueue(channel, cfg.SyncQueue); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, channel: channel, queue: cfg.SyncQueue}, nil
}

// NewPublisherWith is only for tests to inject a fake channel.
func NewPublisherWith(ch channelPublisher, queue string) *Publisher {
	return &Publisher{channel: ch, queue: queue}
}

func (p *Publisher) Publish(ctx context.Context, evt models.OrderSyncEvent) error {
	body, err := json.Marshal(&evt)
	if err != nil {
		return fmt.Errorf("marshal sync event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: evt.RequestID,
		Timestamp:     evt.OccurredAt,
		Type:          evt.Event,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	var err error
	if p.channel != nil {
		err = p.channel.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
