package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"posbridge/config"
	"posbridge/pkg/logger"
)

// Consumer reads one queue with manual acks.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  config.RabbitMQConfig
}

func NewConsumer(cfg config.RabbitMQConfig) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.Qos(cfg.PrefetchCount, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &Consumer{
		conn:    conn,
		channel: channel,
		config:  cfg,
	}, nil
}

func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

// ConsumeQueue blocks until the channel closes. A message is acked when
// handler succeeds and requeued when it fails.
func (c *Consumer) ConsumeQueue(queueName string, handler func([]byte) error) error {
	if err := declareQueue(c.channel, queueName); err != nil {
		return err
	}

	msgs, err := c.channel.Consume(
		queueName,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.L().Infof("✓ Started consuming from queue: %s", queueName)

	for msg := range msgs {
		settle(msg, handler(msg.Body), queueName)
	}
	return nil
}

// acknowledger is the part of amqp.Delivery used to settle a message.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settle(msg acknowledger, handlerErr error, queueName string) {
	if handlerErr != nil {
		logger.L().WithField("queue", queueName).Errorf("✗ Error processing message: %v", handlerErr)
		if err := msg.Nack(false, true); err != nil {
			logger.L().Warnf("nack failed: %v", err)
		}
		return
	}
	if err := msg.Ack(false); err != nil {
		logger.L().Warnf("ack failed: %v", err)
	}
}

func declareQueue(ch *amqp.Channel, queueName string) error {
	_, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	return nil
}
