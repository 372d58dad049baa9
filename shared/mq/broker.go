// Package mq provides the RabbitMQ client used to fan completion events out
// to other processes. Uses a topic exchange so consumers subscribe to routing
// key patterns.
package mq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	Exchange     = "uigen.events"
	ExchangeType = "topic"
)

// Broker wraps an AMQP connection and channel.
type Broker struct {
	url      string
	attempts int
	conn     *amqp.Connection
	ch       *amqp.Channel
}

// New connects to RabbitMQ and declares the exchange, retrying up to
// attempts times with a linear backoff.
func New(amqpURL string, attempts int) (*Broker, error) {
	if attempts < 1 {
		attempts = 1
	}
	b := &Broker{url: amqpURL, attempts: attempts}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Broker) connect() error {
	var err error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		b.conn, err = amqp.Dial(b.url)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("RabbitMQ connection failed, retrying")
		if attempt < b.attempts {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	if err != nil {
		return fmt.Errorf("rabbitmq connect after %d attempts: %w", b.attempts, err)
	}

	b.ch, err = b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	return b.ch.ExchangeDeclare(
		Exchange,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// Publish sends a message to the topic exchange with the given routing key.
func (b *Broker) Publish(ctx context.Context, routingKey string, body []byte) error {
	return b.ch.PublishWithContext(ctx,
		Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// Subscribe binds a named queue to the exchange using a routing key pattern.
// Pattern examples: "completion.*", "artifact.#".
func (b *Broker) Subscribe(queueName, pattern string) (<-chan amqp.Delivery, error) {
	if b.ch == nil {
		return nil, errors.New("broker not connected")
	}
	q, err := b.ch.QueueDeclare(
		queueName,
		false, // durable
		true,  // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	if err := b.ch.QueueBind(q.Name, pattern, Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue %s to %s: %w", queueName, pattern, err)
	}

	return b.ch.Consume(
		q.Name,
		"",   // consumer tag, auto-generated
		true, // auto-ack: relay is best effort
		false, false, false, nil,
	)
}

// Close shuts down channel and connection.
func (b *Broker) Close() {
	if b.ch != nil {
		b.ch.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}
