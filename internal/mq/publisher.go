package mq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ImportCompletedEvent announces a finished bulk load to downstream
// consumers (billing, reporting). Published once per successful import.
type ImportCompletedEvent struct {
	ImportID        string `json:"import_id"`
	InsertedCount   int64  `json:"inserted_count"`
	LatestTimestamp string `json:"latest_timestamp,omitempty"`
}

// ImportPublisher publishes import lifecycle events. The failure of a
// publish never fails the import itself.
type ImportPublisher interface {
	PublishImportCompleted(ctx context.Context, event ImportCompletedEvent) error
}

// Publisher is the RabbitMQ-backed ImportPublisher.
type Publisher struct {
	conn       *Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *zap.Logger
}

// NewPublisher creates a publisher bound to a durable topic exchange.
func NewPublisher(conn *Connection, exchange, routingKey string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:       conn,
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

// PublishImportCompleted publishes the import-completed event.
func (p *Publisher) PublishImportCompleted(ctx context.Context, event ImportCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published import completed event",
		zap.String("routing_key", p.routingKey),
		zap.String("import_id", event.ImportID),
		zap.Int64("inserted_count", event.InsertedCount),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}

// NoopPublisher satisfies ImportPublisher for deployments without a broker
// (RABBITMQ_URL unset).
type NoopPublisher struct{}

func (NoopPublisher) PublishImportCompleted(context.Context, ImportCompletedEvent) error {
	return nil
}
