package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// publishTimeout bounds a single publish so a stalled broker cannot hold up
// the caller.
const publishTimeout = 5 * time.Second

// publisher is the subset of *amqp091.Channel the sink uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// AMQPSink publishes events as JSON to a RabbitMQ exchange.
type AMQPSink struct {
	conn       *amqp091.Connection
	channel    publisher
	exchange   string
	routingKey string
}

// NewAMQPSink dials the broker and declares a durable topic exchange.
func NewAMQPSink(url, exchange, routingKey string) (*AMQPSink, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPSink{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

// Notify implements Sink. Publish failures are logged and dropped.
func (s *AMQPSink) Notify(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		slog.WarnContext(ctx, "failed to encode ledger event", "type", event.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = s.channel.PublishWithContext(
		ctx,
		s.exchange,                          // exchange
		s.routingKey+"."+string(event.Type), // routing key
		false,                               // mandatory
		false,                               // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   event.At,
			Type:        string(event.Type),
			Body:        body,
		},
	)
	if err != nil {
		slog.WarnContext(ctx, "failed to publish ledger event",
			"type", event.Type,
			"exchange", s.exchange,
			"error", err)
		return
	}

	slog.DebugContext(ctx, "published ledger event", "type", event.Type, "exchange", s.exchange)
}

// Close closes the broker connection.
func (s *AMQPSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
