// Package rabbitmq mirrors domain events and audit records to a topic exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"receipt-overseer/internal/observability"
	"receipt-overseer/internal/telemetry"
)

const appID = "receipt-overseer"

var errClosed = errors.New("rabbitmq: publisher closed")

// Publisher mirrors events and audit records to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher connects to the broker, or returns a noop publisher when the
// URL is empty or the first connection fails.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		slog.Info("rabbitmq disabled, using noop", "reason", "empty amqp url")
		return noopPublisher{reason: "empty amqp url"}
	}

	conn, ch, err := dial(amqpURL, exchange)
	if err != nil {
		slog.Warn("rabbitmq disabled, using noop", "error", err)
		return noopPublisher{reason: err.Error()}
	}

	slog.Info("rabbitmq connected", "exchange", exchange)
	return &amqpPublisher{url: amqpURL, exchange: exchange, conn: conn, ch: ch}
}

func dial(amqpURL, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	return conn, ch, nil
}

// amqpPublisher serializes publishes on one channel and redials once per
// publish when the broker dropped it.
type amqpPublisher struct {
	url      string
	exchange string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("rabbitmq: encode %s: %w", routingKey, err)
	}

	headers := amqp.Table{}
	for key, value := range observability.HeadersFromContext(ctx) {
		headers[key] = value
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        appID,
		Timestamp:    time.Now(),
		Headers:      headers,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureChannel(); err != nil {
		observability.IncAMQPPublishError()
		slog.Warn("rabbitmq unavailable", "routing_key", routingKey, "error", err)
		return err
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		observability.IncAMQPPublishError()
		slog.Warn("rabbitmq publish failed", "routing_key", routingKey, "error", err)
		return err
	}
	return nil
}

// ensureChannel must be called with mu held.
func (p *amqpPublisher) ensureChannel() error {
	if p.closed {
		return errClosed
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	conn, ch, err := dial(p.url, p.exchange)
	if err != nil {
		p.conn, p.ch = nil, nil
		return err
	}
	slog.Info("rabbitmq reconnected", "exchange", p.exchange)
	p.conn, p.ch = conn, ch
	return nil
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	attrs := []any{"routing_key", routingKey}
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		attrs = append(attrs, "event_type", envelope.EventType, "text", envelope.Payload.Text, "request_id", envelope.RequestID)
	case observability.EventEnvelope:
		attrs = append(attrs, "event_type", envelope.EventType, "event_name", envelope.EventName)
	}
	slog.Debug("rabbitmq noop publish", attrs...)
	return nil
}

func (noopPublisher) Close() error { return nil }

// PublisherMode is "amqp", "noop" or "unknown"; reported by /healthz.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason explains why the broker mirror is disabled.
func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}
