package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"receipt-overseer/internal/events"
	"receipt-overseer/internal/observability"
)

const mirrorTimeout = 2 * time.Second

// BrokerPublisher receives a copy of every published event.
type BrokerPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Bus fans domain events out to active sessions in the registry. Delivery is
// best-effort: a session whose buffer is full is dropped and closed instead
// of stalling the publisher.
type Bus struct {
	registry *Registry
	broker   BrokerPublisher
}

func NewBus(registry *Registry, broker BrokerPublisher) *Bus {
	return &Bus{registry: registry, broker: broker}
}

// Publish implements events.Publisher.
func (b *Bus) Publish(ctx context.Context, ev events.Event, audience events.Audience) {
	frame, err := events.Encode(ev)
	if err != nil {
		slog.Error("encode event failed", "event", events.Kind(ev), "error", err)
		return
	}
	kind := events.Kind(ev)
	observability.IncBusEvent(kind)

	delivered := 0
	for _, c := range b.registry.AllConnections() {
		switch c.State() {
		case StateActive:
		case StateClosed:
			b.prune(c)
			continue
		default:
			continue
		}
		if !audience.Includes(c.UserID()) {
			continue
		}
		if c.enqueue(frame) {
			delivered++
			continue
		}
		b.drop(c)
	}
	slog.Debug("event published", "event", kind, "audience", audience.String(), "delivered", delivered)

	b.mirror(ctx, ev, frame)
}

// prune unregisters a session that closed before its reader cleaned up.
func (b *Bus) prune(c *Client) {
	if b.registry.Unregister(c) {
		observability.IncBusDropped()
		slog.Debug("pruned closed websocket session", "conn_id", c.ID(), "user_id", c.UserID(), "reason", c.reason())
	}
}

func (b *Bus) drop(c *Client) {
	if !b.registry.Unregister(c) {
		return
	}
	observability.IncBusDropped()
	slog.Warn("dropping slow websocket session", "conn_id", c.ID(), "user_id", c.UserID())
	c.Close("send buffer full")
}

func (b *Bus) mirror(ctx context.Context, ev events.Event, frame []byte) {
	if b.broker == nil {
		return
	}
	topic := events.Topic(ev)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	defer cancel()

	envelope := observability.EventEnvelope{
		EventType: strings.SplitN(topic, ".", 2)[0],
		EventName: events.Kind(ev),
		Payload:   json.RawMessage(frame),
	}
	if err := b.broker.Publish(ctx, topic, envelope); err != nil {
		slog.Warn("event mirror failed", "routing_key", topic, "error", err)
	}
}
