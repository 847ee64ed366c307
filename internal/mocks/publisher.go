package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"receipt-overseer/internal/events"
)

// BrokerPublisherMock stands in for the RabbitMQ publisher.
type BrokerPublisherMock struct {
	mock.Mock
}

func (m *BrokerPublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *BrokerPublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Published is one event captured by RecordingPublisher.
type Published struct {
	Event    events.Event
	Audience events.Audience
}

// RecordingPublisher records domain events instead of fanning them out.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []Published
}

func (p *RecordingPublisher) Publish(_ context.Context, ev events.Event, audience events.Audience) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Published{Event: ev, Audience: audience})
}

// Events returns a copy of everything published so far.
func (p *RecordingPublisher) Events() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Published, len(p.events))
	copy(out, p.events)
	return out
}
