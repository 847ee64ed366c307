package ws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"receipt-overseer/internal/events"
	"receipt-overseer/internal/mocks"
	"receipt-overseer/internal/observability"
)

func drain(c *Client) []string {
	var frames []string
	for {
		select {
		case f := <-c.send:
			frames = append(frames, string(f))
		default:
			return frames
		}
	}
}

func TestBusAudiences(t *testing.T) {
	r := NewRegistry()
	alice1, alice2, bob := testClient(1, 4), testClient(1, 4), testClient(2, 4)
	for _, c := range []*Client{alice1, alice2, bob} {
		r.Register(c)
	}
	bus := NewBus(r, nil)
	ctx := context.Background()

	bus.Publish(ctx, events.MessageUpdated{ID: 7, Content: "x"}, events.All())
	bus.Publish(ctx, events.GenericNotification{Label: "n"}, events.AllExceptSender(1))
	bus.Publish(ctx, events.ExpenseChanged{}, events.OnlySender(1))

	assert.Len(t, drain(alice1), 2)
	assert.Len(t, drain(alice2), 2)
	bobFrames := drain(bob)
	require.Len(t, bobFrames, 2)
	assert.JSONEq(t, `{"event":"notification","label":"n"}`, bobFrames[1])
}

func TestBusSkipsInactiveSessions(t *testing.T) {
	r := NewRegistry()
	pending := testClient(1, 4)
	pending.setState(StateAuthenticated)
	r.Register(pending)

	NewBus(r, nil).Publish(context.Background(), events.ExpenseChanged{}, events.All())
	assert.Empty(t, drain(pending))
	assert.Equal(t, 1, r.Count())
}

func TestBusPrunesClosedSessions(t *testing.T) {
	r := NewRegistry()
	gone, live := testClient(1, 4), testClient(2, 4)
	r.Register(gone)
	r.Register(live)
	gone.Close("peer went away")

	NewBus(r, nil).Publish(context.Background(), events.MessageDeleted{ID: 3}, events.All())

	assert.Empty(t, r.ConnectionsFor(1))
	assert.Equal(t, "peer went away", gone.reason())
	assert.Len(t, drain(live), 1)
}

func TestBusDropsFullClients(t *testing.T) {
	r := NewRegistry()
	slow, fast := testClient(1, 1), testClient(2, 8)
	r.Register(slow)
	r.Register(fast)
	bus := NewBus(r, nil)

	bus.Publish(context.Background(), events.MessageDeleted{ID: 1}, events.All())
	bus.Publish(context.Background(), events.MessageDeleted{ID: 2}, events.All())

	assert.Equal(t, StateClosed, slow.State())
	assert.Equal(t, "send buffer full", slow.reason())
	assert.Empty(t, r.ConnectionsFor(1))
	assert.Len(t, drain(fast), 2)
}

func TestBusMirrorsToBroker(t *testing.T) {
	broker := new(mocks.BrokerPublisherMock)
	bus := NewBus(NewRegistry(), broker)

	broker.On("Publish", mock.Anything, "chat.messages", mock.MatchedBy(func(env observability.EventEnvelope) bool {
		payload, ok := env.Payload.(json.RawMessage)
		return ok && env.EventType == "chat" && env.EventName == "message_deleted" &&
			string(payload) == `{"event":"message_deleted","id":4}`
	})).Return(nil).Once()
	broker.On("Publish", mock.Anything, "expenses.events", mock.Anything).Return(errors.New("broker down")).Once()

	bus.Publish(context.Background(), events.MessageDeleted{ID: 4}, events.All())
	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), events.ExpenseChanged{}, events.All())
	})
	broker.AssertExpectations(t)
}
