// Package events defines the domain events fanned out to live sessions.
//
// Event is a closed union: only the types in this package implement it, and
// Kind/Encode switch over every one of them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event is a domain event published on the bus.
type Event interface {
	isEvent()
}

// ExpenseChanged tells clients to refetch expenses and balances.
type ExpenseChanged struct{}

// MessageCreated carries a new chat message.
type MessageCreated struct {
	ID       int
	AuthorID int
	Author   string
	Content  string
	Time     time.Time
}

// MessageUpdated carries the new content of an edited message.
type MessageUpdated struct {
	ID      int
	Content string
}

// MessageDeleted identifies a removed message.
type MessageDeleted struct {
	ID int
}

// GenericNotification is a free-form label shown to users.
type GenericNotification struct {
	Label string
}

func (ExpenseChanged) isEvent()      {}
func (MessageCreated) isEvent()      {}
func (MessageUpdated) isEvent()      {}
func (MessageDeleted) isEvent()      {}
func (GenericNotification) isEvent() {}

// Wire names of the event kinds.
const (
	KindExpenseChanged = "expense_changed"
	KindMessageCreated = "message_created"
	KindMessageUpdated = "message_updated"
	KindMessageDeleted = "message_deleted"
	KindNotification   = "notification"
)

// Kind returns the wire name of ev.
func Kind(ev Event) string {
	switch ev.(type) {
	case ExpenseChanged:
		return KindExpenseChanged
	case MessageCreated:
		return KindMessageCreated
	case MessageUpdated:
		return KindMessageUpdated
	case MessageDeleted:
		return KindMessageDeleted
	case GenericNotification:
		return KindNotification
	default:
		panic(fmt.Sprintf("events: unknown event %T", ev))
	}
}

type expenseChangedFrame struct {
	Event string `json:"event"`
}

type messageCreatedFrame struct {
	Event    string    `json:"event"`
	ID       int       `json:"id"`
	AuthorID int       `json:"author_id"`
	Author   string    `json:"author"`
	Content  string    `json:"content"`
	Time     time.Time `json:"time"`
}

type messageUpdatedFrame struct {
	Event   string `json:"event"`
	ID      int    `json:"id"`
	Content string `json:"content"`
}

type messageDeletedFrame struct {
	Event string `json:"event"`
	ID    int    `json:"id"`
}

type notificationFrame struct {
	Event string `json:"event"`
	Label string `json:"label"`
}

// Encode renders ev as an outbound JSON frame {"event": kind, ...}.
func Encode(ev Event) ([]byte, error) {
	kind := Kind(ev)
	switch e := ev.(type) {
	case ExpenseChanged:
		return json.Marshal(expenseChangedFrame{Event: kind})
	case MessageCreated:
		return json.Marshal(messageCreatedFrame{
			Event:    kind,
			ID:       e.ID,
			AuthorID: e.AuthorID,
			Author:   e.Author,
			Content:  e.Content,
			Time:     e.Time.UTC(),
		})
	case MessageUpdated:
		return json.Marshal(messageUpdatedFrame{Event: kind, ID: e.ID, Content: e.Content})
	case MessageDeleted:
		return json.Marshal(messageDeletedFrame{Event: kind, ID: e.ID})
	case GenericNotification:
		return json.Marshal(notificationFrame{Event: kind, Label: e.Label})
	default:
		return nil, fmt.Errorf("events: unknown event %T", ev)
	}
}

// Topic is the broker routing key an event is mirrored under.
func Topic(ev Event) string {
	switch ev.(type) {
	case ExpenseChanged, GenericNotification:
		return "expenses.events"
	case MessageCreated, MessageUpdated, MessageDeleted:
		return "chat.messages"
	default:
		panic(fmt.Sprintf("events: unknown event %T", ev))
	}
}

// Publisher fans an event out to an audience.
type Publisher interface {
	Publish(ctx context.Context, ev Event, audience Audience)
}
