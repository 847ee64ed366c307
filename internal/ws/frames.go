package ws

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Inbound actions.
const (
	actionAuth          = "auth"
	actionChat          = "chat"
	actionCreateExpense = "create_expense"
	actionUpdateExpense = "update_expense"
	actionDeleteExpense = "delete_expense"
	actionEditMessage   = "edit_message"
	actionDeleteMessage = "delete_message"
	actionPing          = "ping"
)

const codeUnauthorized = "unauthorized"

// inboundFrame is the union of every client action's fields.
type inboundFrame struct {
	Action       string          `json:"action"`
	Ref          string          `json:"ref,omitempty"`
	Token        string          `json:"token,omitempty"`
	ID           int             `json:"id,omitempty"`
	Content      string          `json:"content,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description,omitempty"`
	Participants []int           `json:"participants,omitempty"`
}

type errorFrame struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Ref     string `json:"ref,omitempty"`
}

type authenticatedFrame struct {
	Event  string `json:"event"`
	UserID int    `json:"user_id"`
	ConnID string `json:"conn_id"`
}

type pongFrame struct {
	Event string `json:"event"`
	Ref   string `json:"ref,omitempty"`
}

func encodeError(code, message, action, ref string) []byte {
	frame, _ := json.Marshal(errorFrame{Event: "error", Code: code, Message: message, Action: action, Ref: ref})
	return frame
}

func encodeAuthenticated(userID int, connID string) []byte {
	frame, _ := json.Marshal(authenticatedFrame{Event: "authenticated", UserID: userID, ConnID: connID})
	return frame
}

func encodePong(ref string) []byte {
	frame, _ := json.Marshal(pongFrame{Event: "pong", Ref: ref})
	return frame
}
