package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a payment made by one user on behalf of a group.
// The payer's own portion is implicit: Amount minus the sum of Shares.
type Expense struct {
	ID            int             `json:"id"`
	PayerID       int             `json:"payer_id"`
	PayerUsername string          `json:"payer_username,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
	Shares        []Share         `json:"shares"`
}

// Share is one debtor's portion of a single Expense.
type Share struct {
	ID             int             `json:"id,omitempty"`
	ExpenseID      int             `json:"expense_id,omitempty"`
	DebtorID       int             `json:"debtor_id"`
	DebtorUsername string          `json:"debtor_username,omitempty"`
	AmountOwed     decimal.Decimal `json:"amount_owed"`
}

// ExpenseFilter narrows expense listings.
type ExpenseFilter struct {
	Search string
	Skip   int
	Limit  int
}
