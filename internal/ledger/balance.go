package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"receipt-overseer/internal/models"
)

// Balance is a viewer's position across a set of expenses.
type Balance struct {
	OwedByViewer decimal.Decimal `json:"owed_by_viewer"`
	OwedToViewer decimal.Decimal `json:"owed_to_viewer"`
}

// Net is what others owe the viewer minus what the viewer owes others.
func (b Balance) Net() decimal.Decimal {
	return b.OwedToViewer.Sub(b.OwedByViewer)
}

// IsCreditor reports whether the viewer is owed at least as much as they owe.
func (b Balance) IsCreditor() bool {
	return !b.Net().IsNegative()
}

// Status is the presentation label for the sign of Net.
func (b Balance) Status() string {
	if b.IsCreditor() {
		return "net creditor"
	}
	return "net debtor"
}

// Counterparty is the viewer's net position against one other user.
// Positive Amount means the other user owes the viewer.
type Counterparty struct {
	UserID int             `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

// ComputeBalance scans every expense once. Expenses the viewer paid add the
// other debtors' shares to OwedToViewer; expenses someone else paid add the
// viewer's own share, if any, to OwedByViewer.
func ComputeBalance(viewerID int, expenses []models.Expense) Balance {
	balance := Balance{OwedByViewer: decimal.Zero, OwedToViewer: decimal.Zero}
	for _, expense := range expenses {
		if expense.PayerID == viewerID {
			for _, share := range expense.Shares {
				if share.DebtorID != viewerID {
					balance.OwedToViewer = balance.OwedToViewer.Add(share.AmountOwed)
				}
			}
			continue
		}
		if share, ok := ShareOf(expense, viewerID); ok {
			balance.OwedByViewer = balance.OwedByViewer.Add(share.AmountOwed)
		}
	}
	return balance
}

// Counterparties breaks the viewer's balance down per other user.
// Users the viewer is square with are omitted.
func Counterparties(viewerID int, expenses []models.Expense) []Counterparty {
	net := make(map[int]decimal.Decimal)
	for _, expense := range expenses {
		if expense.PayerID == viewerID {
			for _, share := range expense.Shares {
				if share.DebtorID != viewerID {
					net[share.DebtorID] = net[share.DebtorID].Add(share.AmountOwed)
				}
			}
			continue
		}
		if share, ok := ShareOf(expense, viewerID); ok {
			net[expense.PayerID] = net[expense.PayerID].Sub(share.AmountOwed)
		}
	}

	result := make([]Counterparty, 0, len(net))
	for userID, amount := range net {
		if amount.IsZero() {
			continue
		}
		result = append(result, Counterparty{UserID: userID, Amount: amount})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result
}

// ShareOf returns the share owed by userID on expense. An expense holds at
// most one share per debtor.
func ShareOf(expense models.Expense, userID int) (models.Share, bool) {
	for _, share := range expense.Shares {
		if share.DebtorID == userID {
			return share, true
		}
	}
	return models.Share{}, false
}
