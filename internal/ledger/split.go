// Package ledger turns expenses into per-user debt obligations and folds
// them into balances. Everything here is pure computation over decimals;
// callers own storage and concurrency.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"receipt-overseer/internal/models"
)

// ErrInvalidSplit is returned when an expense cannot be divided.
var ErrInvalidSplit = errors.New("invalid split")

// centPlaces is the precision shares are quantized to.
const centPlaces = 2

// ValidateExpense checks the user-supplied fields of an expense before it is split.
func ValidateExpense(amount decimal.Decimal, description string, payerID int, participants []int) error {
	if strings.TrimSpace(description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidSplit)
	}
	_, err := Split(amount, payerID, participants)
	return err
}

// Split divides amount evenly across participants plus the payer and returns
// one Share per participant. The payer's portion is not materialized.
//
// The per-head base is truncated to cents and the leftover is added to the
// share of the lowest-id debtor, so shares plus the payer's base always sum
// to amount exactly.
func Split(amount decimal.Decimal, payerID int, participants []int) ([]models.Share, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidSplit)
	}

	debtors := Debtors(payerID, participants)
	if len(debtors) == 0 {
		return nil, fmt.Errorf("%w: at least one participant besides the payer is required", ErrInvalidSplit)
	}

	heads := decimal.NewFromInt(int64(len(debtors) + 1))
	base, remainder := amount.QuoRem(heads, centPlaces)

	shares := make([]models.Share, 0, len(debtors))
	for i, debtor := range debtors {
		owed := base
		if i == 0 {
			owed = owed.Add(remainder)
		}
		shares = append(shares, models.Share{DebtorID: debtor, AmountOwed: owed})
	}
	return shares, nil
}

// Debtors normalizes a participant list: the payer and duplicates are
// dropped and the result is sorted by id.
func Debtors(payerID int, participants []int) []int {
	seen := make(map[int]struct{}, len(participants))
	debtors := make([]int, 0, len(participants))
	for _, id := range participants {
		if id == payerID || id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		debtors = append(debtors, id)
	}
	sort.Ints(debtors)
	return debtors
}

// PayerShare is the payer's implicit portion of an expense.
func PayerShare(expense models.Expense) decimal.Decimal {
	owed := decimal.Zero
	for _, share := range expense.Shares {
		owed = owed.Add(share.AmountOwed)
	}
	return expense.Amount.Sub(owed)
}
