package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipt-overseer/internal/models"
)

const (
	alice = 1
	bob   = 2
	carol = 3
)

func expense(t *testing.T, id, payer int, amount string, participants ...int) models.Expense {
	t.Helper()
	shares, err := Split(dec(amount), payer, participants)
	require.NoError(t, err)
	return models.Expense{ID: id, PayerID: payer, Amount: dec(amount), Description: "test", Shares: shares}
}

func TestComputeBalanceDinner(t *testing.T) {
	expenses := []models.Expense{expense(t, 1, alice, "90", bob, carol)}

	a := ComputeBalance(alice, expenses)
	assert.True(t, dec("60").Equal(a.OwedToViewer))
	assert.True(t, a.OwedByViewer.IsZero())
	assert.True(t, a.IsCreditor())
	assert.Equal(t, "net creditor", a.Status())

	b := ComputeBalance(bob, expenses)
	assert.True(t, dec("30").Equal(b.OwedByViewer))
	assert.True(t, b.OwedToViewer.IsZero())
	assert.True(t, dec("-30").Equal(b.Net()))
	assert.Equal(t, "net debtor", b.Status())
}

func TestComputeBalanceEmpty(t *testing.T) {
	b := ComputeBalance(alice, nil)
	assert.True(t, b.Net().IsZero())
	assert.True(t, b.IsCreditor())
}

func TestCounterpartiesAreSymmetric(t *testing.T) {
	expenses := []models.Expense{
		expense(t, 1, alice, "90", bob, carol),
		expense(t, 2, bob, "50", alice),
		expense(t, 3, carol, "100", alice, bob),
		expense(t, 4, bob, "10", carol),
	}

	users := []int{alice, bob, carol}
	views := make(map[int]map[int]decimal.Decimal)
	for _, u := range users {
		views[u] = make(map[int]decimal.Decimal)
		for _, cp := range Counterparties(u, expenses) {
			views[u][cp.UserID] = cp.Amount
		}
	}

	for _, a := range users {
		for _, b := range users {
			if a == b {
				continue
			}
			assert.True(t, views[a][b].Equal(views[b][a].Neg()), "%d vs %d: %s / %s", a, b, views[a][b], views[b][a])
		}
	}
}

func TestCounterpartiesSumToNet(t *testing.T) {
	expenses := []models.Expense{
		expense(t, 1, alice, "90", bob, carol),
		expense(t, 2, bob, "50", alice),
		expense(t, 3, carol, "100", alice, bob),
	}

	for _, viewer := range []int{alice, bob, carol} {
		sum := decimal.Zero
		for _, cp := range Counterparties(viewer, expenses) {
			sum = sum.Add(cp.Amount)
		}
		assert.True(t, sum.Equal(ComputeBalance(viewer, expenses).Net()), "viewer %d", viewer)
	}
}

func TestCounterpartiesDropSettledPairs(t *testing.T) {
	expenses := []models.Expense{
		expense(t, 1, alice, "20", bob),
		expense(t, 2, bob, "20", alice),
	}
	assert.Empty(t, Counterparties(alice, expenses))
}

func TestDeletingExpenseRemovesContribution(t *testing.T) {
	dinner := expense(t, 1, alice, "90", bob, carol)
	taxi := expense(t, 2, bob, "40", alice)

	before := ComputeBalance(bob, []models.Expense{dinner, taxi})
	after := ComputeBalance(bob, []models.Expense{taxi})

	assert.True(t, dec("30").Equal(before.OwedByViewer))
	assert.True(t, after.OwedByViewer.IsZero())
	assert.True(t, dec("20").Equal(after.OwedToViewer))
}

func TestPayerShare(t *testing.T) {
	e := expense(t, 1, alice, "100", bob, carol)
	assert.True(t, dec("33.33").Equal(PayerShare(e)))
}
