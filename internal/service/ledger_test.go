package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"receipt-overseer/internal/config"
	"receipt-overseer/internal/db"
	"receipt-overseer/internal/events"
	"receipt-overseer/internal/mocks"
	"receipt-overseer/internal/models"
	"receipt-overseer/internal/repositories"
	"receipt-overseer/internal/telemetry"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateExpensePublishesChangeAndNotification(t *testing.T) {
	ctx := context.Background()
	users := new(mocks.UserRepositoryMock)
	expenses := new(mocks.ExpenseRepositoryMock)
	pub := &mocks.RecordingPublisher{}
	svc := NewLedgerService(users, expenses, pub, nil)

	users.On("MissingUserIDs", ctx, []int{2, 3}).Return(nil, nil)
	expected := []models.Share{{DebtorID: 2, AmountOwed: dec("30")}, {DebtorID: 3, AmountOwed: dec("30")}}
	expenses.On("CreateExpense", ctx, 1, dec("90"), "dinner", mock.MatchedBy(func(shares []models.Share) bool {
		if len(shares) != len(expected) {
			return false
		}
		for i := range shares {
			if shares[i].DebtorID != expected[i].DebtorID || !shares[i].AmountOwed.Equal(expected[i].AmountOwed) {
				return false
			}
		}
		return true
	})).Return(models.Expense{ID: 10, PayerID: 1, PayerUsername: "alice", Amount: dec("90"), Description: "dinner", Shares: expected}, nil)

	expense, err := svc.CreateExpense(ctx, Actor{UserID: 1}, ExpenseInput{Amount: dec("90"), Description: " dinner ", Participants: []int{3, 2, 1, 2}})
	require.NoError(t, err)
	assert.Equal(t, 10, expense.ID)

	published := pub.Events()
	require.Len(t, published, 2)
	assert.Equal(t, events.ExpenseChanged{}, published[0].Event)
	assert.Equal(t, events.All(), published[0].Audience)
	assert.Equal(t, events.GenericNotification{Label: `alice added "dinner" (90.00)`}, published[1].Event)
	assert.Equal(t, events.AllExceptSender(1), published[1].Audience)
	expenses.AssertExpectations(t)
}

func TestCreateExpenseValidation(t *testing.T) {
	ctx := context.Background()
	users := new(mocks.UserRepositoryMock)
	expenses := new(mocks.ExpenseRepositoryMock)
	pub := &mocks.RecordingPublisher{}
	svc := NewLedgerService(users, expenses, pub, nil)
	actor := Actor{UserID: 1}

	cases := []ExpenseInput{
		{Amount: dec("0"), Description: "x", Participants: []int{2}},
		{Amount: dec("-5"), Description: "x", Participants: []int{2}},
		{Amount: dec("10"), Description: "  ", Participants: []int{2}},
		{Amount: dec("10"), Description: "x", Participants: []int{1}},
		{Amount: dec("10"), Description: "x"},
	}
	for _, in := range cases {
		_, err := svc.CreateExpense(ctx, actor, in)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, CodeValidation, Code(err))
	}

	users.On("MissingUserIDs", ctx, []int{2, 99}).Return([]int{99}, nil)
	_, err := svc.CreateExpense(ctx, actor, ExpenseInput{Amount: dec("10"), Description: "x", Participants: []int{2, 99}})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "99")

	assert.Empty(t, pub.Events())
	expenses.AssertNotCalled(t, "CreateExpense", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteExpenseOutcomes(t *testing.T) {
	ctx := context.Background()
	expenses := new(mocks.ExpenseRepositoryMock)
	broker := new(mocks.BrokerPublisherMock)
	pub := &mocks.RecordingPublisher{}
	audit := telemetry.NewAuditEmitter(broker, "audit.events", "receipt-overseer", "test")
	svc := NewLedgerService(new(mocks.UserRepositoryMock), expenses, pub, audit)

	expenses.On("DeleteExpense", ctx, 5, 2).Return(repositories.ErrNotOwner).Once()
	broker.On("Publish", ctx, "audit.events", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.Payload.Level == telemetry.LevelWarn
	})).Return(nil).Once()
	err := svc.DeleteExpense(ctx, Actor{UserID: 2}, 5)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, pub.Events())

	expenses.On("DeleteExpense", ctx, 5, 1).Return(nil).Once()
	broker.On("Publish", ctx, "audit.events", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.Payload.Level == telemetry.LevelInfo
	})).Return(nil).Once()
	require.NoError(t, svc.DeleteExpense(ctx, Actor{UserID: 1}, 5))
	require.Len(t, pub.Events(), 1)

	expenses.On("DeleteExpense", ctx, 5, 1).Return(repositories.ErrExpenseNotFound).Once()
	err = svc.DeleteExpense(ctx, Actor{UserID: 1}, 5)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, CodeNotFound, Code(err))
	assert.Len(t, pub.Events(), 1)

	broker.AssertExpectations(t)
	assert.Zero(t, svc.locks.size())
}

func TestUpdateExpenseForbiddenLeavesNoEvent(t *testing.T) {
	ctx := context.Background()
	users := new(mocks.UserRepositoryMock)
	expenses := new(mocks.ExpenseRepositoryMock)
	pub := &mocks.RecordingPublisher{}
	svc := NewLedgerService(users, expenses, pub, nil)

	users.On("MissingUserIDs", ctx, []int{1}).Return(nil, nil)
	expenses.On("ReplaceExpense", ctx, 5, 2, dec("20"), "taxi", mock.Anything).Return(nil, repositories.ErrNotOwner)

	_, err := svc.UpdateExpense(ctx, Actor{UserID: 2}, 5, ExpenseInput{Amount: dec("20"), Description: "taxi", Participants: []int{1}})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, pub.Events())
}

func TestBalanceUsesInvolvedExpenses(t *testing.T) {
	ctx := context.Background()
	expenses := new(mocks.ExpenseRepositoryMock)
	svc := NewLedgerService(new(mocks.UserRepositoryMock), expenses, &mocks.RecordingPublisher{}, nil)

	expenses.On("ExpensesInvolving", ctx, 1).Return([]models.Expense{
		{ID: 1, PayerID: 1, Amount: dec("90"), Shares: []models.Share{{DebtorID: 2, AmountOwed: dec("30")}, {DebtorID: 3, AmountOwed: dec("30")}}},
	}, nil)

	view, err := svc.Balance(ctx, Actor{UserID: 1})
	require.NoError(t, err)
	assert.True(t, view.OwedToViewer.Equal(dec("60")))
	assert.True(t, view.OwedByViewer.IsZero())
	assert.True(t, view.IsCreditor())
	assert.Len(t, view.Counterparties, 2)

	expenses.On("ExpensesInvolving", ctx, 9).Return(nil, errors.New("db down"))
	_, err = svc.Balance(ctx, Actor{UserID: 9})
	assert.Error(t, err)
}

func TestConcurrentDeleteSucceedsOnceWithOneEvent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Connect(config.DBConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "svc.db")})
	require.NoError(t, err)
	defer conn.Close()

	userRepo := repositories.NewUserRepo(conn)
	alice, err := userRepo.CreateUser(ctx, "alice", "h")
	require.NoError(t, err)
	bob, err := userRepo.CreateUser(ctx, "bob", "h")
	require.NoError(t, err)

	pub := &mocks.RecordingPublisher{}
	svc := NewLedgerService(userRepo, repositories.NewExpenseRepo(conn), pub, nil)
	actor := Actor{UserID: alice.ID}
	expense, err := svc.CreateExpense(ctx, actor, ExpenseInput{Amount: dec("10"), Description: "coffee", Participants: []int{bob.ID}})
	require.NoError(t, err)
	before := len(pub.Events())

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.DeleteExpense(ctx, actor, expense.ID)
		}(i)
	}
	wg.Wait()

	var ok, notFound int
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrNotFound)
		notFound++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, notFound)
	assert.Len(t, pub.Events(), before+1)

	view, err := svc.Balance(ctx, Actor{UserID: bob.ID})
	require.NoError(t, err)
	assert.True(t, view.Net().IsZero())
}
