package mocks

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"receipt-overseer/internal/models"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	args := m.Called(ctx, username, passwordHash)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUserByID(ctx context.Context, id int) (models.User, error) {
	args := m.Called(ctx, id)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	args := m.Called(ctx, username)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) ListUsers(ctx context.Context, skip, limit int) ([]models.User, error) {
	args := m.Called(ctx, skip, limit)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) MissingUserIDs(ctx context.Context, ids []int) ([]int, error) {
	args := m.Called(ctx, ids)
	var missing []int
	if val := args.Get(0); val != nil {
		missing = val.([]int)
	}
	return missing, args.Error(1)
}

func (m *UserRepositoryMock) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *UserRepositoryMock) DeleteUser(ctx context.Context, id int) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type ExpenseRepositoryMock struct {
	mock.Mock
}

func (m *ExpenseRepositoryMock) CreateExpense(ctx context.Context, payerID int, amount decimal.Decimal, description string, shares []models.Share) (models.Expense, error) {
	args := m.Called(ctx, payerID, amount, description, shares)
	var expense models.Expense
	if val := args.Get(0); val != nil {
		expense = val.(models.Expense)
	}
	return expense, args.Error(1)
}

func (m *ExpenseRepositoryMock) GetExpense(ctx context.Context, id int) (models.Expense, error) {
	args := m.Called(ctx, id)
	var expense models.Expense
	if val := args.Get(0); val != nil {
		expense = val.(models.Expense)
	}
	return expense, args.Error(1)
}

func (m *ExpenseRepositoryMock) ListExpenses(ctx context.Context, filter models.ExpenseFilter) ([]models.Expense, error) {
	args := m.Called(ctx, filter)
	var list []models.Expense
	if val := args.Get(0); val != nil {
		list = val.([]models.Expense)
	}
	return list, args.Error(1)
}

func (m *ExpenseRepositoryMock) ExpensesInvolving(ctx context.Context, userID int) ([]models.Expense, error) {
	args := m.Called(ctx, userID)
	var list []models.Expense
	if val := args.Get(0); val != nil {
		list = val.([]models.Expense)
	}
	return list, args.Error(1)
}

func (m *ExpenseRepositoryMock) ReplaceExpense(ctx context.Context, id, payerID int, amount decimal.Decimal, description string, shares []models.Share) (models.Expense, error) {
	args := m.Called(ctx, id, payerID, amount, description, shares)
	var expense models.Expense
	if val := args.Get(0); val != nil {
		expense = val.(models.Expense)
	}
	return expense, args.Error(1)
}

func (m *ExpenseRepositoryMock) DeleteExpense(ctx context.Context, id, payerID int) error {
	args := m.Called(ctx, id, payerID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, authorID int, content string) (models.ChatMessage, error) {
	args := m.Called(ctx, authorID, content)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.ChatMessage, error) {
	args := m.Called(ctx, messageID)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListRecentMessages(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, limit)
	var msgs []models.ChatMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.ChatMessage)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateMessage(ctx context.Context, messageID, authorID int, content string) (models.ChatMessage, error) {
	args := m.Called(ctx, messageID, authorID, content)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID, authorID int) error {
	args := m.Called(ctx, messageID, authorID)
	return args.Error(0)
}

type TokenValidatorMock struct {
	mock.Mock
}

func (m *TokenValidatorMock) ValidateToken(ctx context.Context, token string) (int, error) {
	args := m.Called(ctx, token)
	return args.Int(0), args.Error(1)
}
