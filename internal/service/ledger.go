package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"receipt-overseer/internal/events"
	"receipt-overseer/internal/ledger"
	"receipt-overseer/internal/models"
	"receipt-overseer/internal/repositories"
	"receipt-overseer/internal/telemetry"
)

// ExpenseInput is the user-supplied part of an expense.
type ExpenseInput struct {
	Amount       decimal.Decimal
	Description  string
	Participants []int
}

// BalanceView is a viewer's balance plus the per-counterparty breakdown.
type BalanceView struct {
	ledger.Balance
	Counterparties []ledger.Counterparty
}

// LedgerService applies expense actions and publishes the resulting events.
type LedgerService struct {
	users     repositories.UserRepository
	expenses  repositories.ExpenseRepository
	publisher events.Publisher
	audit     *telemetry.AuditEmitter
	locks     *keyedLocker
}

func NewLedgerService(users repositories.UserRepository, expenses repositories.ExpenseRepository, publisher events.Publisher, audit *telemetry.AuditEmitter) *LedgerService {
	return &LedgerService{
		users:     users,
		expenses:  expenses,
		publisher: publisher,
		audit:     audit,
		locks:     newKeyedLocker(),
	}
}

func (s *LedgerService) CreateExpense(ctx context.Context, actor Actor, in ExpenseInput) (models.Expense, error) {
	shares, err := s.split(ctx, actor, in)
	if err != nil {
		return models.Expense{}, err
	}

	expense, err := s.expenses.CreateExpense(ctx, actor.UserID, in.Amount, strings.TrimSpace(in.Description), shares)
	if err != nil {
		return models.Expense{}, classify(err)
	}
	slog.Info("expense created", "expense_id", expense.ID, "payer_id", actor.UserID, "amount", expense.Amount.String())

	s.publisher.Publish(ctx, events.ExpenseChanged{}, events.All())
	s.publisher.Publish(ctx, events.GenericNotification{
		Label: fmt.Sprintf("%s added %q (%s)", payerName(expense), expense.Description, expense.Amount.StringFixed(2)),
	}, events.AllExceptSender(actor.UserID))
	return expense, nil
}

// UpdateExpense replaces amount, description and participants of an expense the actor paid.
func (s *LedgerService) UpdateExpense(ctx context.Context, actor Actor, expenseID int, in ExpenseInput) (models.Expense, error) {
	shares, err := s.split(ctx, actor, in)
	if err != nil {
		return models.Expense{}, err
	}

	unlock := s.locks.Lock(expenseKey(expenseID))
	defer unlock()

	expense, err := s.expenses.ReplaceExpense(ctx, expenseID, actor.UserID, in.Amount, strings.TrimSpace(in.Description), shares)
	if err != nil {
		err = classify(err)
		s.auditDenied(ctx, actor, err, "update expense", expenseID)
		return models.Expense{}, err
	}
	slog.Info("expense updated", "expense_id", expenseID, "payer_id", actor.UserID)

	s.publisher.Publish(ctx, events.ExpenseChanged{}, events.All())
	return expense, nil
}

// DeleteExpense removes an expense the actor paid. ErrNotFound means someone
// else already deleted it.
func (s *LedgerService) DeleteExpense(ctx context.Context, actor Actor, expenseID int) error {
	unlock := s.locks.Lock(expenseKey(expenseID))
	defer unlock()

	if err := s.expenses.DeleteExpense(ctx, expenseID, actor.UserID); err != nil {
		err = classify(err)
		s.auditDenied(ctx, actor, err, "delete expense", expenseID)
		return err
	}
	slog.Info("expense deleted", "expense_id", expenseID, "payer_id", actor.UserID)
	s.audit.Emit(ctx, telemetry.LevelInfo, fmt.Sprintf("expense %d deleted", expenseID), actor.UserID)

	s.publisher.Publish(ctx, events.ExpenseChanged{}, events.All())
	return nil
}

func (s *LedgerService) ListExpenses(ctx context.Context, filter models.ExpenseFilter) ([]models.Expense, error) {
	if filter.Skip < 0 || filter.Limit < 0 {
		return nil, validationError("skip and limit must not be negative")
	}
	return s.expenses.ListExpenses(ctx, filter)
}

// Balance computes the viewer's balance from a single consistent read.
func (s *LedgerService) Balance(ctx context.Context, actor Actor) (BalanceView, error) {
	expenses, err := s.expenses.ExpensesInvolving(ctx, actor.UserID)
	if err != nil {
		return BalanceView{}, err
	}
	return BalanceView{
		Balance:        ledger.ComputeBalance(actor.UserID, expenses),
		Counterparties: ledger.Counterparties(actor.UserID, expenses),
	}, nil
}

func (s *LedgerService) split(ctx context.Context, actor Actor, in ExpenseInput) ([]models.Share, error) {
	if err := ledger.ValidateExpense(in.Amount, in.Description, actor.UserID, in.Participants); err != nil {
		return nil, classify(err)
	}
	debtors := ledger.Debtors(actor.UserID, in.Participants)
	missing, err := s.users.MissingUserIDs(ctx, debtors)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, validationError("unknown participants %v", missing)
	}
	shares, err := ledger.Split(in.Amount, actor.UserID, debtors)
	if err != nil {
		return nil, classify(err)
	}
	return shares, nil
}

func (s *LedgerService) auditDenied(ctx context.Context, actor Actor, err error, action string, id int) {
	if Code(err) != CodeForbidden {
		return
	}
	slog.Warn("forbidden ledger action", "action", action, "expense_id", id, "user_id", actor.UserID)
	s.audit.Emit(ctx, telemetry.LevelWarn, fmt.Sprintf("%s %d denied: not the payer", action, id), actor.UserID)
}

func expenseKey(id int) string {
	return "expense:" + strconv.Itoa(id)
}

func payerName(expense models.Expense) string {
	if expense.PayerUsername != "" {
		return expense.PayerUsername
	}
	return "user " + strconv.Itoa(expense.PayerID)
}
