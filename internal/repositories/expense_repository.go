package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"receipt-overseer/internal/models"
)

const defaultListLimit = 100

// ExpenseRepository defines interactions for expenses and their shares.
type ExpenseRepository interface {
	CreateExpense(ctx context.Context, payerID int, amount decimal.Decimal, description string, shares []models.Share) (models.Expense, error)
	GetExpense(ctx context.Context, id int) (models.Expense, error)
	ListExpenses(ctx context.Context, filter models.ExpenseFilter) ([]models.Expense, error)
	ExpensesInvolving(ctx context.Context, userID int) ([]models.Expense, error)
	ReplaceExpense(ctx context.Context, id, payerID int, amount decimal.Decimal, description string, shares []models.Share) (models.Expense, error)
	DeleteExpense(ctx context.Context, id, payerID int) error
}

// ExpenseRepo is a sqlx-backed repository.
type ExpenseRepo struct {
	db *sqlx.DB
}

// NewExpenseRepo constructs ExpenseRepo.
func NewExpenseRepo(db *sqlx.DB) *ExpenseRepo {
	return &ExpenseRepo{db: db}
}

// expenseShareRow is one row of the expense/share join; share columns are
// NULL for an expense without shares.
type expenseShareRow struct {
	ID             int                 `db:"id"`
	PayerID        int                 `db:"payer_id"`
	PayerUsername  string              `db:"payer_username"`
	Amount         decimal.Decimal     `db:"amount"`
	Description    string              `db:"description"`
	CreatedAt      int64               `db:"created_at"`
	ShareID        sql.NullInt64       `db:"share_id"`
	DebtorID       sql.NullInt64       `db:"debtor_id"`
	DebtorUsername sql.NullString      `db:"debtor_username"`
	AmountOwed     decimal.NullDecimal `db:"amount_owed"`
}

const expenseSelect = `SELECT e.id, e.payer_id, p.username AS payer_username, e.amount, e.description, e.created_at,
            s.id AS share_id, s.debtor_id, d.username AS debtor_username, s.amount_owed
        FROM %s e
        JOIN users p ON p.id = e.payer_id
        LEFT JOIN expense_shares s ON s.expense_id = e.id
        LEFT JOIN users d ON d.id = s.debtor_id`

func groupExpenses(rows []expenseShareRow) []models.Expense {
	expenses := make([]models.Expense, 0)
	index := make(map[int]int)
	for _, row := range rows {
		i, ok := index[row.ID]
		if !ok {
			expenses = append(expenses, models.Expense{
				ID:            row.ID,
				PayerID:       row.PayerID,
				PayerUsername: row.PayerUsername,
				Amount:        row.Amount,
				Description:   row.Description,
				CreatedAt:     time.UnixMilli(row.CreatedAt).UTC(),
				Shares:        []models.Share{},
			})
			i = len(expenses) - 1
			index[row.ID] = i
		}
		if !row.ShareID.Valid {
			continue
		}
		expenses[i].Shares = append(expenses[i].Shares, models.Share{
			ID:             int(row.ShareID.Int64),
			ExpenseID:      row.ID,
			DebtorID:       int(row.DebtorID.Int64),
			DebtorUsername: row.DebtorUsername.String,
			AmountOwed:     row.AmountOwed.Decimal,
		})
	}
	return expenses
}

func (r *ExpenseRepo) query(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) ([]models.Expense, error) {
	var rows []expenseShareRow
	if err := sqlx.SelectContext(ctx, q, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return groupExpenses(rows), nil
}

// CreateExpense stores the expense and its shares in one transaction.
func (r *ExpenseRepo) CreateExpense(ctx context.Context, payerID int, amount decimal.Decimal, description string, shares []models.Share) (models.Expense, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Expense{}, err
	}
	defer tx.Rollback()

	var id int
	err = tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO expenses (payer_id, amount, description, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		payerID, amount, description, time.Now().UnixMilli()).Scan(&id)
	if err != nil {
		return models.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	if err := insertShares(ctx, tx, id, shares); err != nil {
		return models.Expense{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Expense{}, err
	}
	return r.GetExpense(ctx, id)
}

func (r *ExpenseRepo) GetExpense(ctx context.Context, id int) (models.Expense, error) {
	expenses, err := r.query(ctx, r.db, fmt.Sprintf(expenseSelect, "expenses")+` WHERE e.id=? ORDER BY s.debtor_id`, id)
	if err != nil {
		return models.Expense{}, err
	}
	if len(expenses) == 0 {
		return models.Expense{}, ErrExpenseNotFound
	}
	return expenses[0], nil
}

// ListExpenses returns the newest expenses first, paginated on expenses rather
// than on joined rows.
func (r *ExpenseRepo) ListExpenses(ctx context.Context, filter models.ExpenseFilter) ([]models.Expense, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	page := `(SELECT * FROM expenses WHERE LOWER(description) LIKE ? ESCAPE '\' ORDER BY id DESC LIMIT ? OFFSET ?)`
	query := fmt.Sprintf(expenseSelect, page) + ` ORDER BY e.id DESC, s.debtor_id`
	return r.query(ctx, r.db, query, likePattern(filter.Search), limit, filter.Skip)
}

// ExpensesInvolving returns every expense the user paid for or owes on, read
// in a single statement.
func (r *ExpenseRepo) ExpensesInvolving(ctx context.Context, userID int) ([]models.Expense, error) {
	query := fmt.Sprintf(expenseSelect, "expenses") + `
        WHERE e.payer_id=? OR e.id IN (SELECT expense_id FROM expense_shares WHERE debtor_id=?)
        ORDER BY e.id, s.debtor_id`
	return r.query(ctx, r.db, query, userID, userID)
}

// ReplaceExpense overwrites amount, description and shares when payerID owns the expense.
func (r *ExpenseRepo) ReplaceExpense(ctx context.Context, id, payerID int, amount decimal.Decimal, description string, shares []models.Share) (models.Expense, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Expense{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE expenses SET amount=?, description=? WHERE id=? AND payer_id=?`), amount, description, id, payerID)
	if err != nil {
		return models.Expense{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.Expense{}, err
	}
	if count == 0 {
		return models.Expense{}, expenseMissOrForeign(ctx, tx, id)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM expense_shares WHERE expense_id=?`), id); err != nil {
		return models.Expense{}, err
	}
	if err := insertShares(ctx, tx, id, shares); err != nil {
		return models.Expense{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Expense{}, err
	}
	return r.GetExpense(ctx, id)
}

// DeleteExpense removes the expense and its shares. Of two concurrent deletes
// only one observes an affected row; the other gets ErrExpenseNotFound.
func (r *ExpenseRepo) DeleteExpense(ctx context.Context, id, payerID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM expense_shares WHERE expense_id IN (SELECT id FROM expenses WHERE id=? AND payer_id=?)`), id, payerID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM expenses WHERE id=? AND payer_id=?`), id, payerID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return expenseMissOrForeign(ctx, tx, id)
	}
	return tx.Commit()
}

func insertShares(ctx context.Context, tx *sqlx.Tx, expenseID int, shares []models.Share) error {
	for _, share := range shares {
		_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO expense_shares (expense_id, debtor_id, amount_owed) VALUES (?, ?, ?)`),
			expenseID, share.DebtorID, share.AmountOwed)
		if err != nil {
			return fmt.Errorf("insert share for user %d: %w", share.DebtorID, err)
		}
	}
	return nil
}

func expenseMissOrForeign(ctx context.Context, tx *sqlx.Tx, id int) error {
	var payerID int
	err := tx.GetContext(ctx, &payerID, tx.Rebind(`SELECT payer_id FROM expenses WHERE id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrExpenseNotFound
	}
	if err != nil {
		return err
	}
	return ErrNotOwner
}

func likePattern(search string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(search))
	return "%" + escaped + "%"
}
