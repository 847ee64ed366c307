package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"receipt-overseer/internal/models"
)

// UserRepository defines interactions for registered users.
type UserRepository interface {
	CreateUser(ctx context.Context, username, passwordHash string) (models.User, error)
	GetUserByID(ctx context.Context, id int) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	ListUsers(ctx context.Context, skip, limit int) ([]models.User, error)
	MissingUserIDs(ctx context.Context, ids []int) ([]int, error)
	UpdatePassword(ctx context.Context, id int, passwordHash string) error
	DeleteUser(ctx context.Context, id int) error
}

type userRow struct {
	ID           int    `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
	CreatedAt    int64  `db:"created_at"`
}

func (r userRow) model() models.User {
	return models.User{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		CreatedAt:    time.UnixMilli(r.CreatedAt).UTC(),
	}
}

// UserRepo is a sqlx-backed repository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser inserts a user; duplicate usernames yield ErrUsernameTaken.
func (r *UserRepo) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	var id int
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?) RETURNING id`),
		username, passwordHash, now.UnixMilli()).Scan(&id)
	if isUniqueViolation(err) {
		return models.User{}, ErrUsernameTaken
	}
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return models.User{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: now}, nil
}

func (r *UserRepo) GetUserByID(ctx context.Context, id int) (models.User, error) {
	return r.getOne(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE id=?`, id)
}

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return r.getOne(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE username=?`, username)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (models.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return row.model(), nil
}

// ListUsers returns users ordered by id.
func (r *UserRepo) ListUsers(ctx context.Context, skip, limit int) ([]models.User, error) {
	var rows []userRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`SELECT id, username, password_hash, created_at FROM users ORDER BY id LIMIT ? OFFSET ?`), limit, skip)
	if err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.model())
	}
	return users, nil
}

// MissingUserIDs reports which of ids have no user row, in input order.
func (r *UserRepo) MissingUserIDs(ctx context.Context, ids []int) ([]int, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var found []int
	if err := r.db.SelectContext(ctx, &found, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	known := make(map[int]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}
	var missing []int
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE users SET password_hash=? WHERE id=?`), passwordHash, id)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser removes a user and their chat messages. Users that paid or owe on
// any expense are kept and ErrUserHasLedger is returned.
func (r *UserRepo) DeleteUser(ctx context.Context, id int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var entries int
	err = tx.GetContext(ctx, &entries, tx.Rebind(`SELECT
            (SELECT COUNT(*) FROM expenses WHERE payer_id=?) +
            (SELECT COUNT(*) FROM expense_shares WHERE debtor_id=?)`), id, id)
	if err != nil {
		return err
	}
	if entries > 0 {
		return ErrUserHasLedger
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM messages WHERE user_id=?`), id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM users WHERE id=?`), id)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return tx.Commit()
}
