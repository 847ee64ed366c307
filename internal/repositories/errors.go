package repositories

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrUserHasLedger   = errors.New("user has ledger entries")
	ErrExpenseNotFound = errors.New("expense not found")
	ErrMessageNotFound = errors.New("message not found")
	// ErrNotOwner is returned when the row exists but belongs to someone else.
	ErrNotOwner = errors.New("not the owner")
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == "unique_violation"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
