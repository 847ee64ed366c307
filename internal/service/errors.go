package service

import (
	"errors"
	"fmt"

	"receipt-overseer/internal/ledger"
	"receipt-overseer/internal/repositories"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
	ErrTransport  = errors.New("transport failure")
)

// Wire codes sent to clients in error frames.
const (
	CodeValidation = "validation"
	CodeForbidden  = "forbidden"
	CodeNotFound   = "not_found"
	CodeInternal   = "internal"
)

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation), errors.Is(err, ErrForbidden), errors.Is(err, ErrNotFound):
		return err
	case errors.Is(err, ledger.ErrInvalidSplit):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	case errors.Is(err, repositories.ErrNotOwner):
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	case errors.Is(err, repositories.ErrExpenseNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrUserNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return err
	}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Code maps an error to its wire code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}
