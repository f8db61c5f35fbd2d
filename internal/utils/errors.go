package utils

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks errors caused by caller-supplied values (bad dates, unknown views).
var ErrInvalidInput = errors.New("invalid input")

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// InvalidInput constructs an AppError that matches ErrInvalidInput under errors.Is.
func InvalidInput(op, msg string) error {
	return &AppError{Op: op, Msg: msg, Err: ErrInvalidInput}
}

// IsInvalidInput reports whether err was caused by caller-supplied values.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// Message returns the human-facing message of the outermost AppError, or err.Error().
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
