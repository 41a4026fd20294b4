package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents a failure of the coordinator itself rather than
// of the store or the mapping.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// OperationID identifies the affected operation.
	OperationID string

	// Kind is the affected operation's kind.
	Kind Kind
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeOperationPanic indicates an operation's action panicked.
	ErrCodeOperationPanic RuntimeErrorCode = "OPERATION_PANIC"

	// ErrCodeInvalidOperation indicates an operation without an action.
	ErrCodeInvalidOperation RuntimeErrorCode = "INVALID_OPERATION"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.OperationID != "" {
		return fmt.Sprintf("%s: %s (op=%s, kind=%s)", e.Code, e.Message, e.OperationID, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsPanicError returns true if the error reports a panicking action.
// Uses errors.As to handle wrapped errors.
func IsPanicError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeOperationPanic
	}
	return false
}

// NewPanicError creates a RuntimeError for a recovered panic.
func NewPanicError(op *Operation, recovered any) *RuntimeError {
	return &RuntimeError{
		Code:        ErrCodeOperationPanic,
		Message:     fmt.Sprintf("action panicked: %v", recovered),
		OperationID: op.ID,
		Kind:        op.Kind,
	}
}

// NewInvalidOperationError creates a RuntimeError for a malformed operation.
func NewInvalidOperationError(op *Operation, message string) *RuntimeError {
	return &RuntimeError{
		Code:        ErrCodeInvalidOperation,
		Message:     message,
		OperationID: op.ID,
		Kind:        op.Kind,
	}
}
