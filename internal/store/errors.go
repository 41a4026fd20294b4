package store

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes store and write-path errors.
type ErrorCode string

const (
	// ErrCodeStoreUnavailable indicates the store handle was released.
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	// ErrCodeMapping indicates a record could not be mapped onto an entity.
	ErrCodeMapping ErrorCode = "MAPPING_ERROR"

	// ErrCodeCommit indicates a write context failed to commit.
	ErrCodeCommit ErrorCode = "COMMIT_ERROR"

	// ErrCodeDelete indicates a bulk delete failed.
	ErrCodeDelete ErrorCode = "DELETE_ERROR"

	// ErrCodeQuery indicates a fetch failed.
	ErrCodeQuery ErrorCode = "STORE_QUERY_ERROR"
)

// Error is the error type carried by every store-facing failure.
//
// Write-path errors reach callers through the result channel; the Code
// lets them distinguish an unavailable store from a bad record.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Entity names the affected entity type, when known.
	Entity string

	// Key is the affected primary key, when known.
	Key string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Entity != "" && e.Key != "":
		msg += fmt.Sprintf(" (entity=%s, key=%s)", e.Entity, e.Key)
	case e.Entity != "":
		msg += fmt.Sprintf(" (entity=%s)", e.Entity)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewUnavailableError creates an Error for a released store.
func NewUnavailableError() *Error {
	return &Error{Code: ErrCodeStoreUnavailable, Message: "store is no longer available"}
}

// NewMappingError creates an Error for a record that cannot be mapped.
func NewMappingError(entity, key, message string) *Error {
	return &Error{Code: ErrCodeMapping, Message: message, Entity: entity, Key: key}
}

// NewCommitError wraps a failed commit.
func NewCommitError(err error) *Error {
	return &Error{Code: ErrCodeCommit, Message: "commit failed", Err: err}
}

// NewDeleteError wraps a failed bulk delete of one entity type.
func NewDeleteError(entity string, err error) *Error {
	return &Error{Code: ErrCodeDelete, Message: "bulk delete failed", Entity: entity, Err: err}
}

// NewQueryError wraps a failed fetch.
func NewQueryError(entity string, err error) *Error {
	return &Error{Code: ErrCodeQuery, Message: "fetch failed", Entity: entity, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsStoreUnavailable returns true if the error reports a released store.
// Uses errors.As to handle wrapped errors.
func IsStoreUnavailable(err error) bool {
	return CodeOf(err) == ErrCodeStoreUnavailable
}

// IsMappingError returns true if the error is a mapping error.
func IsMappingError(err error) bool {
	return CodeOf(err) == ErrCodeMapping
}

// IsCommitError returns true if the error is a commit error.
func IsCommitError(err error) bool {
	return CodeOf(err) == ErrCodeCommit
}

// IsDeleteError returns true if the error is a bulk delete error.
func IsDeleteError(err error) bool {
	return CodeOf(err) == ErrCodeDelete
}

// IsQueryError returns true if the error is a fetch error.
func IsQueryError(err error) bool {
	return CodeOf(err) == ErrCodeQuery
}
