package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/quip/internal/catalog"
)

// Error is returned by the engine's lifecycle calls.
//
// Queries never return errors: they return zero values outside the Ready
// state. Only Init, Reload and the fact import/export helpers report
// failures.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// State is the engine state when the error occurred.
	State State

	// Problems holds catalog diagnostics for ErrCodeCatalogVoided.
	Problems catalog.Problems

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidState indicates a lifecycle call made in the wrong state.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodeCatalogSource indicates the catalog source failed.
	ErrCodeCatalogSource ErrorCode = "CATALOG_SOURCE"

	// ErrCodeCatalogVoided indicates the catalog had fatal problems and was
	// replaced by an empty one. The engine is still Ready.
	ErrCodeCatalogVoided ErrorCode = "CATALOG_VOIDED"

	// ErrCodeFactIO indicates a fact dump could not be read or written.
	ErrCodeFactIO ErrorCode = "FACT_IO"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s (state=%s)", e.Code, e.Message, e.State)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsStateError reports whether err is an invalid-state error.
// Uses errors.As to handle wrapped errors.
func IsStateError(err error) bool {
	return hasCode(err, ErrCodeInvalidState)
}

// IsVoidedError reports whether err reports a voided catalog.
func IsVoidedError(err error) bool {
	return hasCode(err, ErrCodeCatalogVoided)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func newStateError(op string, s State) *Error {
	return &Error{
		Code:    ErrCodeInvalidState,
		Message: fmt.Sprintf("%s not allowed", op),
		State:   s,
	}
}
