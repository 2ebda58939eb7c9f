package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Registration and billing errors.
var (
	ErrRegistrationWindowClosed    = New("REGISTRATION_WINDOW_CLOSED", http.StatusConflict, "registration window is closed")
	ErrCapacityExceeded            = New("CAPACITY_EXCEEDED", http.StatusConflict, "seat limit reached")
	ErrDuplicateRegistration       = New("DUPLICATE_REGISTRATION", http.StatusConflict, "student already registered for arrangement")
	ErrInvalidArrangementReference = New("INVALID_ARRANGEMENT_REFERENCE", http.StatusBadRequest, "invalid arrangement reference")
	ErrBalanceNotFound             = New("BALANCE_NOT_FOUND", http.StatusNotFound, "balance not found")
	ErrRegistrationNotFound        = New("REGISTRATION_NOT_FOUND", http.StatusNotFound, "registration not found")
	ErrAuthorizationDenied         = New("AUTHORIZATION_DENIED", http.StatusForbidden, "authorization denied")
	ErrRequestAlreadyPending       = New("REQUEST_ALREADY_PENDING", http.StatusConflict, "a change request is already pending")
	ErrDuplicatePayment            = New("DUPLICATE_PAYMENT", http.StatusConflict, "payment reference already applied")
	ErrPaymentNotCompleted         = New("PAYMENT_NOT_COMPLETED", http.StatusPaymentRequired, "payment capture not completed")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code == target.Code
	}
	return false
}
