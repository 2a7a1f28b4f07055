package models

import "errors"

// Error categories. Every domain error wraps exactly one of them so the
// transport layer can classify with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrNotAuthorized = errors.New("not authorized")
	ErrConflict      = errors.New("conflict")
	ErrValidation    = errors.New("validation failed")
)

var (
	ErrStationNotFound     = newError(ErrNotFound, "station not found")
	ErrReservationNotFound = newError(ErrNotFound, "reservation not found")
	ErrTransactionNotFound = newError(ErrNotFound, "transaction not found")
	ErrUserNotFound        = newError(ErrNotFound, "user not found")
	ErrVehicleNotFound     = newError(ErrNotFound, "vehicle not found")

	ErrReservationNotOwned = newError(ErrNotAuthorized, "reservation belongs to another user")
	ErrInvalidCredentials  = newError(ErrNotAuthorized, "invalid username or password")
	ErrInvalidToken        = newError(ErrNotAuthorized, "invalid token")

	ErrNoPortsAvailable = newError(ErrConflict, "no ports currently available")
	ErrStationOffline   = newError(ErrConflict, "station is offline")
	ErrAlreadySettled   = newError(ErrConflict, "reservation already settled")
	ErrStationExists    = newError(ErrConflict, "station already exists")
	ErrUserExists       = newError(ErrConflict, "username or email already exists")

	ErrInvalidAmount   = newError(ErrValidation, "amount must be a non-negative number")
	ErrPaymentDeclined = newError(ErrValidation, "payment failed or cancelled")
	ErrInvalidStation  = newError(ErrValidation, "station must have a positive port count and non-negative cost")
)

// DomainError is a categorized error with a message safe to show callers.
type DomainError struct {
	kind error
	msg  string
}

func newError(kind error, msg string) *DomainError {
	return &DomainError{kind: kind, msg: msg}
}

func (e *DomainError) Error() string { return e.msg }

func (e *DomainError) Unwrap() error { return e.kind }

// NewValidationError builds a request validation error with a custom message.
func NewValidationError(msg string) error {
	return newError(ErrValidation, msg)
}
