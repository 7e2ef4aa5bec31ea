package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by the store when a row does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrIdentityConflict is returned when another writer created a product
	// with the same identity hash first. Callers reload the winner.
	ErrIdentityConflict = errors.New("product identity conflict")

	// ErrStoreUnavailable marks persistence failures.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotificationDispatch marks external channel failures.
	ErrNotificationDispatch = errors.New("notification dispatch failed")
)

// ValidationCode is a stable machine-readable reason for a ValidationError.
type ValidationCode string

const (
	CodeMissingField         ValidationCode = "missing_field"
	CodeUnknownField         ValidationCode = "unknown_field"
	CodeInvalidField         ValidationCode = "invalid_field"
	CodeMustBeANumber        ValidationCode = "must_be_a_number"
	CodeMustBePositive       ValidationCode = "must_be_positive"
	CodeMissingPrices        ValidationCode = "missing_prices"
	CodeInvalidURL           ValidationCode = "invalid_url"
	CodeUnsupportedShop      ValidationCode = "unsupported_shop"
	CodeNotASingleProductURL ValidationCode = "not_a_single_product_url"
	CodeIdentityMismatch     ValidationCode = "identity_mismatch"
	CodeInvalidSubscription  ValidationCode = "invalid_subscription_type"
)

// ValidationError rejects caller input before any write happens.
type ValidationError struct {
	Field   string
	Code    ValidationCode
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Malformed reports whether the input was structurally incomplete (missing
// or unknown fields) rather than semantically invalid.
func (e *ValidationError) Malformed() bool {
	return e.Code == CodeMissingField || e.Code == CodeUnknownField
}

// NewValidationError builds a ValidationError.
func NewValidationError(field string, code ValidationCode, msg string) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: msg}
}

// NotFoundError names the missing entity. It matches ErrNotFound with errors.Is.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFound builds a NotFoundError.
func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// StoreError wraps a persistence failure. It matches ErrStoreUnavailable.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

// StoreUnavailable wraps err unless it is already a domain error that
// callers must see unchanged.
func StoreUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var vErr *ValidationError
	var nfErr *NotFoundError
	switch {
	case errors.As(err, &vErr), errors.As(err, &nfErr),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrStoreUnavailable):
		return err
	}
	return &StoreError{Op: op, Err: err}
}
