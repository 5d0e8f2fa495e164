package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrStorage      = errors.New("storage error")
)

// ValidationError represents a missing or invalid field in a request.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError creates a new validation error
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// IsValidationError checks if an error is a validation error (including wrapped errors)
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// NotFoundError reports a referenced entity that does not resolve in the store.
type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("not found %s: %s", e.Kind, e.ID)
}

func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFoundError constructs NotFoundError
func NewNotFoundError(kind Kind, id string) NotFoundError {
	return NotFoundError{Kind: kind, ID: id}
}

// IsNotFoundError checks if err is, or wraps, a not-found condition.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StorageError wraps a failure of the underlying record store.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error { return e.Err }

func (e StorageError) Is(target error) bool { return target == ErrStorage }

// WrapStorage tags err as a storage failure of op. Not-found and conflict
// conditions pass through unchanged so callers can still match them.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrStorage) {
		return err
	}
	return StorageError{Op: op, Err: err}
}
