// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEntry    = errors.New("duplicate entry")
	ErrDatabaseCorrupted = errors.New("database corrupted")

	// Classification errors.
	ErrNoTransactions       = errors.New("no transactions to classify")
	ErrClassificationFailed = errors.New("classification failed")
	ErrMalformedResponse    = errors.New("malformed classification response")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// UnrecognizedSourceError is returned when no extractor claims a document.
type UnrecognizedSourceError struct {
	Path string
}

func (e *UnrecognizedSourceError) Error() string {
	return fmt.Sprintf("unrecognized source document: %s", e.Path)
}

// ExtractionError describes a failure to read part or all of a recognized
// document.
type ExtractionError struct {
	Err     error
	Bank    string
	Section string
}

func (e *ExtractionError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("%s extraction failed in %s: %v", e.Bank, e.Section, e.Err)
	}
	return fmt.Sprintf("%s extraction failed: %v", e.Bank, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewExtractionError creates an ExtractionError for a document section.
func NewExtractionError(bank, section string, err error) *ExtractionError {
	return &ExtractionError{Bank: bank, Section: section, Err: err}
}

// ClassificationServiceUnavailableError is returned when the AI tier cannot
// be reached. Callers degrade to rules-only classification.
type ClassificationServiceUnavailableError struct {
	Err      error
	Provider string
}

func (e *ClassificationServiceUnavailableError) Error() string {
	return fmt.Sprintf("classification service %s unavailable: %v", e.Provider, e.Err)
}

func (e *ClassificationServiceUnavailableError) Unwrap() error {
	return e.Err
}

// DuplicateLedgerConflictError is returned when records for a document hash
// already exist and the write was not a forced replace.
type DuplicateLedgerConflictError struct {
	Hash string
	Path string
}

func (e *DuplicateLedgerConflictError) Error() string {
	return fmt.Sprintf("records for %s (hash %s) already exist", e.Path, e.Hash)
}

// IsServiceUnavailable reports whether err means the AI tier is down.
func IsServiceUnavailable(err error) bool {
	var unavailable *ClassificationServiceUnavailableError
	return errors.As(err, &unavailable)
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	// Check for specific retryable errors
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Check for retryable error type
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
