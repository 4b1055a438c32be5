package domain

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent domain-level failures and are used by stores,
// interpreters and services to communicate failure classes to the HTTP layer.
// -----------------------------------------------------------------------------

// Catalog errors
var (
	ErrProblemNotFound = errors.New("problem not found")
)

// User errors
var (
	ErrUserNotFound = errors.New("user not found")
)

// General errors
var (
	ErrInvalidInput = errors.New("invalid input")
)

// UpstreamError reports a failed call to the reasoning service: transport
// failure, non-2xx status, timeout or an empty completion.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ParseError reports that a verdict or embedded JSON object could not be
// extracted from upstream text. Raw keeps the text for diagnostics and must
// never be shown to end users.
type ParseError struct {
	Mode string
	Raw  string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s verdict: %v", e.Mode, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed read, write or increment call against
// the store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsUpstreamError reports whether err wraps an *UpstreamError.
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// IsPersistenceError reports whether err wraps a *PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
