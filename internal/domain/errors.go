package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDuelFull          = errors.New("duel already has two players")
	ErrDuelNotOpen       = errors.New("duel is not open")
	ErrAlreadyFulfilled  = errors.New("seed already fulfilled")
	ErrNoActiveSession   = errors.New("no active session")
	ErrResultsIncomplete = errors.New("waiting for opponent result")
	ErrNotParticipant    = errors.New("not a player of this duel")
	ErrDuelStillActive   = errors.New("duel not settled yet")
)

// ValidationError reports malformed or missing caller input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError is a shorthand used by request decoders.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ConfigurationError means the operator has to fix something (missing key, bad URL).
type ConfigurationError struct {
	Setting string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("configuration error: %s", e.Setting)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Setting, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ChainTimeoutError is returned when a bounded poll runs out of attempts.
type ChainTimeoutError struct {
	Operation string
	Attempts  int
	Interval  time.Duration
}

func (e *ChainTimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %d attempts (interval %s)", e.Operation, e.Attempts, e.Interval)
}

// ChainTransactionError wraps a failed or reverted transaction. TxHash is empty
// when the transaction never made it to the mempool.
type ChainTransactionError struct {
	Operation string
	TxHash    string
	Reason    string
	Err       error
}

func (e *ChainTransactionError) Error() string {
	msg := e.Operation + " failed"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.TxHash != "" {
		msg += " (tx " + e.TxHash + ")"
	}
	return msg
}

func (e *ChainTransactionError) Unwrap() error { return e.Err }

// ConflictError is returned when the requested transition is not allowed by
// the current state, e.g. joining a full duel.
type ConflictError struct {
	Reason string
	Err    error
}

func (e *ConflictError) Error() string {
	if e.Reason == "" && e.Err != nil {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ConflictError) Unwrap() error { return e.Err }

// NewConflict wraps a sentinel so callers can match it with errors.Is.
func NewConflict(err error, reason string) *ConflictError {
	return &ConflictError{Reason: reason, Err: err}
}

// IsRetryable reports whether the user may retry the failed action.
// Chain timeouts and failed transactions leave the stake escrowed, so they are
// retryable; validation, configuration and conflict errors are not.
func IsRetryable(err error) bool {
	var (
		timeout  *ChainTimeoutError
		txErr    *ChainTransactionError
		valErr   *ValidationError
		cfgErr   *ConfigurationError
		conflict *ConflictError
	)
	switch {
	case errors.As(err, &valErr), errors.As(err, &cfgErr), errors.As(err, &conflict):
		return false
	case errors.As(err, &timeout), errors.As(err, &txErr):
		return true
	default:
		return false
	}
}
