// Package chainerr holds the typed error taxonomy shared across the state,
// execution, consensus and validation packages, so a caller can branch on
// error kind with errors.As instead of string matching.
package chainerr

import "fmt"

// ValidationError is a bad structure, signature, nonce, payable check, or
// root mismatch. Policy: drop the offending item, the round continues.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return "validation error: " + e.Msg }

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// FeeLimitedError marks a transaction that exceeded its fee limit. Policy:
// the receipt status is cancel, but the transaction is still included.
type FeeLimitedError struct{ Msg string }

func (e *FeeLimitedError) Error() string { return "fee limited: " + e.Msg }

func NewFeeLimitedError(format string, args ...any) *FeeLimitedError {
	return &FeeLimitedError{Msg: fmt.Sprintf(format, args...)}
}

// RoundError covers quorum not met, ambiguous vote aggregation, or a
// missing candidate. Policy: abort the round, fall back to the finalize
// queue, else retry.
type RoundError struct{ Msg string }

func (e *RoundError) Error() string { return "round error: " + e.Msg }

func NewRoundError(format string, args ...any) *RoundError {
	return &RoundError{Msg: fmt.Sprintf(format, args...)}
}

// FinalizeError is a broken chain link, timestamp regression, or execution
// timeout. Policy: enter sync mode.
type FinalizeError struct{ Msg string }

func (e *FinalizeError) Error() string { return "finalize error: " + e.Msg }

func NewFinalizeError(format string, args ...any) *FinalizeError {
	return &FinalizeError{Msg: fmt.Sprintf(format, args...)}
}

// CacheError is committed state disagreeing with a cached account. Policy:
// convert to FinalizeError and roll back.
type CacheError struct{ Msg string }

func (e *CacheError) Error() string { return "cache error: " + e.Msg }

func NewCacheError(format string, args ...any) *CacheError {
	return &CacheError{Msg: fmt.Sprintf(format, args...)}
}

// SerializeError is a malformed on-disk or wire payload. Policy: drop the
// message.
type SerializeError struct{ Msg string }

func (e *SerializeError) Error() string { return "serialize error: " + e.Msg }

func NewSerializeError(format string, args ...any) *SerializeError {
	return &SerializeError{Msg: fmt.Sprintf(format, args...)}
}

// NotInputSeed is a missing CLI password. Policy: fatal at startup.
type NotInputSeed struct{ Msg string }

func (e *NotInputSeed) Error() string { return "missing seed: " + e.Msg }

func NewNotInputSeed(format string, args ...any) *NotInputSeed {
	return &NotInputSeed{Msg: fmt.Sprintf(format, args...)}
}
