package common

import (
	"errors"
	"fmt"
)

// Kind classifies a ledger failure. Kinds are comparable with errors.Is so
// callers can branch on the class of failure without matching reasons.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	// ErrAuthorization reports that the caller lacks the required role.
	ErrAuthorization Kind = "authorization"
	// ErrContractDisabled reports that the engine has been administratively
	// disabled.
	ErrContractDisabled Kind = "contract disabled"
	// ErrValidation covers out-of-range amounts, zero or unrecognised
	// parameters and invalid addresses.
	ErrValidation Kind = "validation"
	// ErrState reports an operation that is invalid for the record state.
	ErrState Kind = "state"
	// ErrSecretMismatch reports a revealed preimage that does not hash to the
	// stored commitment.
	ErrSecretMismatch Kind = "secret mismatch"
	// ErrExpiry reports an operation attempted outside its time window.
	ErrExpiry Kind = "expiry"
	// ErrInsufficientFunds reports an allowance or balance shortfall.
	ErrInsufficientFunds Kind = "insufficient funds"
	// ErrNotFound reports a missing record.
	ErrNotFound Kind = "not found"
)

// Error is the concrete failure returned by every engine entry point. Reason
// carries the stable machine-readable code, e.g. "loan-not-approved".
type Error struct {
	Kind   Kind
	Module string
	Reason string
}

// NewError declares a reason-coded error for a module.
func NewError(kind Kind, module, reason string) *Error {
	return &Error{Kind: kind, Module: module, Reason: reason}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Module == "" {
		return e.Reason
	}
	return e.Module + ": " + e.Reason
}

// Is matches either the failure kind or another *Error with the same module
// and reason.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return t != nil && e.Module == t.Module && e.Reason == t.Reason
	default:
		return false
	}
}

// Unwrap exposes the kind so wrapped errors still match errors.Is(err, Kind).
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Kind
}

// Wrapf annotates err with context while preserving the kind and reason.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// KindOf returns the failure kind carried by err or the empty kind.
func KindOf(err error) Kind {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Kind
	}
	var kind Kind
	if errors.As(err, &kind) {
		return kind
	}
	return ""
}

// ReasonOf returns the machine-readable reason carried by err.
func ReasonOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Reason
	}
	return ""
}
