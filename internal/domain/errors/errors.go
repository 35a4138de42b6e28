// Package errors provides the error taxonomy for the ledger core. Handlers
// map these onto HTTP responses; the split between rollback errors ("your
// request failed, nothing changed") and ambiguous errors ("your request is
// processing") is load-bearing and must survive every wrapping layer.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates malformed input, rejected before any DB access.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInsufficientBalance indicates the debit exceeds the available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrRateUnavailable indicates a missing or non-positive price point.
	ErrRateUnavailable = errors.New("exchange rate unavailable")

	// ErrProviderUnavailable indicates the external provider call failed
	// before anything was committed. The whole operation rolled back.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderTimeoutAmbiguous indicates the provider call outcome is
	// unknown. The transaction is recorded pending and must be resolved by
	// reconciliation, never guessed.
	ErrProviderTimeoutAmbiguous = errors.New("provider outcome ambiguous")

	// ErrDuplicateWebhook indicates a redelivered provider event whose
	// transaction is already terminal. Internal no-op, never surfaced to the
	// provider as a failure.
	ErrDuplicateWebhook = errors.New("duplicate webhook delivery")

	// ErrAccountFrozen indicates the account is frozen or inactive.
	ErrAccountFrozen = errors.New("account frozen")

	// ErrInvalidPin indicates the transaction PIN did not match.
	ErrInvalidPin = errors.New("invalid transaction pin")

	// ErrInvariantViolation indicates a state the ledger should never reach.
	// The operation aborts and the condition is logged for manual audit,
	// never silently corrected.
	ErrInvariantViolation = errors.New("ledger invariant violation")
)

// DomainError carries a machine code and context alongside the sentinel.
type DomainError struct {
	Err     error
	Code    string
	Message string
	Details map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

func (e *DomainError) Unwrap() error { return e.Err }

// WithDetails attaches context rendered into the HTTP error body.
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	e.Details = details
	return e
}

// New creates a DomainError wrapping the given sentinel.
func New(sentinel error, code, message string) *DomainError {
	return &DomainError{Err: sentinel, Code: code, Message: message}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) *DomainError {
	return &DomainError{
		Err:     ErrValidation,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: map[string]interface{}{"field": field},
	}
}

// InsufficientBalance reports the shortfall for an attempted debit.
func InsufficientBalance(currency, have, need string) *DomainError {
	return &DomainError{
		Err:     ErrInsufficientBalance,
		Code:    "INSUFFICIENT_BALANCE",
		Message: fmt.Sprintf("insufficient %s balance: have %s, need %s", currency, have, need),
		Details: map[string]interface{}{"currency": currency, "available": have, "required": need},
	}
}

// RateUnavailable reports a missing price point for a currency.
func RateUnavailable(currency string) *DomainError {
	return &DomainError{
		Err:     ErrRateUnavailable,
		Code:    "RATE_UNAVAILABLE",
		Message: fmt.Sprintf("no usable rate for %s", currency),
		Details: map[string]interface{}{"currency": currency},
	}
}

// ProviderUnavailable wraps a failed provider call that was fully rolled back.
func ProviderUnavailable(provider string, err error) *DomainError {
	de := &DomainError{
		Err:     ErrProviderUnavailable,
		Code:    "PROVIDER_UNAVAILABLE",
		Message: fmt.Sprintf("%s is temporarily unavailable, nothing was charged", provider),
	}
	if err != nil {
		de.Details = map[string]interface{}{"cause": err.Error()}
	}
	return de
}

// ProviderTimeoutAmbiguous wraps a provider call with an unknown outcome.
func ProviderTimeoutAmbiguous(provider, reference string) *DomainError {
	return &DomainError{
		Err:     ErrProviderTimeoutAmbiguous,
		Code:    "TRANSACTION_PROCESSING",
		Message: "your transaction is processing and will be confirmed shortly",
		Details: map[string]interface{}{"provider": provider, "reference": reference},
	}
}

// InvariantViolation records a condition the ledger must never reach.
func InvariantViolation(description string, details map[string]interface{}) *DomainError {
	return &DomainError{
		Err:     ErrInvariantViolation,
		Code:    "INVARIANT_VIOLATION",
		Message: description,
		Details: details,
	}
}

// Matchers used by the HTTP layer and workers.

func IsValidation(err error) bool          { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool            { return errors.Is(err, ErrNotFound) }
func IsInsufficientBalance(err error) bool { return errors.Is(err, ErrInsufficientBalance) }
func IsRateUnavailable(err error) bool     { return errors.Is(err, ErrRateUnavailable) }
func IsProviderUnavailable(err error) bool { return errors.Is(err, ErrProviderUnavailable) }
func IsAmbiguous(err error) bool           { return errors.Is(err, ErrProviderTimeoutAmbiguous) }
func IsDuplicateWebhook(err error) bool    { return errors.Is(err, ErrDuplicateWebhook) }
func IsInvariantViolation(err error) bool  { return errors.Is(err, ErrInvariantViolation) }

// Code extracts the machine code from a DomainError chain.
func Code(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return "INTERNAL_ERROR"
}

// Details extracts structured details from a DomainError chain.
func Details(err error) map[string]interface{} {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Details
	}
	return nil
}
