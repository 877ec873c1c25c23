package domain

import (
	"errors"
	"fmt"
)

// File-level structural failures. These propagate to the caller as hard
// errors; everything row- or item-scoped is recovered locally.
var (
	// ErrFormatNotRecognized means the file is neither CSV nor OFX.
	ErrFormatNotRecognized = errors.New("statement format not recognized")

	// ErrHeaderNotFound is a sentinel, not a fatal failure: it signals that
	// automatic column detection gave up and a manual mapping is required.
	ErrHeaderNotFound = errors.New("header row not found")

	// ErrNoValidRows means every row of the file failed to parse.
	ErrNoValidRows = errors.New("no valid rows in statement")

	// ErrInvalidBudgetLimit is raised for a negative configured limit, before
	// any classification is attempted.
	ErrInvalidBudgetLimit = errors.New("monthly budget limit must not be negative")
)

// RowError records one statement row that failed to parse. The import
// continues with the remaining rows.
type RowError struct {
	Line   int
	Raw    string
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// ValidationError marks bad caller input (missing fields, out-of-range batch
// size, unknown model). It is distinguishable from transient provider
// failures so callers can decide between fixing the request and retrying.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// BudgetExceededError is a policy rejection, not a system fault. It always
// carries the current usage and limit so the caller can decide to override.
type BudgetExceededError struct {
	UsedUSD  float64
	LimitUSD float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("ai budget limit exceeded: used %.4f of %.2f USD", e.UsedUSD, e.LimitUSD)
}

// ProviderError wraps a failed provider call. Timeout distinguishes a
// per-call deadline from other transport or response failures; neither is
// fatal to a batch and neither records a charge.
type ProviderError struct {
	Err     error
	Timeout bool
}

func (e *ProviderError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("provider timeout: %v", e.Err)
	}
	return fmt.Sprintf("provider error: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
