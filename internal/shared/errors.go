// Package shared holds the error taxonomy and request-scoped identity carriers
// used across the ledger core.
package shared

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates resource not found.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed or insufficient input. Expected/Actual
// carry the numeric values that produced a mismatch so callers can render
// precise remediation guidance.
type ValidationError struct {
	Code     string
	Message  string
	Expected string
	Actual   string
}

func (e *ValidationError) Error() string {
	if e.Expected != "" || e.Actual != "" {
		return fmt.Sprintf("%s: %s (expected %s, got %s)", e.Code, e.Message, e.Expected, e.Actual)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidation builds a ValidationError without numeric detail.
func NewValidation(code, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}

// NotFoundError reports an absent document, account, period, or rate.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AuthorizationError reports a segregation-of-duties violation or a wrong
// actor for a transition.
type AuthorizationError struct {
	Rule    string
	Message string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

// PeriodControlKind enumerates period gating failures.
type PeriodControlKind string

const (
	PeriodNotOpen         PeriodControlKind = "PERIOD_NOT_OPEN"
	OpeningBalancesLocked PeriodControlKind = "OPENING_BALANCES_LOCKED"
	BeforeCutover         PeriodControlKind = "BEFORE_CUTOVER"
	PeriodCoverageGap     PeriodControlKind = "PERIOD_COVERAGE_GAP"
)

// PeriodControlError reports a posting or report blocked by period integrity
// rules.
type PeriodControlError struct {
	Kind    PeriodControlKind
	Message string
}

func (e *PeriodControlError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ConflictError reports a transition attempt against a document already in
// the target or a later state.
type ConflictError struct {
	Entity  string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Entity, e.Message)
}

// DownstreamError wraps store failures surfaced to the caller as a generic
// downstream fault.
type DownstreamError struct {
	Op  string
	Err error
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("downstream failure in %s: %v", e.Op, e.Err)
}

func (e *DownstreamError) Unwrap() error { return e.Err }

// IsPeriodControl reports whether err is a period control failure of the
// given kind.
func IsPeriodControl(err error, kind PeriodControlKind) bool {
	var pce *PeriodControlError
	return errors.As(err, &pce) && pce.Kind == kind
}
