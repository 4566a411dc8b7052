package models

import (
	"errors"
	"fmt"
)

// Retryable is implemented by errors that know whether the executor should
// hand the failure back to the queue for redelivery.
type Retryable interface {
	Retryable() bool
}

// APIError is a structured error returned by the marketplace API itself
// (a well-formed error payload, not a transport failure). Not retryable:
// the request was understood and refused.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: code=%d, msg=%s", e.Code, e.Msg)
}

func (e *APIError) Retryable() bool { return false }

// TransientAPIError covers timeouts, 5xx responses and rate-limit refusals.
// The executor surfaces it so the queue redelivers the opportunity.
type TransientAPIError struct {
	Op          string
	Cause       error
	RateLimited bool
}

func (e *TransientAPIError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("%s: rate limited: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("%s: transient api failure: %v", e.Op, e.Cause)
}

func (e *TransientAPIError) Unwrap() error   { return e.Cause }
func (e *TransientAPIError) Retryable() bool { return true }

// ValidationError marks malformed input to a single evaluation. Fatal to
// that evaluation and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Retryable() bool { return false }

// InsufficientBudgetError is raised when a reservation cannot be placed.
// Treated as a rejection, not retried: budget conditions do not change on
// redelivery timescales.
type InsufficientBudgetError struct {
	Gate   string
	Detail string
}

func (e *InsufficientBudgetError) Error() string {
	return fmt.Sprintf("insufficient budget (%s): %s", e.Gate, e.Detail)
}

func (e *InsufficientBudgetError) Retryable() bool { return false }

// DuplicateReservationError signals a broken invariant: two reservations
// for the same opportunity id. Logged and aborted, never retried.
type DuplicateReservationError struct {
	ID string
}

func (e *DuplicateReservationError) Error() string {
	return fmt.Sprintf("duplicate reservation for id %s", e.ID)
}

func (e *DuplicateReservationError) Retryable() bool { return false }

// IsRetryable reports whether err asks for queue redelivery. Unknown error
// types default to retryable so genuine surprises are not silently dropped.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
