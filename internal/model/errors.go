package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure taxonomy of the order lifecycle.
// Check with errors.Is(); every sentinel has a designed-for degraded path,
// nothing in this subsystem surfaces a raw error to the customer.
var (
	ErrNotFound = errors.New("not found")

	// ErrValidation: checkout form failed validation. Recovered locally,
	// flow never reaches the payment widget.
	ErrValidation = errors.New("validation failed")

	// ErrPaymentAborted: the customer closed the payment widget before it
	// reported success. No order artifact is created.
	ErrPaymentAborted = errors.New("payment aborted")

	// ErrVerificationTimeout: the payment verification call exceeded its
	// deadline. Not a payment failure - the verification channel failed,
	// not the payment - so the flow degrades to a pending local order.
	ErrVerificationTimeout = errors.New("payment verification timed out")

	// ErrCreateFailed: all order-create attempts against the backend were
	// exhausted. The flow commits a local fallback order instead.
	ErrCreateFailed = errors.New("order creation failed")

	// ErrUpstream: the backend answered with a non-2xx status.
	ErrUpstream = errors.New("upstream error")
)

// APIError is a structured error carrying an HTTP status and a stable code
// for the REST surface. Implements error and supports unwrapping so call
// sites can still match the sentinels above.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewMissingFieldsError reports the checkout fields the customer still has
// to fill in. The field list is preserved verbatim in the message so the
// surface can show it inline.
func NewMissingFieldsError(fields []string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    "missing required fields: " + strings.Join(fields, ", "),
		StatusCode: 400,
		Err:        ErrValidation,
	}
}

// NewValidationError creates a 400 error for a single invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrValidation,
	}
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewUpstreamError creates a 502 error for backend failures.
func NewUpstreamError(op string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", op),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrUpstream, err),
	}
}

// NewCreateFailure marks an order create that exhausted its retries.
// Returned as a value, never thrown past the checkout flow: the flow
// consumes it and degrades to a local fallback order.
func NewCreateFailure(attempts int, err error) *APIError {
	return &APIError{
		Code:       "ORDER_CREATE_FAILED",
		Message:    fmt.Sprintf("order creation failed after %d attempts", attempts),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrCreateFailed, err),
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}
