package xchpay

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound          = errors.New("xchpay: not found")
	ErrAlreadyExists     = errors.New("xchpay: already exists")
	ErrInvalidInput      = errors.New("xchpay: invalid input")
	ErrInvalidTransition = errors.New("xchpay: invalid status transition")

	// Catalog errors
	ErrProductNotFound   = errors.New("xchpay: product not found")
	ErrInvalidActivation = errors.New("xchpay: invalid activation")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("xchpay: subscription not found")
	ErrAlreadyTerminated    = errors.New("xchpay: subscription already terminated")

	// Invoice errors
	ErrInvoiceNotFound = errors.New("xchpay: invoice not found")
	ErrInvoicePaid     = errors.New("xchpay: invoice already paid")

	// Chain errors
	ErrGatewayUnavailable = errors.New("xchpay: chain gateway unavailable")
	ErrAddressUnavailable = errors.New("xchpay: payment address unavailable")

	// Store errors
	ErrPersistence     = errors.New("xchpay: persistence failed")
	ErrStoreClosed     = errors.New("xchpay: store is closed")
	ErrMigrationFailed = errors.New("xchpay: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("xchpay: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "xchpay: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("xchpay: %d errors occurred: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error {
	return e.Errors
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// ErrOrNil returns e as an error when it holds errors, nil otherwise.
func (e MultiError) ErrOrNil() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrInvoiceNotFound)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) ||
		errors.Is(err, ErrAddressUnavailable) ||
		errors.Is(err, ErrPersistence)
}
