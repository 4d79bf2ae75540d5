package billing

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("billing: not found")
	ErrAlreadyExists = errors.New("billing: already exists")
	ErrInvalidInput  = errors.New("billing: invalid input")

	// Customer errors
	ErrCustomerNotFound = errors.New("billing: customer not found")
	ErrCustomerExists   = errors.New("billing: customer with this email or phone already exists")

	// Plan errors
	ErrPlanNotFound          = errors.New("billing: plan not found")
	ErrPlanInactive          = errors.New("billing: plan is inactive")
	ErrNoActivePlan          = errors.New("billing: customer has no active plan")
	ErrActivePlanExists      = errors.New("billing: customer already has an active plan")
	ErrRenewalNotDue         = errors.New("billing: renewal date is in the future")
	ErrSamePlan              = errors.New("billing: requested plan is already active")
	ErrUnsupportedPlanChange = errors.New("billing: plan change between these plan types is not supported")

	// Invoice and payment errors
	ErrInvoiceNotFound   = errors.New("billing: invoice not found")
	ErrInvoicePaid       = errors.New("billing: invoice already paid")
	ErrInsufficientTopUp = errors.New("billing: amount is less than the outstanding balance")

	// Store and concurrency errors
	ErrTransactionFailed      = errors.New("billing: transaction failed")
	ErrConcurrentModification = errors.New("billing: customer was modified concurrently")
	ErrLockTimeout            = errors.New("billing: timed out waiting for customer lock")
	ErrMigrationFailed        = errors.New("billing: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("billing: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "billing: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("billing: %d errors occurred", len(e.Errors))
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

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error {
	return e.Errors
}

// IsNotFound reports whether err means a customer, plan or invoice is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrInvoiceNotFound)
}

// IsInvalidState reports whether err rejects an operation that is illegal in
// the customer's current lifecycle state.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrNoActivePlan) ||
		errors.Is(err, ErrActivePlanExists) ||
		errors.Is(err, ErrRenewalNotDue) ||
		errors.Is(err, ErrSamePlan) ||
		errors.Is(err, ErrUnsupportedPlanChange) ||
		errors.Is(err, ErrPlanInactive) ||
		errors.Is(err, ErrInvoicePaid)
}

// IsValidation reports whether err rejects malformed or insufficient input.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInsufficientTopUp) ||
		errors.Is(err, ErrCustomerExists)
}

// IsConsistency reports whether the unit of work failed to commit.
func IsConsistency(err error) bool {
	return errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrLockTimeout)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return IsConsistency(err)
}
