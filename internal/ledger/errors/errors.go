package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func NewValidationError(msg string) error {
	return &ValidationError{Msg: msg}
}

func IsValidationError(err error) bool {
	var validationError *ValidationError
	ok := errors.As(err, &validationError)
	return ok
}

var (
	ErrNonPositiveAmount    = NewValidationError("Amount must be greater than zero")
	ErrDonorNameRequired    = NewValidationError("Donor name is required")
	ErrConfirmationMismatch = NewValidationError("Type CONFIRM to delete this entry")
	ErrFixedAmountRequired  = NewValidationError("Specific amount subcategories need an amount greater than zero")
	ErrInvalidSubcategory   = NewValidationError("Invalid subcategory type")
	ErrInvalidStatus        = NewValidationError("Invalid status")
	ErrInvalidPaymentMethod = NewValidationError("Invalid payment method")
	ErrTitleRequired        = NewValidationError("Title is required")
	ErrSubcategoryRequired  = NewValidationError("Subcategory is required")
	ErrAmountPrecision      = NewValidationError("Amount can have at most two decimal places")
	ErrDuplicateReference   = NewValidationError("Transaction reference is already used by another donation")
)

type ValidationErrors struct {
	Errors []error
}

func (ve *ValidationErrors) Error() string {
	errorMessages := make([]string, len(ve.Errors))
	for i, err := range ve.Errors {
		errorMessages[i] = err.Error()
	}
	return fmt.Sprintf("multiple validation errors: %s", strings.Join(errorMessages, "; "))
}

func (ve *ValidationErrors) Add(err error) {
	ve.Errors = append(ve.Errors, err)
}

func (ve *ValidationErrors) Unwrap() []error {
	return ve.Errors
}

// Err returns nil when nothing was added, the single error when one was, and
// the collection otherwise.
func (ve *ValidationErrors) Err() error {
	switch len(ve.Errors) {
	case 0:
		return nil
	case 1:
		return ve.Errors[0]
	default:
		return ve
	}
}

func IsValidationErrors(err error) bool {
	var validationErrors *ValidationErrors
	ok := errors.As(err, &validationErrors)
	return ok
}

// CapabilityError is returned when an actor tries an operation its roles do not allow.
// It is raised before any network or database call.
type CapabilityError struct {
	ActorID   string
	Operation string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("actor %s is not allowed to %s", e.ActorID, e.Operation)
}

func (e *CapabilityError) Is(target error) bool {
	return target == ErrCapabilityDenied
}

var ErrCapabilityDenied = errors.New("capability denied")

func NewCapabilityError(actorID, operation string) error {
	return &CapabilityError{ActorID: actorID, Operation: operation}
}

func IsCapabilityError(err error) bool {
	return errors.Is(err, ErrCapabilityDenied)
}

// TransientError wraps a failed fetch. The caller may retry; nothing was mutated.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func NewTransientError(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

func IsTransientError(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

type FailedOp struct {
	Kind      string // "add" or "remove"
	ManagerID string
	Err       error
}

// PartialFailureError lists the operations of a batch that failed while others succeeded.
type PartialFailureError struct {
	Failed    []FailedOp
	Succeeded int
}

func (e *PartialFailureError) Error() string {
	parts := make([]string, len(e.Failed))
	for i, op := range e.Failed {
		parts[i] = fmt.Sprintf("%s %s: %v", op.Kind, op.ManagerID, op.Err)
	}
	return fmt.Sprintf("%d of %d operations failed: %s", len(e.Failed), len(e.Failed)+e.Succeeded, strings.Join(parts, "; "))
}

func IsPartialFailure(err error) bool {
	var partial *PartialFailureError
	return errors.As(err, &partial)
}

// SettledNotRecordedError means the gateway captured the money but the donation
// record could not be written. It needs manual follow-up.
type SettledNotRecordedError struct {
	SettlementRef string
	SubcategoryID string
	Amount        decimal.Decimal
	Err           error
}

func (e *SettledNotRecordedError) Error() string {
	return fmt.Sprintf("payment captured but not recorded (settlement %s, amount %s): %v", e.SettlementRef, e.Amount.StringFixed(2), e.Err)
}

func (e *SettledNotRecordedError) Unwrap() error {
	return e.Err
}

func IsSettledNotRecorded(err error) bool {
	var gap *SettledNotRecordedError
	return errors.As(err, &gap)
}

var (
	ErrNotFound          = errors.New("entry not found")
	ErrAttemptActive     = errors.New("a donation attempt is already in progress")
	ErrInactive          = errors.New("this fundraiser is not accepting donations")
	ErrNoManagerAssigned = errors.New("no manager is assigned to collect offline donations")
	ErrInvalidTransition = errors.New("action not allowed in the current step")
	ErrUnknownManager    = errors.New("selected manager is not assigned to this subcategory")
)
