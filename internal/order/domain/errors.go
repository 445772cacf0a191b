package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyOrder           = errors.New("empty_order")
	ErrNonPositiveDue       = errors.New("non_positive_due")
	ErrMissingTable         = errors.New("missing_table")
	ErrMissingCustomer      = errors.New("missing_customer")
	ErrMissingAddress       = errors.New("missing_delivery_address")
	ErrMissingItem          = errors.New("missing_item_id")
	ErrMissingSection       = errors.New("missing_kitchen_section")
	ErrInvalidOrderType     = errors.New("invalid_order_type")
	ErrInvalidPaymentAmount = errors.New("invalid_payment_amount")
	ErrOverpayment          = errors.New("payment_exceeds_ceiling")

	ErrVersionConflict = errors.New("version_conflict")
	ErrIDCollision     = errors.New("id_collision")
	ErrTransient       = errors.New("transient_failure")
	ErrNotFound        = errors.New("not_found")
	ErrInvalidOrderID  = errors.New("invalid_order_id")

	ErrFatal           = errors.New("fatal")
	ErrMissingShift    = errors.New("missing_shift_linkage")
	ErrOrderFinalized  = errors.New("order_finalized")
	ErrSaveInProgress  = errors.New("save_in_progress")
	ErrNoCurrentOrder  = errors.New("no_current_order")
	ErrPaymentRequired = errors.New("payment_required")
	ErrInvalidStage    = errors.New("invalid_finalize_stage")
)

// ValidationError is one user-correctable problem found before any network call.
type ValidationError struct {
	Field  string
	LineID string
	Err    error
}

func (e ValidationError) Error() string {
	if e.LineID != "" {
		return fmt.Sprintf("line %s: %s: %v", e.LineID, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e ValidationError) Unwrap() error { return e.Err }

type ValidationErrors struct {
	Errors []ValidationError
}

func (e *ValidationErrors) Add(field, lineID string, err error) {
	e.Errors = append(e.Errors, ValidationError{Field: field, LineID: lineID, Err: err})
}

func (e *ValidationErrors) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		parts = append(parts, item.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationErrors) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, item := range e.Errors {
		errs = append(errs, item)
	}
	return errs
}

// OrNil returns nil when nothing was collected.
func (e *ValidationErrors) OrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// ConflictError reports a stale expected version. Remote carries the
// store's current order when the store could load it.
type ConflictError struct {
	OrderID         string
	ExpectedVersion int64
	Remote          *Order
}

func (e *ConflictError) Error() string {
	if e.Remote != nil {
		return fmt.Sprintf("version_conflict: order %s expected v%d, remote at v%d", e.OrderID, e.ExpectedVersion, e.Remote.Version())
	}
	return fmt.Sprintf("version_conflict: order %s expected v%d", e.OrderID, e.ExpectedVersion)
}

func (e *ConflictError) Unwrap() error { return ErrVersionConflict }

// TransientError wraps network or timeout failures.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient_failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Is(target error) bool { return target == ErrTransient }

// Fatal marks err as unrecoverable for the current operation.
func Fatal(err error) error {
	return fmt.Errorf("%w: %w", ErrFatal, err)
}
