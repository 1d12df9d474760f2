package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrPendingApproval blocks login for accounts awaiting an admin decision.
	ErrPendingApproval = errors.New("Your account is pending approval by admin. Please wait for approval.")
	// ErrRejected blocks login for accounts an admin rejected.
	ErrRejected = errors.New("Your account has been rejected by admin.")
	// ErrUnauthorized indicates a missing or expired session.
	ErrUnauthorized = errors.New("authentication required")
	// ErrForbidden indicates the actor's role does not permit the action.
	ErrForbidden = errors.New("not permitted")
	// ErrValidation is the root of every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition indicates a state change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrConflict is the root of every ConflictError.
	ErrConflict = errors.New("conflict")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// ValidationError reports malformed input caught before any store call.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConflictError reports a request that clashes with current stored state.
type ConflictError struct {
	Message string
}

// NewConflict builds a ConflictError with a user facing message.
func NewConflict(message string) *ConflictError {
	return &ConflictError{Message: message}
}

func (e *ConflictError) Error() string {
	return e.Message
}

// Is lets errors.Is(err, ErrConflict) match any ConflictError.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// StoreError wraps a failure from the record store. Its message is the
// underlying message verbatim.
type StoreError struct {
	Op  string
	Err error
}

// WrapStore returns nil for nil errors and passes sentinel errors through.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) || errors.Is(err, ErrConflict) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// UserSafeMessage returns a message suitable for showing to end users.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Message
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict.Message
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Error()
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrPendingApproval),
		errors.Is(err, ErrRejected),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrDuplicate):
		return rootMessage(err)
	}
	return "Something went wrong"
}

// rootMessage strips "op: " prefixes added while wrapping sentinels.
func rootMessage(err error) string {
	for _, sentinel := range []error{
		ErrInvalidCredentials, ErrPendingApproval, ErrRejected, ErrUnauthorized,
		ErrForbidden, ErrNotFound, ErrInvalidTransition, ErrDuplicate,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return fmt.Sprint(err)
}
