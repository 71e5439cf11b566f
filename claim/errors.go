/*
errors.go - Error taxonomy for the claim workflow

PURPOSE:
  Every failure a workflow operation can report, in one place. Domain
  failures (validation, checklist, finalized) carry a message that is safe
  to show to the user verbatim. Infrastructure failures are logged and
  replaced by ErrOperationFailed before they reach a caller.

ERROR CATEGORIES:
  1. Validation errors - Bad or missing input
  2. State errors - Finalized claims, out-of-order stages, wrong action
  3. Lookup errors - Missing claim, interest, user, batch
  4. Infrastructure errors - Upload, storage, concurrency

USAGE:
    if errors.Is(err, claim.ErrIncompleteChecklist) {
        var ice *claim.IncompleteChecklistError
        errors.As(err, &ice)
        // ice.Missing lists the unverified fields
    }

SEE ALSO:
  - stage.go: Raises validation and state errors
  - workflow.go: Converts infrastructure failures to ErrOperationFailed
  - api/handlers.go: Maps the taxonomy to HTTP status codes
*/
package claim

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the category every ValidationError unwraps to.
	ErrValidation = errors.New("validation error")

	ErrIncompleteChecklist = errors.New("incomplete checklist")

	ErrClaimAlreadyFinalized = errors.New("claim already finalized")

	// ErrNotFound covers absent claims, interests, users and batches.
	ErrNotFound = errors.New("not found")

	ErrDuplicateRegistration = errors.New("duplicate registration")

	ErrUploadFailure = errors.New("file upload failed")

	// ErrConcurrentModification is returned when a claim changed between
	// read and write. The caller should reload and retry.
	ErrConcurrentModification = errors.New("claim was modified concurrently, reload and try again")

	// ErrStageOutOfOrder is returned when stage n is written before stage n-1.
	ErrStageOutOfOrder = errors.New("stage out of order")

	// ErrActionNotAllowed is returned when a stage kind does not accept the action.
	ErrActionNotAllowed = errors.New("action not allowed at this stage")

	// ErrForbidden is returned when a user edits a claim they do not own.
	ErrForbidden = errors.New("forbidden")

	// ErrOperationFailed is the only message a caller sees for infrastructure failures.
	ErrOperationFailed = errors.New("operation failed, please try again")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports bad or missing input on a named field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Pre-built validation errors. Compare with errors.Is.
var (
	ErrMissingRejectionReason = &ValidationError{Field: "comments", Message: "a reason is required to reject a claim"}
	ErrMissingAmount          = &ValidationError{Field: "amount", Message: "an approved amount of zero or more is required"}
	ErrMissingClaimType       = &ValidationError{Field: "claimType", Message: "claim type is required"}
)

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IncompleteChecklistError lists the applicable fields the approver did not verify.
type IncompleteChecklistError struct {
	Missing []string
}

func (e *IncompleteChecklistError) Error() string {
	return fmt.Sprintf("incomplete checklist: verify %s", strings.Join(e.Missing, ", "))
}

func (e *IncompleteChecklistError) Unwrap() error {
	return ErrIncompleteChecklist
}

// FinalizedError reports an action on a claim whose workflow is closed.
type FinalizedError struct {
	ClaimID string
	Status  Status
}

func (e *FinalizedError) Error() string {
	return fmt.Sprintf("claim %s is already %s", e.ClaimID, e.Status)
}

func (e *FinalizedError) Unwrap() error {
	return ErrClaimAlreadyFinalized
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string // "claim", "interest", "user", "batch", "call"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// DuplicateRegistrationError reports a second registration for the same call.
type DuplicateRegistrationError struct {
	UserID string
	CallID string
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("user %s has already registered interest for call %s", e.UserID, e.CallID)
}

func (e *DuplicateRegistrationError) Unwrap() error {
	return ErrDuplicateRegistration
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrOperationFailed)
}

// IsClientError returns true if the error is due to invalid client input or state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrIncompleteChecklist) ||
		errors.Is(err, ErrClaimAlreadyFinalized) ||
		errors.Is(err, ErrDuplicateRegistration) ||
		errors.Is(err, ErrStageOutOfOrder) ||
		errors.Is(err, ErrActionNotAllowed)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for state conflicts a reload can resolve.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrClaimAlreadyFinalized) ||
		errors.Is(err, ErrDuplicateRegistration)
}
