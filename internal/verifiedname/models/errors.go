package models

import (
	"fmt"

	id "nameaffirm/pkg/domain"
	dErrors "nameaffirm/pkg/domain-errors"
)

// Name fields reported by EmptyNameError.
const (
	FieldVerifiedName = "verified_name"
	FieldProfileName  = "profile_name"
)

// EmptyNameError rejects a creation whose name field is empty.
type EmptyNameError struct {
	Field string
}

func (e *EmptyNameError) Error() string {
	return fmt.Sprintf("%s must not be empty", e.Field)
}

func (e *EmptyNameError) Unwrap() error {
	return dErrors.New(dErrors.CodeValidation, e.Error())
}

// MultipleAttemptReferenceError rejects a record referencing both an
// identity-verification attempt and a proctored exam attempt.
type MultipleAttemptReferenceError struct {
	VerificationAttemptID  id.AttemptID
	ProctoredExamAttemptID id.AttemptID
}

func (e *MultipleAttemptReferenceError) Error() string {
	return fmt.Sprintf(
		"verification_attempt_id (%d) and proctored_exam_attempt_id (%d) are mutually exclusive",
		e.VerificationAttemptID, e.ProctoredExamAttemptID,
	)
}

func (e *MultipleAttemptReferenceError) Unwrap() error {
	return dErrors.New(dErrors.CodeValidation, "only one of verification_attempt_id or proctored_exam_attempt_id may be set")
}

// UserNotFoundError means an event referenced a user the directory does not
// know yet. Delivery should retry: the user row may not have propagated.
type UserNotFoundError struct {
	UserID id.UserID
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user %d not found", e.UserID)
}

func (e *UserNotFoundError) Unwrap() error {
	return dErrors.New(dErrors.CodeNotFound, "user not found")
}
