package models

import (
	"strings"
	"time"

	id "nameaffirm/pkg/domain"
	dErrors "nameaffirm/pkg/domain-errors"
)

// VerifiedName is one entry in a user's append-only verified-name history.
//
// Invariants:
//   - VerifiedName is non-empty and never changes after construction
//   - ProfileName, when present, is non-empty
//   - At most one of VerificationAttemptID and ProctoredExamAttemptID is set
//   - Status only moves forward (see Status.CanTransitionTo)
//
// IsVerified is the legacy flag kept for older readers. Status is authoritative.
type VerifiedName struct {
	ID                     id.VerifiedNameID `json:"id"`
	UserID                 id.UserID         `json:"user_id"`
	VerifiedName           string            `json:"verified_name"`
	ProfileName            *string           `json:"profile_name"`
	VerificationAttemptID  *id.AttemptID     `json:"verification_attempt_id"`
	ProctoredExamAttemptID *id.AttemptID     `json:"proctored_exam_attempt_id"`
	Status                 Status            `json:"status"`
	IsVerified             bool              `json:"is_verified"`
	Created                time.Time         `json:"created"`
	Modified               time.Time         `json:"modified"`
}

// NewVerifiedNameParams collects the creation inputs for NewVerifiedName.
type NewVerifiedNameParams struct {
	UserID                 id.UserID
	VerifiedName           string
	ProfileName            *string
	VerificationAttemptID  *id.AttemptID
	ProctoredExamAttemptID *id.AttemptID
	Status                 Status
	IsVerified             bool
}

// NewVerifiedName validates params and builds a record stamped with now.
// An empty Status means pending.
func NewVerifiedName(recordID id.VerifiedNameID, p NewVerifiedNameParams, now time.Time) (*VerifiedName, error) {
	if p.UserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user_id is required")
	}
	if strings.TrimSpace(p.VerifiedName) == "" {
		return nil, &EmptyNameError{Field: FieldVerifiedName}
	}
	if p.ProfileName != nil && strings.TrimSpace(*p.ProfileName) == "" {
		return nil, &EmptyNameError{Field: FieldProfileName}
	}
	if p.VerificationAttemptID != nil && p.ProctoredExamAttemptID != nil {
		return nil, &MultipleAttemptReferenceError{
			VerificationAttemptID:  *p.VerificationAttemptID,
			ProctoredExamAttemptID: *p.ProctoredExamAttemptID,
		}
	}
	status := p.Status
	if status == "" {
		status = StatusPending
	}
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid status")
	}

	return &VerifiedName{
		ID:                     recordID,
		UserID:                 p.UserID,
		VerifiedName:           p.VerifiedName,
		ProfileName:            p.ProfileName,
		VerificationAttemptID:  p.VerificationAttemptID,
		ProctoredExamAttemptID: p.ProctoredExamAttemptID,
		Status:                 status,
		IsVerified:             p.IsVerified,
		Created:                now,
		Modified:               now,
	}, nil
}

// IsApproved reports whether the record counts as verified. Legacy rows may
// carry only the IsVerified flag.
func (v *VerifiedName) IsApproved() bool {
	return v.Status == StatusApproved || v.IsVerified
}

// HasAttemptReference reports whether either attempt id is set.
func (v *VerifiedName) HasAttemptReference() bool {
	return v.VerificationAttemptID != nil || v.ProctoredExamAttemptID != nil
}

// CanApplyStatus checks a status change against the forward-only lifecycle.
func (v *VerifiedName) CanApplyStatus(next Status) error {
	if !v.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"status cannot move from "+v.Status.String()+" to "+next.String())
	}
	return nil
}

// ApplyStatus sets the status and bumps Modified. Call CanApplyStatus first.
func (v *VerifiedName) ApplyStatus(next Status, now time.Time) {
	v.Status = next
	v.Modified = now
}

// LinkVerificationAttempt back-fills the attempt id on an unlinked record.
func (v *VerifiedName) LinkVerificationAttempt(attemptID id.AttemptID, now time.Time) error {
	if v.HasAttemptReference() {
		return dErrors.New(dErrors.CodeInvariantViolation, "record already references an attempt")
	}
	a := attemptID
	v.VerificationAttemptID = &a
	v.Modified = now
	return nil
}

// Clone returns a deep copy so stores never share pointers with callers.
func (v *VerifiedName) Clone() *VerifiedName {
	if v == nil {
		return nil
	}
	c := *v
	if v.ProfileName != nil {
		p := *v.ProfileName
		c.ProfileName = &p
	}
	if v.VerificationAttemptID != nil {
		a := *v.VerificationAttemptID
		c.VerificationAttemptID = &a
	}
	if v.ProctoredExamAttemptID != nil {
		a := *v.ProctoredExamAttemptID
		c.ProctoredExamAttemptID = &a
	}
	return &c
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// AttemptPtr returns a pointer to a copy of a.
func AttemptPtr(a id.AttemptID) *id.AttemptID {
	return &a
}
