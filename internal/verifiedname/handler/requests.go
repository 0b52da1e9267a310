package handler

import (
	"strconv"
	"strings"

	"nameaffirm/internal/verifiedname/models"
	id "nameaffirm/pkg/domain"
	dErrors "nameaffirm/pkg/domain-errors"
)

const maxNameLength = 255

// CreateRequest is the HTTP request body for POST /verified_name.
type CreateRequest struct {
	Username               string `json:"username"`
	VerifiedName           string `json:"verified_name"`
	ProfileName            string `json:"profile_name"`
	VerificationAttemptID  *int64 `json:"verification_attempt_id"`
	ProctoredExamAttemptID *int64 `json:"proctored_exam_attempt_id"`
	IsVerified             bool   `json:"is_verified"`
}

// Validate implements httputil.Validatable.
func (r *CreateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.Username = strings.TrimSpace(r.Username)
	r.VerifiedName = strings.TrimSpace(r.VerifiedName)
	r.ProfileName = strings.TrimSpace(r.ProfileName)

	if r.VerifiedName == "" {
		return &models.EmptyNameError{Field: models.FieldVerifiedName}
	}
	if r.ProfileName == "" {
		return &models.EmptyNameError{Field: models.FieldProfileName}
	}
	if len(r.VerifiedName) > maxNameLength || len(r.ProfileName) > maxNameLength {
		return dErrors.New(dErrors.CodeValidation, "names must be at most 255 characters")
	}
	if r.VerificationAttemptID != nil && r.ProctoredExamAttemptID != nil {
		return &models.MultipleAttemptReferenceError{
			VerificationAttemptID:  id.AttemptID(*r.VerificationAttemptID),
			ProctoredExamAttemptID: id.AttemptID(*r.ProctoredExamAttemptID),
		}
	}
	if r.VerificationAttemptID != nil && *r.VerificationAttemptID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "verification_attempt_id must be positive")
	}
	if r.ProctoredExamAttemptID != nil && *r.ProctoredExamAttemptID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "proctored_exam_attempt_id must be positive")
	}
	return nil
}

func (r *CreateRequest) verificationAttempt() *id.AttemptID {
	if r.VerificationAttemptID == nil {
		return nil
	}
	return models.AttemptPtr(id.AttemptID(*r.VerificationAttemptID))
}

func (r *CreateRequest) proctoredAttempt() *id.AttemptID {
	if r.ProctoredExamAttemptID == nil {
		return nil
	}
	return models.AttemptPtr(id.AttemptID(*r.ProctoredExamAttemptID))
}

// UpdateConfigRequest is the HTTP request body for POST /verified_name/config.
type UpdateConfigRequest struct {
	Username                string `json:"username"`
	UseVerifiedNameForCerts *bool  `json:"use_verified_name_for_certs"`
}

// Validate implements httputil.Validatable.
func (r *UpdateConfigRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Username = strings.TrimSpace(r.Username)
	if r.UseVerifiedNameForCerts == nil {
		return dErrors.New(dErrors.CodeValidation, "use_verified_name_for_certs is required")
	}
	return nil
}

// parseRequireVerified reads the require_verified query flag, true when absent.
func parseRequireVerified(raw string) (bool, error) {
	if raw == "" {
		return true, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, dErrors.New(dErrors.CodeBadRequest, "require_verified must be a boolean")
	}
	return v, nil
}
