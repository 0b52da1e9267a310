package handler

import (
	"time"

	usermodels "nameaffirm/internal/users/models"
	"nameaffirm/internal/verifiedname/models"
	id "nameaffirm/pkg/domain"
)

// UserResponse is the nested user in a verified-name response.
type UserResponse struct {
	ID       id.UserID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

// VerifiedNameResponse is one record as returned by the API.
type VerifiedNameResponse struct {
	ID                     id.VerifiedNameID `json:"id"`
	Created                time.Time         `json:"created"`
	Modified               time.Time         `json:"modified"`
	User                   UserResponse      `json:"user"`
	VerifiedName           string            `json:"verified_name"`
	ProfileName            *string           `json:"profile_name"`
	VerificationAttemptID  *id.AttemptID     `json:"verification_attempt_id"`
	ProctoredExamAttemptID *id.AttemptID     `json:"proctored_exam_attempt_id"`
	IsVerified             bool              `json:"is_verified"`
	Status                 models.Status     `json:"status"`
}

// HistoryResponse is returned by GET /verified_name/history.
type HistoryResponse struct {
	UseVerifiedNameForCerts bool                   `json:"use_verified_name_for_certs"`
	Results                 []VerifiedNameResponse `json:"results"`
}

// ConfigResponse is returned by the config endpoints.
type ConfigResponse struct {
	Username                string     `json:"username"`
	UseVerifiedNameForCerts bool       `json:"use_verified_name_for_certs"`
	Modified                *time.Time `json:"modified"`
}

// FromRecord converts a record and its owner into a response.
func FromRecord(rec *models.VerifiedName, u *usermodels.User) VerifiedNameResponse {
	return VerifiedNameResponse{
		ID:       rec.ID,
		Created:  rec.Created,
		Modified: rec.Modified,
		User: UserResponse{
			ID:       u.ID,
			Username: u.Username,
			Email:    u.Email,
		},
		VerifiedName:           rec.VerifiedName,
		ProfileName:            rec.ProfileName,
		VerificationAttemptID:  rec.VerificationAttemptID,
		ProctoredExamAttemptID: rec.ProctoredExamAttemptID,
		IsVerified:             rec.IsVerified,
		Status:                 rec.Status,
	}
}

// FromHistory converts a user's records, newest first.
func FromHistory(recs []*models.VerifiedName, u *usermodels.User, cfg *models.Config) HistoryResponse {
	out := HistoryResponse{
		UseVerifiedNameForCerts: cfg.UseVerifiedNameForCerts,
		Results:                 make([]VerifiedNameResponse, 0, len(recs)),
	}
	for _, rec := range recs {
		out.Results = append(out.Results, FromRecord(rec, u))
	}
	return out
}

// FromConfig converts a config. A config never saved has no modified time.
func FromConfig(cfg *models.Config, u *usermodels.User) ConfigResponse {
	resp := ConfigResponse{
		Username:                u.Username,
		UseVerifiedNameForCerts: cfg.UseVerifiedNameForCerts,
	}
	if !cfg.Created.IsZero() {
		modified := cfg.Created
		resp.Modified = &modified
	}
	return resp
}
