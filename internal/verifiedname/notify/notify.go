// Package notify delivers verified-name change notifications to downstream
// consumers. Every record write produces exactly one notification.
package notify

import (
	"encoding/json"
	"time"

	"nameaffirm/internal/verifiedname/models"
	id "nameaffirm/pkg/domain"
)

// EventType is the type header carried by every notification.
const EventType = "verified_name_changed"

// Payload is the wire shape of a change notification.
type Payload struct {
	Event                  string            `json:"event"`
	Kind                   models.ChangeKind `json:"kind"`
	UserID                 id.UserID         `json:"user_id"`
	VerifiedNameID         id.VerifiedNameID `json:"verified_name_id"`
	VerifiedName           string            `json:"verified_name"`
	ProfileName            *string           `json:"profile_name"`
	VerificationAttemptID  *id.AttemptID     `json:"verification_attempt_id"`
	ProctoredExamAttemptID *id.AttemptID     `json:"proctored_exam_attempt_id"`
	Status                 models.Status     `json:"status"`
	PreviousStatus         models.Status     `json:"previous_status,omitempty"`
	IsVerified             bool              `json:"is_verified"`
	OccurredAt             time.Time         `json:"occurred_at"`
}

// NewPayload flattens a change for the wire.
func NewPayload(c models.Change) Payload {
	rec := c.Record
	return Payload{
		Event:                  EventType,
		Kind:                   c.Kind,
		UserID:                 rec.UserID,
		VerifiedNameID:         rec.ID,
		VerifiedName:           rec.VerifiedName,
		ProfileName:            rec.ProfileName,
		VerificationAttemptID:  rec.VerificationAttemptID,
		ProctoredExamAttemptID: rec.ProctoredExamAttemptID,
		Status:                 rec.Status,
		PreviousStatus:         c.PrevStatus,
		IsVerified:             rec.IsVerified,
		OccurredAt:             c.At,
	}
}

// Encode returns the partition key (the user id, so a user's changes stay
// ordered) and the JSON body.
func Encode(c models.Change) (key, value []byte, err error) {
	value, err = json.Marshal(NewPayload(c))
	if err != nil {
		return nil, nil, err
	}
	return []byte(c.Record.UserID.String()), value, nil
}
