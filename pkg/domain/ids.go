// Package domain holds the typed identifiers shared across modules.
//
// User and attempt ids originate in external systems (the learning platform,
// the IDV and proctoring workflows) and are positive integers. Verified-name
// record ids are minted here as time-ordered UUIDs so that id order agrees
// with creation order.
package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	dErrors "nameaffirm/pkg/domain-errors"
)

// UserID references a user owned by the learning platform.
type UserID int64

// AttemptID references an identity-verification or proctored-exam attempt.
type AttemptID int64

// VerifiedNameID identifies a verified-name record.
type VerifiedNameID uuid.UUID

// maxIntIDLength bounds parsing input; int64 has at most 19 digits.
const maxIntIDLength = 19

func (u UserID) String() string    { return strconv.FormatInt(int64(u), 10) }
func (u UserID) IsNil() bool       { return u <= 0 }
func (a AttemptID) String() string { return strconv.FormatInt(int64(a), 10) }
func (a AttemptID) IsNil() bool    { return a <= 0 }

func (v VerifiedNameID) String() string { return uuid.UUID(v).String() }
func (v VerifiedNameID) IsNil() bool    { return uuid.UUID(v) == uuid.Nil }

func (v VerifiedNameID) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *VerifiedNameID) UnmarshalText(b []byte) error {
	parsed, err := ParseVerifiedNameID(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// NewVerifiedNameID mints a UUIDv7 so ids sort by creation time.
func NewVerifiedNameID() VerifiedNameID {
	return VerifiedNameID(uuid.Must(uuid.NewV7()))
}

// ParseUserID parses a positive decimal user id.
func ParseUserID(s string) (UserID, error) {
	v, err := parsePositiveInt(s, "user_id")
	if err != nil {
		return 0, err
	}
	return UserID(v), nil
}

// ParseAttemptID parses a positive decimal attempt id.
func ParseAttemptID(s string) (AttemptID, error) {
	v, err := parsePositiveInt(s, "attempt_id")
	if err != nil {
		return 0, err
	}
	return AttemptID(v), nil
}

// ParseVerifiedNameID parses a non-nil UUID.
func ParseVerifiedNameID(s string) (VerifiedNameID, error) {
	if s == "" {
		return VerifiedNameID{}, dErrors.New(dErrors.CodeInvalidInput, "verified name id is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return VerifiedNameID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid verified name id")
	}
	if parsed == uuid.Nil {
		return VerifiedNameID{}, dErrors.New(dErrors.CodeInvalidInput, "verified name id cannot be nil")
	}
	return VerifiedNameID(parsed), nil
}

func parsePositiveInt(s, field string) (int64, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	if len(s) > maxIntIDLength || strings.TrimSpace(s) != s {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+field)
	}
	if v <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, field+" must be positive")
	}
	return v, nil
}
