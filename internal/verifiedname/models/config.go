package models

import (
	"time"

	id "nameaffirm/pkg/domain"
)

// Config holds a user's verified-name preferences. Rows are append-only; the
// newest row is current.
type Config struct {
	UserID                  id.UserID `json:"user_id"`
	UseVerifiedNameForCerts bool      `json:"use_verified_name_for_certs"`
	ChangedBy               id.UserID `json:"changed_by"`
	Created                 time.Time `json:"created"`
}

// DefaultConfig is returned for users who never saved one.
func DefaultConfig(userID id.UserID) *Config {
	return &Config{UserID: userID}
}
