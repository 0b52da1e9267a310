package models

import (
	id "nameaffirm/pkg/domain"
)

// User is the slice of the platform's account record this service reads.
// Accounts are owned elsewhere; this service never writes them outside seeding.
type User struct {
	ID       id.UserID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	IsStaff  bool      `json:"is_staff"`
}
