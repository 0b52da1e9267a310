// Package store persists verified-name records and per-user configs.
//
// Two implementations share one contract: InMemory for local runs and tests,
// PostgresStore for production. Both return sentinel errors, never domain
// errors; callers translate.
package store

import (
	"context"
	"time"

	"nameaffirm/internal/verifiedname/models"
	id "nameaffirm/pkg/domain"
)

// Records is the record-store contract reconcilers and the service rely on.
type Records interface {
	// Create inserts rec. A second record for the same proctored attempt
	// fails with sentinel.ErrConflict.
	Create(ctx context.Context, rec *models.VerifiedName) error
	// CreateIfAbsent inserts rec unless a record matches guard, in which case
	// it returns sentinel.ErrConflict and writes nothing.
	CreateIfAbsent(ctx context.Context, rec *models.VerifiedName, guard Filter) error
	// List returns every match, newest first.
	List(ctx context.Context, f Filter) ([]*models.VerifiedName, error)
	// FindMostRecent returns the newest match or sentinel.ErrNotFound.
	FindMostRecent(ctx context.Context, f Filter) (*models.VerifiedName, error)
	// LinkVerificationAttempt sets verification_attempt_id on every match
	// that references no attempt yet and reports how many changed.
	LinkVerificationAttempt(ctx context.Context, f Filter, attemptID id.AttemptID, now time.Time) (int, error)
	// Update persists the mutable fields of rec: status, is_verified, attempt
	// references and modified.
	Update(ctx context.Context, rec *models.VerifiedName) error
}

// Configs persists the append-only per-user config history.
type Configs interface {
	SaveConfig(ctx context.Context, cfg *models.Config) error
	// CurrentConfig returns the newest config or sentinel.ErrNotFound.
	CurrentConfig(ctx context.Context, userID id.UserID) (*models.Config, error)
}

// Tx runs fn inside a boundary that serializes work on one user's records.
// The Records handed to fn must be used instead of any outer store.
type Tx interface {
	RunInTx(ctx context.Context, userID id.UserID, fn func(ctx context.Context, records Records) error) error
}
