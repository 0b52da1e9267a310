package store

import (
	"strconv"
	"strings"

	"nameaffirm/internal/verifiedname/models"
	id "nameaffirm/pkg/domain"
)

// Filter selects a user's records. Every query is scoped to one user; the
// zero value of each optional field means "any".
//
// All reads return records newest first: Created descending, then ID
// descending. IDs are time-ordered, so the tie-break agrees with insertion.
type Filter struct {
	UserID                 id.UserID
	VerifiedName           *string
	Status                 *models.Status
	VerificationAttemptID  *id.AttemptID
	ProctoredExamAttemptID *id.AttemptID
	// NoAttempt keeps records without either attempt reference.
	NoAttempt bool
	// NoProctoredAttempt keeps records without a proctored exam reference.
	NoProctoredAttempt bool
	// Verified keeps approved records, including legacy is_verified rows.
	Verified bool
}

// ForUser starts a filter scoped to userID.
func ForUser(userID id.UserID) Filter {
	return Filter{UserID: userID}
}

func (f Filter) WithVerifiedName(name string) Filter {
	f.VerifiedName = &name
	return f
}

func (f Filter) WithStatus(s models.Status) Filter {
	f.Status = &s
	return f
}

func (f Filter) WithVerificationAttempt(a id.AttemptID) Filter {
	f.VerificationAttemptID = &a
	return f
}

func (f Filter) WithProctoredAttempt(a id.AttemptID) Filter {
	f.ProctoredExamAttemptID = &a
	return f
}

func (f Filter) WithoutAttempt() Filter {
	f.NoAttempt = true
	return f
}

func (f Filter) WithoutProctoredAttempt() Filter {
	f.NoProctoredAttempt = true
	return f
}

func (f Filter) OnlyVerified() Filter {
	f.Verified = true
	return f
}

// Matches evaluates the filter in memory. The SQL rendering in where must agree.
func (f Filter) Matches(r *models.VerifiedName) bool {
	if r.UserID != f.UserID {
		return false
	}
	if f.VerifiedName != nil && r.VerifiedName != *f.VerifiedName {
		return false
	}
	if f.Status != nil && r.Status != *f.Status {
		return false
	}
	if f.VerificationAttemptID != nil &&
		(r.VerificationAttemptID == nil || *r.VerificationAttemptID != *f.VerificationAttemptID) {
		return false
	}
	if f.ProctoredExamAttemptID != nil &&
		(r.ProctoredExamAttemptID == nil || *r.ProctoredExamAttemptID != *f.ProctoredExamAttemptID) {
		return false
	}
	if f.NoAttempt && r.HasAttemptReference() {
		return false
	}
	if f.NoProctoredAttempt && r.ProctoredExamAttemptID != nil {
		return false
	}
	if f.Verified && !r.IsApproved() {
		return false
	}
	return true
}

// where renders the filter as a SQL predicate. Placeholders start at $start.
func (f Filter) where(start int) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, strings.Replace(clause, "?", "$"+strconv.Itoa(start+len(args)-1), 1))
	}

	add("user_id = ?", int64(f.UserID))
	if f.VerifiedName != nil {
		add("verified_name = ?", *f.VerifiedName)
	}
	if f.Status != nil {
		add("status = ?", string(*f.Status))
	}
	if f.VerificationAttemptID != nil {
		add("verification_attempt_id = ?", int64(*f.VerificationAttemptID))
	}
	if f.ProctoredExamAttemptID != nil {
		add("proctored_exam_attempt_id = ?", int64(*f.ProctoredExamAttemptID))
	}
	if f.NoAttempt {
		clauses = append(clauses, "verification_attempt_id IS NULL", "proctored_exam_attempt_id IS NULL")
	}
	if f.NoProctoredAttempt {
		clauses = append(clauses, "proctored_exam_attempt_id IS NULL")
	}
	if f.Verified {
		clauses = append(clauses, "(is_verified OR status = 'approved')")
	}
	return strings.Join(clauses, " AND "), args
}
