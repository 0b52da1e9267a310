package models

import (
	"strings"
	"time"

	id "nameaffirm/pkg/domain"
)

// IDVEvent reports a status change on an identity-verification attempt.
// PhotoIDName is the name read from the ID document; FullName is the profile
// name at submission time.
type IDVEvent struct {
	AttemptID   id.AttemptID
	UserID      id.UserID
	Status      string
	PhotoIDName string
	FullName    string
}

// ProctoringEvent reports a status change on a proctored exam attempt.
type ProctoringEvent struct {
	AttemptID                 id.AttemptID
	UserID                    id.UserID
	Status                    string
	FullName                  string
	ProfileName               string
	IsPracticeExam            bool
	IsProctored               bool
	BackendSupportsOnboarding bool
}

// IsOnboardingExam reports a practice exam run by a backend with onboarding.
func (e ProctoringEvent) IsOnboardingExam() bool {
	return e.IsPracticeExam && e.IsProctored && e.BackendSupportsOnboarding
}

// IsReviewableExam reports a real proctored exam whose backend has no
// onboarding flow, so its review outcome speaks to identity.
func (e ProctoringEvent) IsReviewableExam() bool {
	return e.IsProctored && !e.IsPracticeExam && !e.BackendSupportsOnboarding
}

// IsRelevant reports whether the event can carry an identity signal. Timed
// exams and proctored exams on onboarding backends cannot.
func (e ProctoringEvent) IsRelevant() bool {
	return e.IsOnboardingExam() || e.IsReviewableExam()
}

// HasNames reports whether both names needed to create a record are present.
func (e ProctoringEvent) HasNames() bool {
	return strings.TrimSpace(e.FullName) != "" && strings.TrimSpace(e.ProfileName) != ""
}

// ChangeKind describes what happened to a record.
type ChangeKind string

const (
	ChangeCreated       ChangeKind = "created"
	ChangeStatusUpdated ChangeKind = "status_updated"
)

// Change is emitted once per record write, after the enclosing transaction commits.
type Change struct {
	Kind       ChangeKind
	Record     *VerifiedName
	PrevStatus Status
	At         time.Time
}
