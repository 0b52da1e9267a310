package models

import (
	"strings"

	dErrors "nameaffirm/pkg/domain-errors"
)

// Status is the lifecycle state of a verified-name record.
//
// Transitions only move forward:
//
//	pending -> submitted -> approved | denied
//
// approved and denied share a rank, so an authority may overturn its own
// decision, but nothing returns to submitted or pending.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
)

var statusRank = map[Status]int{
	StatusPending:   0,
	StatusSubmitted: 1,
	StatusApproved:  2,
	StatusDenied:    2,
}

func (s Status) String() string {
	return string(s)
}

func (s Status) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle
// moving forward. Re-applying the current status is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to >= from
}

// ParseStatus parses a canonical status name, as stored in the status column.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid status: "+raw)
	}
	return s, nil
}

// idvStatuses is the identity-verification vocabulary. A zero Status marks a
// known status that carries no transition.
var idvStatuses = map[string]Status{
	"created":    "",
	"ready":      "",
	"must_retry": "",
	"submitted":  StatusSubmitted,
	"approved":   StatusApproved,
	"denied":     StatusDenied,
}

// proctoringStatuses is the proctored-exam attempt vocabulary.
var proctoringStatuses = map[string]Status{
	"eligible":                  "",
	"created":                   "",
	"download_software_clicked": "",
	"ready_to_start":            "",
	"started":                   "",
	"ready_to_submit":           "",
	"declined":                  "",
	"timed_out":                 "",
	"second_review_required":    "",
	"expired":                   "",
	"onboarding_missing":        "",
	"onboarding_pending":        "",
	"onboarding_failed":         "",
	"onboarding_expired":        "",
	"submitted":                 StatusSubmitted,
	"verified":                  StatusApproved,
	"rejected":                  StatusDenied,
	"error":                     StatusDenied,
}

// StatusFromIDV maps an identity-verification attempt status onto a
// transition target. ok is false when the status carries no transition,
// including statuses outside the known vocabulary.
func StatusFromIDV(raw string) (Status, bool) {
	return lookup(idvStatuses, raw)
}

// StatusFromProctoring maps a proctored-exam attempt status onto a
// transition target.
func StatusFromProctoring(raw string) (Status, bool) {
	return lookup(proctoringStatuses, raw)
}

// IsKnownIDVStatus reports whether raw belongs to the identity-verification vocabulary.
func IsKnownIDVStatus(raw string) bool {
	_, ok := idvStatuses[normalizeRaw(raw)]
	return ok
}

// IsKnownProctoringStatus reports whether raw belongs to the proctoring vocabulary.
func IsKnownProctoringStatus(raw string) bool {
	_, ok := proctoringStatuses[normalizeRaw(raw)]
	return ok
}

func lookup(table map[string]Status, raw string) (Status, bool) {
	s, ok := table[normalizeRaw(raw)]
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func normalizeRaw(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
