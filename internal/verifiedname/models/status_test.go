package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusFromIDV(t *testing.T) {
	tests := []struct {
		raw    string
		want   Status
		wantOK bool
	}{
		{"submitted", StatusSubmitted, true},
		{"approved", StatusApproved, true},
		{"denied", StatusDenied, true},
		{" APPROVED ", StatusApproved, true},
		{"created", "", false},
		{"ready", "", false},
		{"must_retry", "", false},
		{"exploded", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := StatusFromIDV(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusFromProctoring(t *testing.T) {
	tests := []struct {
		raw    string
		want   Status
		wantOK bool
	}{
		{"submitted", StatusSubmitted, true},
		{"verified", StatusApproved, true},
		{"rejected", StatusDenied, true},
		{"error", StatusDenied, true},
		{"approved", "", false},
		{"started", "", false},
		{"second_review_required", "", false},
		{"onboarding_expired", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := StatusFromProctoring(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKnownVocabulary(t *testing.T) {
	assert.True(t, IsKnownIDVStatus("must_retry"))
	assert.False(t, IsKnownIDVStatus("verified"))
	assert.True(t, IsKnownProctoringStatus("download_software_clicked"))
	assert.False(t, IsKnownProctoringStatus("approved"))
}

func TestStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusSubmitted, true},
		{StatusPending, StatusApproved, true},
		{StatusSubmitted, StatusDenied, true},
		{StatusSubmitted, StatusSubmitted, true},
		{StatusApproved, StatusDenied, true},
		{StatusDenied, StatusApproved, true},
		{StatusApproved, StatusSubmitted, false},
		{StatusDenied, StatusPending, false},
		{StatusSubmitted, StatusPending, false},
		{Status("bogus"), StatusApproved, false},
		{StatusPending, Status("bogus"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Approved ")
	assert.NoError(t, err)
	assert.Equal(t, StatusApproved, s)

	_, err = ParseStatus("verified")
	assert.Error(t, err)
}
