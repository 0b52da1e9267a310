package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"nameaffirm/internal/verifiedname/metrics"
	"nameaffirm/internal/verifiedname/models"
	id "nameaffirm/pkg/domain"
	dErrors "nameaffirm/pkg/domain-errors"
)

type ProctoringReconcilerSuite struct {
	suite.Suite
	f *fixture
	r *ProctoringReconciler
}

func TestProctoringReconcilerSuite(t *testing.T) {
	suite.Run(t, new(ProctoringReconcilerSuite))
}

func (s *ProctoringReconcilerSuite) SetupTest() {
	s.f = newFixture()
	s.f.addUser(1)
	s.r = NewProctoring(s.f.tx, s.f.users, s.f.opts...)
}

// reviewable is a proctored exam on a backend without onboarding.
func reviewable(status string) models.ProctoringEvent {
	return models.ProctoringEvent{
		AttemptID:   3,
		UserID:      1,
		Status:      status,
		FullName:    "Jane Doe",
		ProfileName: "Jane",
		IsProctored: true,
	}
}

func (s *ProctoringReconcilerSuite) TestTimedExamIsIgnored() {
	ev := reviewable("verified")
	ev.IsProctored = false

	s.Require().NoError(s.r.Apply(at(0), ev))
	s.Empty(s.f.list(1))
	s.Equal(1.0, testutil.ToFloat64(s.f.metrics.EventsProcessed.WithLabelValues(metrics.SourceProctoring, metrics.OutcomeIrrelevant)))
}

func (s *ProctoringReconcilerSuite) TestProctoredExamOnOnboardingBackendIsIgnored() {
	ev := reviewable("verified")
	ev.BackendSupportsOnboarding = true

	s.Require().NoError(s.r.Apply(at(0), ev))
	s.Empty(s.f.list(1))
}

func (s *ProctoringReconcilerSuite) TestOnboardingExamCreatesRecord() {
	ev := reviewable("submitted")
	ev.IsPracticeExam = true
	ev.BackendSupportsOnboarding = true

	s.Require().NoError(s.r.Apply(at(0), ev))

	recs := s.f.list(1)
	s.Require().Len(recs, 1)
	s.Equal("Jane Doe", recs[0].VerifiedName)
	s.Equal("Jane", *recs[0].ProfileName)
	s.Equal(id.AttemptID(3), *recs[0].ProctoredExamAttemptID)
	s.Nil(recs[0].VerificationAttemptID)
	s.Equal(models.StatusSubmitted, recs[0].Status)
}

func (s *ProctoringReconcilerSuite) TestAlreadyApprovedIsNoop() {
	for _, status := range []string{"submitted", "verified", "rejected", "error", "started"} {
		s.Run(status, func() {
			s.SetupTest()
			approved := record(1, "Jane Doe", 0, withStatus(models.StatusApproved))
			s.f.seed(approved)

			s.Require().NoError(s.r.Apply(at(time.Minute), reviewable(status)))

			recs := s.f.list(1)
			s.Require().Len(recs, 1)
			s.Equal(models.StatusApproved, recs[0].Status)
			s.Zero(testutil.ToFloat64(s.f.metrics.NameMismatches))
		})
	}
}

func (s *ProctoringReconcilerSuite) TestApprovedNameMismatchIsLoggedOnly() {
	s.f.seed(record(1, "Jane Doe", 0, withStatus(models.StatusApproved)))
	ev := reviewable("rejected")
	ev.FullName = "Someone Else"

	s.Require().NoError(s.r.Apply(at(time.Minute), ev))

	s.Len(s.f.list(1), 1)
	s.Equal(1.0, testutil.ToFloat64(s.f.metrics.NameMismatches))
	s.Empty(s.f.notifier.all())
}

func (s *ProctoringReconcilerSuite) TestLegacyVerifiedFlagDoesNotShortCircuit() {
	s.f.seed(record(1, "Jane Doe", 0, func(r *models.VerifiedName) { r.IsVerified = true }))

	s.Require().NoError(s.r.Apply(at(time.Minute), reviewable("submitted")))
	s.Len(s.f.list(1), 2)
}

func (s *ProctoringReconcilerSuite) TestCreatesOnlyWithBothNames() {
	cases := map[string]func(*models.ProctoringEvent){
		"missing full name":    func(e *models.ProctoringEvent) { e.FullName = "" },
		"missing profile name": func(e *models.ProctoringEvent) { e.ProfileName = "" },
	}
	for name, mutate := range cases {
		s.Run(name, func() {
			s.SetupTest()
			ev := reviewable("submitted")
			mutate(&ev)

			s.Require().NoError(s.r.Apply(at(0), ev))
			s.Empty(s.f.list(1))
			s.Equal(1.0, testutil.ToFloat64(s.f.metrics.EventsProcessed.WithLabelValues(metrics.SourceProctoring, metrics.OutcomeIncomplete)))
		})
	}
}

func (s *ProctoringReconcilerSuite) TestUpdatesExistingAttemptRecord() {
	existing := record(1, "Jane Doe", 0, withExamAttempt(3), withStatus(models.StatusSubmitted))
	s.f.seed(existing)

	s.Require().NoError(s.r.Apply(at(time.Minute), reviewable("verified")))

	recs := s.f.list(1)
	s.Require().Len(recs, 1)
	s.Equal(models.StatusApproved, recs[0].Status)
	s.Equal(1.0, testutil.ToFloat64(s.f.metrics.StatusTransitions.WithLabelValues(metrics.SourceProctoring, "approved")))

	changes := s.f.notifier.all()
	s.Require().Len(changes, 1)
	s.Equal(existing.ID, changes[0].Record.ID)
}

func (s *ProctoringReconcilerSuite) TestNoTransitionStatusLeavesRecord() {
	s.f.seed(record(1, "Jane Doe", 0, withExamAttempt(3), withStatus(models.StatusSubmitted)))

	s.Require().NoError(s.r.Apply(at(time.Minute), reviewable("second_review_required")))

	recs := s.f.list(1)
	s.Require().Len(recs, 1)
	s.Equal(models.StatusSubmitted, recs[0].Status)
	s.Empty(s.f.notifier.all())
}

func (s *ProctoringReconcilerSuite) TestErrorMapsToDenied() {
	s.Require().NoError(s.r.Apply(at(0), reviewable("error")))

	recs := s.f.list(1)
	s.Require().Len(recs, 1)
	s.Equal(models.StatusDenied, recs[0].Status)
}

func (s *ProctoringReconcilerSuite) TestStaleStatusSkipped() {
	s.f.seed(record(1, "Jane Doe", 0, withExamAttempt(3), withStatus(models.StatusDenied)))

	s.Require().NoError(s.r.Apply(at(time.Minute), reviewable("submitted")))
	s.Equal(models.StatusDenied, s.f.list(1)[0].Status)
	s.Equal(1.0, testutil.ToFloat64(s.f.metrics.StaleTransitions.WithLabelValues(metrics.SourceProctoring)))
}

func (s *ProctoringReconcilerSuite) TestRedeliveryIsIdempotent() {
	s.Require().NoError(s.r.Apply(at(0), reviewable("submitted")))
	s.Require().NoError(s.r.Apply(at(time.Second), reviewable("submitted")))
	s.Len(s.f.list(1), 1)
}

func (s *ProctoringReconcilerSuite) TestRejectsNonPositiveIDs() {
	cases := map[string]func(*models.ProctoringEvent){
		"zero user":        func(e *models.ProctoringEvent) { e.UserID = 0 },
		"negative user":    func(e *models.ProctoringEvent) { e.UserID = -1 },
		"negative attempt": func(e *models.ProctoringEvent) { e.AttemptID = -3 },
	}
	for name, mutate := range cases {
		s.Run(name, func() {
			ev := reviewable("submitted")
			mutate(&ev)

			err := s.r.Apply(at(0), ev)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
	s.Empty(s.f.list(1))
}

func (s *ProctoringReconcilerSuite) TestUnknownUserIsRetryable() {
	ev := reviewable("submitted")
	ev.UserID = 404

	err := s.r.Apply(at(0), ev)
	var notFound *models.UserNotFoundError
	s.True(errors.As(err, &notFound))
}

func (s *ProctoringReconcilerSuite) TestLostCreateRaceUpdatesWinner() {
	competitor := record(1, "Jane Doe", 0, withExamAttempt(3))
	tx := racingTx{records: &racingRecords{Records: s.f.records, competitor: competitor}}
	r := NewProctoring(tx, s.f.users, s.f.opts...)

	s.Require().NoError(r.Apply(at(time.Minute), reviewable("rejected")))

	recs := s.f.list(1)
	s.Require().Len(recs, 1)
	s.Equal(competitor.ID, recs[0].ID)
	s.Equal(models.StatusDenied, recs[0].Status)
}
