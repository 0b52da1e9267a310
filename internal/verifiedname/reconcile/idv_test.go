package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"nameaffirm/internal/verifiedname/metrics"
	"nameaffirm/internal/verifiedname/models"
	id "nameaffirm/pkg/domain"
	dErrors "nameaffirm/pkg/domain-errors"
)

type IDVReconcilerSuite struct {
	suite.Suite
	f *fixture
	r *IDVReconciler
}

func TestIDVReconcilerSuite(t *testing.T) {
	suite.Run(t, new(IDVReconcilerSuite))
}

func (s *IDVReconcilerSuite) SetupTest() {
	s.f = newFixture()
	s.f.addUser(1)
	s.r = NewIDV(s.f.tx, s.f.users, s.f.opts...)
}

func idvEvent(status string) models.IDVEvent {
	return models.IDVEvent{AttemptID: 1, UserID: 1, Status: status, PhotoIDName: "Jane Doe", FullName: "J. Doe"}
}

// TestSubmittedThenApproved walks the canonical two-event flow.
func (s *IDVReconcilerSuite) TestSubmittedThenApproved() {
	s.Require().NoError(s.r.Apply(at(0), idvEvent("submitted")))

	recs := s.f.list(1)
	s.Require().Len(recs, 1)
	s.Equal("Jane Doe", recs[0].VerifiedName)
	s.Equal("J. Doe", *recs[0].ProfileName)
	s.Equal(id.AttemptID(1), *recs[0].VerificationAttemptID)
	s.Equal(models.StatusSubmitted, recs[0].Status)

	s.Require().NoError(s.r.Apply(at(time.Minute), idvEvent("approved")))

	recs = s.f.list(1)
	s.Require().Len(recs, 1, "matched by verified name, no new record")
	s.Equal(models.StatusApproved, recs[0].Status)
	s.Equal(testNow.Add(time.Minute), recs[0].Modified)

	changes := s.f.notifier.all()
	s.Require().Len(changes, 2)
	s.Equal(models.ChangeCreated, changes[0].Kind)
	s.Equal(models.ChangeStatusUpdated, changes[1].Kind)
	s.Equal(models.StatusSubmitted, changes[1].PrevStatus)
}

func (s *IDVReconcilerSuite) TestRedeliveryIsIdempotent() {
	ev := idvEvent("submitted")
	s.Require().NoError(s.r.Apply(at(0), ev))
	s.Require().NoError(s.r.Apply(at(time.Second), ev))

	recs := s.f.list(1)
	s.Require().Len(recs, 1)
	s.Equal(models.StatusSubmitted, recs[0].Status)
}

func (s *IDVReconcilerSuite) TestConcurrentRedeliveryCreatesOneRecord() {
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.r.Apply(at(0), idvEvent("submitted"))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}
	s.Len(s.f.list(1), 1)
}

func (s *IDVReconcilerSuite) TestBackfillsAttemptOntoManualRecord() {
	manual := record(1, "Jane Doe", 0)
	s.f.seed(manual)

	s.Require().NoError(s.r.Apply(at(time.Minute), models.IDVEvent{
		AttemptID: 7, UserID: 1, Status: "ready", PhotoIDName: "Jane Doe", FullName: "Jane",
	}))

	recs := s.f.list(1)
	s.Require().Len(recs, 1, "backfilled rather than duplicated")
	s.Equal(manual.ID, recs[0].ID)
	s.Equal(id.AttemptID(7), *recs[0].VerificationAttemptID)
	s.Equal(models.StatusPending, recs[0].Status, "ready carries no transition")
	s.Empty(s.f.notifier.all(), "bulk linking does not notify")
}

func (s *IDVReconcilerSuite) TestUpdatesEveryLinkedRecordIndividually() {
	s.f.seed(record(1, "Jane Doe", 0))
	s.f.seed(record(1, "Jane Doe", time.Second))
	exam := record(1, "Jane Doe", 2*time.Second, withExamAttempt(3))
	s.f.seed(exam)
	other := record(1, "Jane Doe", 3*time.Second, withIDVAttempt(99))
	s.f.seed(other)

	s.Require().NoError(s.r.Apply(at(time.Hour), models.IDVEvent{
		AttemptID: 5, UserID: 1, Status: "approved", PhotoIDName: "Jane Doe",
	}))

	approved := 0
	for _, rec := range s.f.list(1) {
		switch rec.ID {
		case exam.ID, other.ID:
			s.Equal(models.StatusPending, rec.Status, "records tied to other attempts are untouched")
		default:
			s.Equal(id.AttemptID(5), *rec.VerificationAttemptID)
			s.Equal(models.StatusApproved, rec.Status)
			approved++
		}
	}
	s.Equal(2, approved)
	s.Len(s.f.notifier.all(), 2, "one notification per record write")
}

func (s *IDVReconcilerSuite) TestDifferentNameCreatesNewRecord() {
	s.f.seed(record(1, "Jane Doe", 0, withStatus(models.StatusApproved)))

	s.Require().NoError(s.r.Apply(at(time.Minute), models.IDVEvent{
		AttemptID: 2, UserID: 1, Status: "submitted", PhotoIDName: "Jane Q. Doe",
	}))

	recs := s.f.list(1)
	s.Require().Len(recs, 2)
	s.Equal("Jane Q. Doe", recs[0].VerifiedName)
	s.Nil(recs[0].ProfileName, "empty full name stores no profile name")
}

func (s *IDVReconcilerSuite) TestUnrecognizedStatusCreatesPendingRecord() {
	s.Require().NoError(s.r.Apply(at(0), idvEvent("teleported")))

	recs := s.f.list(1)
	s.Require().Len(recs, 1)
	s.Equal(models.StatusPending, recs[0].Status)
	s.Equal(1.0, testutil.ToFloat64(s.f.metrics.UnknownStatuses.WithLabelValues(metrics.SourceIDV)))
}

func (s *IDVReconcilerSuite) TestStaleStatusNeverMovesBackward() {
	s.Require().NoError(s.r.Apply(at(0), idvEvent("approved")))
	s.Require().NoError(s.r.Apply(at(time.Minute), idvEvent("submitted")))

	recs := s.f.list(1)
	s.Require().Len(recs, 1)
	s.Equal(models.StatusApproved, recs[0].Status)
	s.Equal(1.0, testutil.ToFloat64(s.f.metrics.StaleTransitions.WithLabelValues(metrics.SourceIDV)))
}

func (s *IDVReconcilerSuite) TestUnknownUserIsRetryable() {
	err := s.r.Apply(at(0), models.IDVEvent{AttemptID: 1, UserID: 404, Status: "submitted", PhotoIDName: "Ghost"})

	var notFound *models.UserNotFoundError
	s.Require().True(errors.As(err, &notFound))
	s.Equal(id.UserID(404), notFound.UserID)
	s.Empty(s.f.list(404))
	s.Equal(1.0, testutil.ToFloat64(s.f.metrics.EventsProcessed.WithLabelValues(metrics.SourceIDV, metrics.OutcomeError)))
}

func (s *IDVReconcilerSuite) TestUnknownUserIrrelevantWhenRecordsExist() {
	s.f.seed(record(404, "Ghost", 0))
	s.NoError(s.r.Apply(at(0), models.IDVEvent{AttemptID: 1, UserID: 404, Status: "submitted", PhotoIDName: "Ghost"}))
}

func (s *IDVReconcilerSuite) TestInvalidEvents() {
	cases := map[string]models.IDVEvent{
		"missing user":     {AttemptID: 1, PhotoIDName: "Jane"},
		"missing attempt":  {UserID: 1, PhotoIDName: "Jane"},
		"missing name":     {UserID: 1, AttemptID: 1, PhotoIDName: " "},
		"negative user":    {UserID: -1, AttemptID: 1, PhotoIDName: "Jane", Status: "approved"},
		"negative attempt": {UserID: 1, AttemptID: -7, PhotoIDName: "Jane", Status: "approved"},
	}
	for name, ev := range cases {
		s.Run(name, func() {
			err := s.r.Apply(context.Background(), ev)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
	s.Empty(s.f.list(1))
}

func (s *IDVReconcilerSuite) TestLostCreateRaceUpdatesWinner() {
	competitor := record(1, "Jane Doe", 0, withIDVAttempt(1), withStatus(models.StatusSubmitted))
	tx := racingTx{records: &racingRecords{Records: s.f.records, competitor: competitor}}
	r := NewIDV(tx, s.f.users, s.f.opts...)

	s.Require().NoError(r.Apply(at(time.Minute), idvEvent("approved")))

	recs := s.f.list(1)
	s.Require().Len(recs, 1)
	s.Equal(competitor.ID, recs[0].ID)
	s.Equal(models.StatusApproved, recs[0].Status)
}
