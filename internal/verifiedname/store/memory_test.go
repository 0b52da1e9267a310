package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"nameaffirm/internal/verifiedname/models"
	id "nameaffirm/pkg/domain"
	"nameaffirm/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	base  time.Time
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) newRecord(userID id.UserID, name string, offset time.Duration) *models.VerifiedName {
	rec, err := models.NewVerifiedName(id.NewVerifiedNameID(), models.NewVerifiedNameParams{
		UserID:       userID,
		VerifiedName: name,
		ProfileName:  models.StringPtr("Profile " + name),
	}, s.base.Add(offset))
	s.Require().NoError(err)
	return rec
}

// TestOrdering verifies reads return newest first with an ID tie-break.
func (s *InMemoryStoreSuite) TestOrdering() {
	s.Run("newest created first", func() {
		old := s.newRecord(1, "Old", 0)
		recent := s.newRecord(1, "Recent", time.Hour)
		s.Require().NoError(s.store.Create(s.ctx, recent))
		s.Require().NoError(s.store.Create(s.ctx, old))

		got, err := s.store.FindMostRecent(s.ctx, ForUser(1))
		s.Require().NoError(err)
		s.Equal(recent.ID, got.ID)

		all, err := s.store.List(s.ctx, ForUser(1))
		s.Require().NoError(err)
		s.Require().Len(all, 2)
		s.Equal(old.ID, all[1].ID)
	})

	s.Run("equal timestamps fall back to id", func() {
		first := s.newRecord(2, "A", 0)
		second := s.newRecord(2, "B", 0)
		s.Require().NoError(s.store.Create(s.ctx, first))
		s.Require().NoError(s.store.Create(s.ctx, second))

		got, err := s.store.FindMostRecent(s.ctx, ForUser(2))
		s.Require().NoError(err)
		s.Equal(second.ID, got.ID)
	})
}

// TestFilters verifies each filter field narrows results.
func (s *InMemoryStoreSuite) TestFilters() {
	linked := s.newRecord(1, "Jane", 0)
	linked.VerificationAttemptID = models.AttemptPtr(5)
	linked.Status = models.StatusApproved
	exam := s.newRecord(1, "Jane", time.Minute)
	exam.ProctoredExamAttemptID = models.AttemptPtr(9)
	bare := s.newRecord(1, "Jane", 2*time.Minute)
	legacy := s.newRecord(1, "Legacy", 3*time.Minute)
	legacy.IsVerified = true
	other := s.newRecord(2, "Jane", 0)
	for _, r := range []*models.VerifiedName{linked, exam, bare, legacy, other} {
		s.Require().NoError(s.store.Create(s.ctx, r))
	}

	count := func(f Filter) int {
		out, err := s.store.List(s.ctx, f)
		s.Require().NoError(err)
		return len(out)
	}

	s.Equal(4, count(ForUser(1)))
	s.Equal(3, count(ForUser(1).WithVerifiedName("Jane")))
	s.Equal(1, count(ForUser(1).WithVerificationAttempt(5)))
	s.Equal(1, count(ForUser(1).WithProctoredAttempt(9)))
	s.Equal(2, count(ForUser(1).WithVerifiedName("Jane").WithoutProctoredAttempt()))
	s.Equal(1, count(ForUser(1).WithVerifiedName("Jane").WithoutAttempt()))
	s.Equal(1, count(ForUser(1).WithStatus(models.StatusApproved)))
	s.Equal(2, count(ForUser(1).OnlyVerified()), "legacy is_verified rows count as verified")
}

func (s *InMemoryStoreSuite) TestNotFound() {
	_, err := s.store.FindMostRecent(s.ctx, ForUser(42))
	s.ErrorIs(err, sentinel.ErrNotFound)

	err = s.store.Update(s.ctx, s.newRecord(42, "Ghost", 0))
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.CurrentConfig(s.ctx, 42)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConditionalCreate verifies the guard closes the duplicate-create window.
func (s *InMemoryStoreSuite) TestConditionalCreate() {
	guard := ForUser(1).WithVerifiedName("Jane")

	s.Require().NoError(s.store.CreateIfAbsent(s.ctx, s.newRecord(1, "Jane", 0), guard))
	err := s.store.CreateIfAbsent(s.ctx, s.newRecord(1, "Jane", time.Second), guard)
	s.ErrorIs(err, sentinel.ErrConflict)

	s.Require().NoError(s.store.CreateIfAbsent(s.ctx, s.newRecord(1, "John", 0), ForUser(1).WithVerifiedName("John")))

	all, err := s.store.List(s.ctx, ForUser(1))
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *InMemoryStoreSuite) TestDuplicateProctoredAttemptRejected() {
	a := s.newRecord(1, "Jane", 0)
	a.ProctoredExamAttemptID = models.AttemptPtr(3)
	b := s.newRecord(1, "Jane", time.Second)
	b.ProctoredExamAttemptID = models.AttemptPtr(3)

	s.Require().NoError(s.store.Create(s.ctx, a))
	s.ErrorIs(s.store.Create(s.ctx, b), sentinel.ErrConflict)
}

func (s *InMemoryStoreSuite) TestLinkVerificationAttempt() {
	unlinked1 := s.newRecord(1, "Jane", 0)
	unlinked2 := s.newRecord(1, "Jane", time.Second)
	exam := s.newRecord(1, "Jane", 2*time.Second)
	exam.ProctoredExamAttemptID = models.AttemptPtr(9)
	for _, r := range []*models.VerifiedName{unlinked1, unlinked2, exam} {
		s.Require().NoError(s.store.Create(s.ctx, r))
	}

	later := s.base.Add(time.Hour)
	n, err := s.store.LinkVerificationAttempt(s.ctx, ForUser(1).WithVerifiedName("Jane"), 7, later)
	s.Require().NoError(err)
	s.Equal(2, n)

	linked, err := s.store.List(s.ctx, ForUser(1).WithVerificationAttempt(7))
	s.Require().NoError(err)
	s.Len(linked, 2)
	s.Equal(later, linked[0].Modified)

	n, err = s.store.LinkVerificationAttempt(s.ctx, ForUser(1).WithVerifiedName("Jane"), 8, later)
	s.Require().NoError(err)
	s.Zero(n, "linking is a no-op once every record references an attempt")
}

func (s *InMemoryStoreSuite) TestUpdateOnlyTouchesMutableFields() {
	rec := s.newRecord(1, "Jane", 0)
	s.Require().NoError(s.store.Create(s.ctx, rec))

	changed := rec.Clone()
	changed.VerifiedName = "Mallory"
	changed.ApplyStatus(models.StatusSubmitted, s.base.Add(time.Minute))
	s.Require().NoError(s.store.Update(s.ctx, changed))

	got, err := s.store.FindMostRecent(s.ctx, ForUser(1))
	s.Require().NoError(err)
	s.Equal("Jane", got.VerifiedName)
	s.Equal(models.StatusSubmitted, got.Status)
	s.Equal(s.base.Add(time.Minute), got.Modified)
}

func (s *InMemoryStoreSuite) TestReadsAreIsolatedCopies() {
	rec := s.newRecord(1, "Jane", 0)
	s.Require().NoError(s.store.Create(s.ctx, rec))
	rec.Status = models.StatusDenied

	got, err := s.store.FindMostRecent(s.ctx, ForUser(1))
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)

	got.Status = models.StatusApproved
	again, err := s.store.FindMostRecent(s.ctx, ForUser(1))
	s.Require().NoError(err)
	s.Equal(models.StatusPending, again.Status)
}

func (s *InMemoryStoreSuite) TestConfigHistory() {
	s.Require().NoError(s.store.SaveConfig(s.ctx, &models.Config{UserID: 1, UseVerifiedNameForCerts: true, Created: s.base}))
	s.Require().NoError(s.store.SaveConfig(s.ctx, &models.Config{UserID: 1, UseVerifiedNameForCerts: false, Created: s.base.Add(time.Hour)}))

	cfg, err := s.store.CurrentConfig(s.ctx, 1)
	s.Require().NoError(err)
	s.False(cfg.UseVerifiedNameForCerts)
}
