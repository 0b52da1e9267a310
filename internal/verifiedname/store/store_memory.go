package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"nameaffirm/internal/verifiedname/models"
	id "nameaffirm/pkg/domain"
	"nameaffirm/pkg/platform/sentinel"
)

// InMemory keeps records per user. Reads hand out clones so callers never
// alias stored state.
type InMemory struct {
	mu      sync.RWMutex
	records map[id.UserID][]*models.VerifiedName
	configs map[id.UserID][]*models.Config
}

func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[id.UserID][]*models.VerifiedName),
		configs: make(map[id.UserID][]*models.Config),
	}
}

func (s *InMemory) Create(_ context.Context, rec *models.VerifiedName) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(rec)
}

func (s *InMemory) CreateIfAbsent(_ context.Context, rec *models.VerifiedName, guard Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records[guard.UserID] {
		if guard.Matches(existing) {
			return sentinel.ErrConflict
		}
	}
	return s.insertLocked(rec)
}

func (s *InMemory) insertLocked(rec *models.VerifiedName) error {
	for _, existing := range s.records[rec.UserID] {
		if existing.ID == rec.ID {
			return fmt.Errorf("record %s: %w", rec.ID, sentinel.ErrConflict)
		}
		if rec.ProctoredExamAttemptID != nil && existing.ProctoredExamAttemptID != nil &&
			*existing.ProctoredExamAttemptID == *rec.ProctoredExamAttemptID {
			return fmt.Errorf("proctored attempt %d: %w", *rec.ProctoredExamAttemptID, sentinel.ErrConflict)
		}
	}
	s.records[rec.UserID] = append(s.records[rec.UserID], rec.Clone())
	return nil
}

func (s *InMemory) List(_ context.Context, f Filter) ([]*models.VerifiedName, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matchLocked(f), nil
}

func (s *InMemory) FindMostRecent(_ context.Context, f Filter) (*models.VerifiedName, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := s.matchLocked(f)
	if len(matches) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return matches[0], nil
}

func (s *InMemory) LinkVerificationAttempt(_ context.Context, f Filter, attemptID id.AttemptID, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f = f.WithoutAttempt()
	linked := 0
	for _, rec := range s.records[f.UserID] {
		if !f.Matches(rec) {
			continue
		}
		if err := rec.LinkVerificationAttempt(attemptID, now); err != nil {
			return linked, err
		}
		linked++
	}
	return linked, nil
}

func (s *InMemory) Update(_ context.Context, rec *models.VerifiedName) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.records[rec.UserID] {
		if existing.ID != rec.ID {
			continue
		}
		in := rec.Clone()
		updated := existing.Clone()
		updated.Status = in.Status
		updated.IsVerified = in.IsVerified
		updated.VerificationAttemptID = in.VerificationAttemptID
		updated.ProctoredExamAttemptID = in.ProctoredExamAttemptID
		updated.Modified = in.Modified
		s.records[rec.UserID][i] = updated
		return nil
	}
	return sentinel.ErrNotFound
}

func (s *InMemory) SaveConfig(_ context.Context, cfg *models.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cfg
	s.configs[cfg.UserID] = append(s.configs[cfg.UserID], &c)
	return nil
}

func (s *InMemory) CurrentConfig(_ context.Context, userID id.UserID) (*models.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.configs[userID]
	if len(history) == 0 {
		return nil, sentinel.ErrNotFound
	}
	c := *history[len(history)-1]
	return &c, nil
}

// matchLocked returns clones of matching records, newest first.
func (s *InMemory) matchLocked(f Filter) []*models.VerifiedName {
	var out []*models.VerifiedName
	for _, rec := range s.records[f.UserID] {
		if f.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return newer(out[i], out[j])
	})
	return out
}

func newer(a, b *models.VerifiedName) bool {
	if !a.Created.Equal(b.Created) {
		return a.Created.After(b.Created)
	}
	return a.ID.String() > b.ID.String()
}
