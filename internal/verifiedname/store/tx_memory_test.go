package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nameaffirm/internal/verifiedname/models"
	id "nameaffirm/pkg/domain"
	dErrors "nameaffirm/pkg/domain-errors"
	"nameaffirm/pkg/platform/sentinel"
)

// TestShardedTxSerializesReadThenWrite runs the unguarded
// find-then-create sequence concurrently and expects exactly one record.
func TestShardedTxSerializesReadThenWrite(t *testing.T) {
	mem := NewInMemory()
	tx := NewShardedTx(mem, time.Second)
	ctx := context.Background()
	const goroutines = 50

	var wg sync.WaitGroup
	var created atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := tx.RunInTx(ctx, 1, func(ctx context.Context, records Records) error {
				_, err := records.FindMostRecent(ctx, ForUser(1).WithProctoredAttempt(4))
				if !errors.Is(err, sentinel.ErrNotFound) {
					return err
				}
				rec, err := models.NewVerifiedName(id.NewVerifiedNameID(), models.NewVerifiedNameParams{
					UserID:                 1,
					VerifiedName:           "Jane",
					ProctoredExamAttemptID: models.AttemptPtr(4),
				}, time.Now())
				if err != nil {
					return err
				}
				if err := records.Create(ctx, rec); err != nil {
					return err
				}
				created.Add(1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	all, err := mem.List(ctx, ForUser(1))
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestShardedTxCancelledContext(t *testing.T) {
	tx := NewShardedTx(NewInMemory(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := tx.RunInTx(ctx, 1, func(context.Context, Records) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestShardedTxTimesOutWaitingForLock(t *testing.T) {
	tx := NewShardedTx(NewInMemory(), 20*time.Millisecond)
	release := make(chan struct{})
	holding := make(chan struct{})

	go func() {
		_ = tx.RunInTx(context.Background(), 1, func(context.Context, Records) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	done := make(chan error, 1)
	go func() {
		done <- tx.RunInTx(context.Background(), 1, func(context.Context, Records) error { return nil })
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	err := <-done
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout), "deadline passed while waiting for the lock")
}
