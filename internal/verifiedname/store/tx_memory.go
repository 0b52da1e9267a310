package store

import (
	"context"
	"sync"
	"time"

	id "nameaffirm/pkg/domain"
	dErrors "nameaffirm/pkg/domain-errors"
)

// numUserShards spreads per-user locks so unrelated users rarely contend.
const numUserShards = 128

// DefaultTxTimeout bounds a transaction when the caller set no deadline.
const DefaultTxTimeout = 5 * time.Second

// ShardedTx serializes work per user with sharded mutexes. It gives
// isolation, not rollback: writes made before fn fails stay applied.
type ShardedTx struct {
	shards  [numUserShards]sync.Mutex
	records Records
	timeout time.Duration
}

// NewShardedTx wraps records. A zero timeout means DefaultTxTimeout.
func NewShardedTx(records Records, timeout time.Duration) *ShardedTx {
	return &ShardedTx{records: records, timeout: timeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, userID id.UserID, fn func(ctx context.Context, records Records) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = DefaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := &t.shards[shardFor(userID)]
	shard.Lock()
	defer shard.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx, t.records)
}

func shardFor(userID id.UserID) uint64 {
	return uint64(userID) % numUserShards
}
