package events

import (
	"context"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"nameaffirm/internal/platform/kafka/consumer"
	"nameaffirm/internal/verifiedname/metrics"
)

const dedupeKeyPrefix = "nameaffirm:event:"

// SeenStore remembers processed message keys for a TTL.
type SeenStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}

// Deduper skips messages whose exact body was already processed on the same
// topic. Store errors fail open: the message is handled, since reconciling
// twice is safe. A key is marked only when next succeeds.
type Deduper struct {
	next    consumer.Handler
	store   SeenStore
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewDeduper(next consumer.Handler, store SeenStore, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *Deduper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduper{next: next, store: store, ttl: ttl, logger: logger, metrics: m}
}

func (d *Deduper) Handle(ctx context.Context, msg *consumer.Message) error {
	key := DedupeKey(msg)
	seen, err := d.store.Seen(ctx, key)
	if err != nil {
		d.logger.WarnContext(ctx, "dedupe lookup failed", "topic", msg.Topic, "error", err)
	}
	if seen {
		d.logger.DebugContext(ctx, "skipping duplicate event",
			"topic", msg.Topic,
			"offset", msg.Offset,
		)
		if d.metrics != nil {
			d.metrics.IncrementDeduplicated(msg.Topic)
		}
		return nil
	}

	if err := d.next.Handle(ctx, msg); err != nil {
		return err
	}
	if err := d.store.Mark(ctx, key, d.ttl); err != nil {
		d.logger.WarnContext(ctx, "failed to mark event processed", "topic", msg.Topic, "error", err)
	}
	return nil
}

// DedupeKey hashes the topic and body so identical redeliveries collide.
func DedupeKey(msg *consumer.Message) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(msg.Topic))
	h.Write([]byte{0})
	h.Write(msg.Value)
	return dedupeKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// RedisSeenStore keeps processed keys in Redis.
type RedisSeenStore struct {
	client redis.UniversalClient
}

func NewRedisSeenStore(client redis.UniversalClient) *RedisSeenStore {
	return &RedisSeenStore{client: client}
}

func (s *RedisSeenStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisSeenStore) Mark(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.SetNX(ctx, key, 1, ttl).Err()
}

// MemorySeenStore keeps processed keys in process memory.
type MemorySeenStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemorySeenStore() *MemorySeenStore {
	return &MemorySeenStore{expires: make(map[string]time.Time), now: time.Now}
}

func (s *MemorySeenStore) Seen(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expires[key]
	if !ok {
		return false, nil
	}
	if !s.now().Before(exp) {
		delete(s.expires, key)
		return false, nil
	}
	return true, nil
}

func (s *MemorySeenStore) Mark(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, k)
		}
	}
	s.expires[key] = now.Add(ttl)
	return nil
}
