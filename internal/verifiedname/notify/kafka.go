package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"nameaffirm/internal/verifiedname/metrics"
	"nameaffirm/internal/verifiedname/models"
	"nameaffirm/pkg/platform/circuit"
)

const defaultPublishTimeout = 5 * time.Second

// Publisher writes one record to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaNotifier publishes changes to a topic. A change that cannot be
// published goes to the fallback notifier instead, so Notify never fails.
type KafkaNotifier struct {
	publisher Publisher
	topic     string
	fallback  *LogNotifier
	breaker   *circuit.Breaker
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*KafkaNotifier)

func WithLogger(logger *slog.Logger) Option {
	return func(n *KafkaNotifier) {
		n.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(n *KafkaNotifier) {
		n.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(n *KafkaNotifier) {
		n.breaker = b
	}
}

func WithPublishTimeout(d time.Duration) Option {
	return func(n *KafkaNotifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

func NewKafkaNotifier(publisher Publisher, topic string, opts ...Option) *KafkaNotifier {
	n := &KafkaNotifier{
		publisher: publisher,
		topic:     topic,
		breaker:   circuit.New("change-notifier"),
		timeout:   defaultPublishTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.fallback = NewLogNotifier(n.logger)
	return n
}

func (n *KafkaNotifier) Notify(ctx context.Context, c models.Change) {
	key, value, err := Encode(c)
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to encode change notification",
			"verified_name_id", c.Record.ID,
			"error", err,
		)
		n.useFallback(ctx, c)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	err = n.publisher.Publish(pubCtx, n.topic, key, value, map[string]string{"type": EventType})
	if err != nil {
		_, change := n.breaker.RecordFailure()
		if change.Opened {
			n.logger.WarnContext(ctx, "change notifier circuit opened",
				"breaker", n.breaker.Name(),
				"topic", n.topic,
			)
		}
		n.logger.ErrorContext(ctx, "failed to publish change notification",
			"topic", n.topic,
			"user_id", c.Record.UserID,
			"verified_name_id", c.Record.ID,
			"error", err,
		)
		n.useFallback(ctx, c)
		return
	}

	if _, change := n.breaker.RecordSuccess(); change.Closed {
		n.logger.InfoContext(ctx, "change notifier circuit closed",
			"breaker", n.breaker.Name(),
			"topic", n.topic,
		)
	}
}

// Healthy reports an error while publishing is failing and changes are
// going to the fallback.
func (n *KafkaNotifier) Healthy(context.Context) error {
	if n.breaker.IsOpen() {
		return errors.New("change notifier circuit open")
	}
	return nil
}

func (n *KafkaNotifier) useFallback(ctx context.Context, c models.Change) {
	if n.metrics != nil {
		n.metrics.IncrementNotifyFallback()
	}
	n.fallback.Notify(ctx, c)
}
