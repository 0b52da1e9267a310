package events

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"nameaffirm/internal/platform/kafka/consumer"
	"nameaffirm/internal/verifiedname/metrics"
	dErrors "nameaffirm/pkg/domain-errors"
)

// Publisher writes one record to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Retrier re-runs a handler on retryable failures with a constant delay.
// Once retries are exhausted, or on a permanent failure, the message is
// dead-lettered and Handle returns nil so the consumer commits it.
type Retrier struct {
	next            consumer.Handler
	maxRetries      int
	delay           time.Duration
	deadLetter      Publisher
	deadLetterTopic string
	logger          *slog.Logger
	metrics         *metrics.Metrics
}

type RetrierOption func(*Retrier)

func WithRetryLogger(logger *slog.Logger) RetrierOption {
	return func(r *Retrier) {
		r.logger = logger
	}
}

func WithRetryMetrics(m *metrics.Metrics) RetrierOption {
	return func(r *Retrier) {
		r.metrics = m
	}
}

// WithDeadLetter republishes failed messages to topic.
func WithDeadLetter(p Publisher, topic string) RetrierOption {
	return func(r *Retrier) {
		r.deadLetter = p
		r.deadLetterTopic = topic
	}
}

func NewRetrier(next consumer.Handler, maxRetries int, delay time.Duration, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		next:       next,
		maxRetries: maxRetries,
		delay:      delay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retrier) Handle(ctx context.Context, msg *consumer.Message) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.delay), uint64(max(r.maxRetries, 0))),
		ctx,
	)
	op := func() error {
		err := r.next.Handle(ctx, msg)
		if err != nil && IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	onRetry := func(err error, wait time.Duration) {
		r.logger.WarnContext(ctx, "event handling failed, retrying",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"retry_in", wait,
			"error", err,
		)
		if r.metrics != nil {
			r.metrics.IncrementRetry(msg.Topic)
		}
	}

	err := backoff.RetryNotify(op, policy, onRetry)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.deadLettered(ctx, msg, err)
	return nil
}

func (r *Retrier) deadLettered(ctx context.Context, msg *consumer.Message, cause error) {
	r.logger.ErrorContext(ctx, "event dead-lettered",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"permanent", IsPermanent(cause),
		"error", cause,
	)
	if r.metrics != nil {
		r.metrics.IncrementDeadLettered(msg.Topic)
	}
	if r.deadLetter == nil || r.deadLetterTopic == "" {
		return
	}
	headers := map[string]string{
		"source_topic":     msg.Topic,
		"source_partition": strconv.Itoa(int(msg.Partition)),
		"source_offset":    strconv.FormatInt(msg.Offset, 10),
		"error":            cause.Error(),
	}
	if err := r.deadLetter.Publish(ctx, r.deadLetterTopic, msg.Key, msg.Value, headers); err != nil {
		r.logger.ErrorContext(ctx, "failed to publish dead letter",
			"topic", r.deadLetterTopic,
			"error", err,
		)
	}
}

// IsPermanent reports failures a retry cannot fix: malformed or invalid
// events. A missing user is retryable since the account may not have
// propagated yet.
func IsPermanent(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeInvariantViolation:
		return true
	default:
		return false
	}
}
