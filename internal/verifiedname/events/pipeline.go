package events

import (
	"log/slog"

	"nameaffirm/internal/platform/config"
	"nameaffirm/internal/platform/kafka/consumer"
	"nameaffirm/internal/verifiedname/metrics"
)

// NewPipeline wraps next in dedupe and then bounded retries. The Deduper
// only sees handler outcomes, so a dead-lettered message is never marked and
// its redelivery is reconciled again.
func NewPipeline(next consumer.Handler, seen SeenStore, cfg config.Events, logger *slog.Logger, m *metrics.Metrics, opts ...RetrierOption) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	deduper := NewDeduper(next, seen, cfg.DedupeTTL, logger, m)
	opts = append([]RetrierOption{WithRetryLogger(logger), WithRetryMetrics(m)}, opts...)
	return NewRetrier(deduper, cfg.MaxRetries, cfg.RetryDelay, opts...)
}
