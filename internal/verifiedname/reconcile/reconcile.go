// Package reconcile applies asynchronous attempt-status events to a user's
// verified-name history.
//
// Each event source is its own Reconciler. Both run their read-then-write
// sequence inside a per-user transaction and create records through a
// conditional insert, so concurrent redelivery of one attempt cannot produce
// duplicates. Change notifications go out only after the transaction commits.
package reconcile

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	usermodels "nameaffirm/internal/users/models"
	"nameaffirm/internal/verifiedname/metrics"
	"nameaffirm/internal/verifiedname/models"
	id "nameaffirm/pkg/domain"
)

// Reconciler applies one event type to the record store.
type Reconciler[E any] interface {
	Apply(ctx context.Context, event E) error
}

// Notifier receives one change per record write, after commit.
type Notifier interface {
	Notify(ctx context.Context, change models.Change)
}

// UserDirectory resolves the users events refer to.
type UserDirectory interface {
	FindByID(ctx context.Context, userID id.UserID) (*usermodels.User, error)
}

type base struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	notifier Notifier
	tracer   trace.Tracer
}

type Option func(b *base)

func WithLogger(logger *slog.Logger) Option {
	return func(b *base) {
		b.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *base) {
		b.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(b *base) {
		b.notifier = n
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(b *base) {
		b.tracer = t
	}
}

func newBase(opts []Option) base {
	b := base{
		logger: slog.Default(),
		tracer: otel.Tracer("nameaffirm/internal/verifiedname/reconcile"),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) notify(ctx context.Context, changes []models.Change) {
	if b.notifier == nil {
		return
	}
	for _, c := range changes {
		b.notifier.Notify(ctx, c)
	}
}

func (b *base) finish(span trace.Span, source, outcome string, err error) {
	if err != nil {
		outcome = metrics.OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(outcomeAttr(outcome))
	span.End()
	if b.metrics != nil {
		b.metrics.IncrementEvent(source, outcome)
	}
}

// changeSet collects writes made inside a transaction. It is reset at the
// start of each attempt so a retried transaction never double-notifies.
type changeSet struct {
	changes []models.Change
}

func (c *changeSet) reset() {
	c.changes = c.changes[:0]
}

func (c *changeSet) created(rec *models.VerifiedName) {
	c.changes = append(c.changes, models.Change{
		Kind:   models.ChangeCreated,
		Record: rec.Clone(),
		At:     rec.Created,
	})
}

func (c *changeSet) statusUpdated(rec *models.VerifiedName, prev models.Status) {
	c.changes = append(c.changes, models.Change{
		Kind:       models.ChangeStatusUpdated,
		Record:     rec.Clone(),
		PrevStatus: prev,
		At:         rec.Modified,
	})
}
