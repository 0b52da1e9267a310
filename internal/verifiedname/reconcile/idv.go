package reconcile

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"nameaffirm/internal/verifiedname/metrics"
	"nameaffirm/internal/verifiedname/models"
	"nameaffirm/internal/verifiedname/store"
	id "nameaffirm/pkg/domain"
	dErrors "nameaffirm/pkg/domain-errors"
	"nameaffirm/pkg/platform/sentinel"
	"nameaffirm/pkg/requestcontext"
)

// IDVReconciler applies identity-verification attempt events.
//
// Records are matched by the name read from the photo ID. Matches without
// any attempt reference are linked to the attempt, then every match linked
// to it (and not to a proctored exam) takes the mapped status. With no match
// a new record is created for the attempt.
type IDVReconciler struct {
	base
	tx    store.Tx
	users UserDirectory
}

var _ Reconciler[models.IDVEvent] = (*IDVReconciler)(nil)

func NewIDV(tx store.Tx, users UserDirectory, opts ...Option) *IDVReconciler {
	return &IDVReconciler{base: newBase(opts), tx: tx, users: users}
}

func (r *IDVReconciler) Apply(ctx context.Context, ev models.IDVEvent) (err error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "reconcile.idv",
		trace.WithAttributes(eventAttrs(ev.UserID, ev.AttemptID, ev.Status)...))
	outcome := metrics.OutcomeNoop
	defer func() {
		r.finish(span, metrics.SourceIDV, outcome, err)
		if r.metrics != nil {
			r.metrics.ObserveReconcile(metrics.SourceIDV, start)
		}
	}()

	if err := validateIDV(ev); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "idv status event received",
		"user_id", ev.UserID,
		"attempt_id", ev.AttemptID,
		"status", ev.Status,
	)

	trigger, hasTrigger := models.StatusFromIDV(ev.Status)
	if !hasTrigger && !models.IsKnownIDVStatus(ev.Status) {
		r.logger.WarnContext(ctx, "unrecognized idv status",
			"user_id", ev.UserID,
			"attempt_id", ev.AttemptID,
			"status", ev.Status,
		)
		if r.metrics != nil {
			r.metrics.IncrementUnknownStatus(metrics.SourceIDV)
		}
	}

	var cs changeSet
	err = r.tx.RunInTx(ctx, ev.UserID, func(ctx context.Context, records store.Records) error {
		cs.reset()
		var txErr error
		outcome, txErr = r.apply(ctx, records, ev, trigger, hasTrigger, &cs)
		return txErr
	})
	if err != nil {
		return err
	}

	r.notify(ctx, cs.changes)
	return nil
}

func (r *IDVReconciler) apply(
	ctx context.Context,
	records store.Records,
	ev models.IDVEvent,
	trigger models.Status,
	hasTrigger bool,
	cs *changeSet,
) (string, error) {
	now := requestcontext.Now(ctx)
	byName := store.ForUser(ev.UserID).WithVerifiedName(ev.PhotoIDName)

	matches, err := records.List(ctx, byName)
	if err != nil {
		return "", err
	}

	if len(matches) == 0 {
		created, err := r.create(ctx, records, ev, trigger, hasTrigger, now, cs)
		if err != nil || created {
			return metrics.OutcomeCreated, err
		}
		// A concurrent delivery created the record first; fall through and
		// update it like any existing match.
	}

	linked, err := records.LinkVerificationAttempt(ctx, byName, ev.AttemptID, now)
	if err != nil {
		return "", err
	}
	if linked > 0 {
		r.logger.InfoContext(ctx, "linked verified names to verification attempt",
			"user_id", ev.UserID,
			"attempt_id", ev.AttemptID,
			"linked", linked,
		)
	}

	if !hasTrigger {
		if linked > 0 {
			return metrics.OutcomeUpdated, nil
		}
		return metrics.OutcomeNoop, nil
	}

	targets, err := records.List(ctx, byName.WithVerificationAttempt(ev.AttemptID).WithoutProctoredAttempt())
	if err != nil {
		return "", err
	}
	written := 0
	for _, rec := range targets {
		if err := rec.CanApplyStatus(trigger); err != nil {
			r.logger.WarnContext(ctx, "skipping stale idv status",
				"user_id", ev.UserID,
				"attempt_id", ev.AttemptID,
				"verified_name_id", rec.ID,
				"current_status", rec.Status,
				"status", trigger,
			)
			if r.metrics != nil {
				r.metrics.IncrementStale(metrics.SourceIDV)
			}
			continue
		}
		prev := rec.Status
		rec.ApplyStatus(trigger, now)
		if err := records.Update(ctx, rec); err != nil {
			return "", err
		}
		cs.statusUpdated(rec, prev)
		written++
		if r.metrics != nil {
			r.metrics.IncrementTransition(metrics.SourceIDV, trigger.String())
		}
	}

	r.logger.InfoContext(ctx, "updated verified names for verification attempt",
		"user_id", ev.UserID,
		"attempt_id", ev.AttemptID,
		"status", trigger,
		"updated", written,
	)
	if written > 0 || linked > 0 {
		return metrics.OutcomeUpdated, nil
	}
	return metrics.OutcomeNoop, nil
}

// create inserts the record for an attempt with no matching name. It reports
// false without error when a concurrent delivery won the race.
func (r *IDVReconciler) create(
	ctx context.Context,
	records store.Records,
	ev models.IDVEvent,
	trigger models.Status,
	hasTrigger bool,
	now time.Time,
	cs *changeSet,
) (bool, error) {
	if err := requireUser(ctx, r.users, ev.UserID); err != nil {
		return false, err
	}

	status := models.StatusPending
	if hasTrigger {
		status = trigger
	}
	rec, err := models.NewVerifiedName(id.NewVerifiedNameID(), models.NewVerifiedNameParams{
		UserID:                ev.UserID,
		VerifiedName:          ev.PhotoIDName,
		ProfileName:           models.StringPtr(strings.TrimSpace(ev.FullName)),
		VerificationAttemptID: models.AttemptPtr(ev.AttemptID),
		Status:                status,
	}, now)
	if err != nil {
		return false, err
	}

	err = records.CreateIfAbsent(ctx, rec, store.ForUser(ev.UserID).WithVerifiedName(ev.PhotoIDName))
	if errors.Is(err, sentinel.ErrConflict) {
		r.logger.InfoContext(ctx, "verified name already created by concurrent delivery",
			"user_id", ev.UserID,
			"attempt_id", ev.AttemptID,
		)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	cs.created(rec)
	if r.metrics != nil {
		r.metrics.IncrementCreated(metrics.OriginIDV)
	}
	r.logger.InfoContext(ctx, "created verified name for verification attempt",
		"user_id", ev.UserID,
		"attempt_id", ev.AttemptID,
		"verified_name_id", rec.ID,
		"status", rec.Status,
	)
	return true, nil
}

// validateIDs rejects missing, zero and negative ids. Both are permanent
// failures.
func validateIDs(userID id.UserID, attemptID id.AttemptID) error {
	if userID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "user_id must be a positive integer")
	}
	if attemptID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "attempt_id must be a positive integer")
	}
	return nil
}

func validateIDV(ev models.IDVEvent) error {
	if err := validateIDs(ev.UserID, ev.AttemptID); err != nil {
		return err
	}
	if strings.TrimSpace(ev.PhotoIDName) == "" {
		return &models.EmptyNameError{Field: "photo_id_name"}
	}
	return nil
}

func requireUser(ctx context.Context, users UserDirectory, userID id.UserID) error {
	if users == nil {
		return nil
	}
	_, err := users.FindByID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &models.UserNotFoundError{UserID: userID}
	}
	return err
}
