package reconcile

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"nameaffirm/internal/verifiedname/metrics"
	"nameaffirm/internal/verifiedname/models"
	"nameaffirm/internal/verifiedname/store"
	id "nameaffirm/pkg/domain"
	"nameaffirm/pkg/platform/sentinel"
	"nameaffirm/pkg/requestcontext"
)

// ProctoringReconciler applies proctored exam attempt events.
//
// Only onboarding exams and reviewable proctored exams count. A user who
// already has an approved record is left alone; a differing exam name is
// logged as a mismatch and never corrected. Otherwise the record for the
// attempt takes the mapped status, or one is created when both names are known.
type ProctoringReconciler struct {
	base
	tx    store.Tx
	users UserDirectory
}

var _ Reconciler[models.ProctoringEvent] = (*ProctoringReconciler)(nil)

func NewProctoring(tx store.Tx, users UserDirectory, opts ...Option) *ProctoringReconciler {
	return &ProctoringReconciler{base: newBase(opts), tx: tx, users: users}
}

func (r *ProctoringReconciler) Apply(ctx context.Context, ev models.ProctoringEvent) (err error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "reconcile.proctoring",
		trace.WithAttributes(eventAttrs(ev.UserID, ev.AttemptID, ev.Status)...))
	outcome := metrics.OutcomeNoop
	defer func() {
		r.finish(span, metrics.SourceProctoring, outcome, err)
		if r.metrics != nil {
			r.metrics.ObserveReconcile(metrics.SourceProctoring, start)
		}
	}()

	if err := validateProctoring(ev); err != nil {
		return err
	}

	if !ev.IsRelevant() {
		outcome = metrics.OutcomeIrrelevant
		r.logger.DebugContext(ctx, "ignoring proctoring event without identity signal",
			"user_id", ev.UserID,
			"attempt_id", ev.AttemptID,
			"is_practice_exam", ev.IsPracticeExam,
			"is_proctored", ev.IsProctored,
			"backend_supports_onboarding", ev.BackendSupportsOnboarding,
		)
		return nil
	}

	trigger, hasTrigger := models.StatusFromProctoring(ev.Status)
	if !hasTrigger && !models.IsKnownProctoringStatus(ev.Status) {
		r.logger.WarnContext(ctx, "unrecognized proctoring status",
			"user_id", ev.UserID,
			"attempt_id", ev.AttemptID,
			"status", ev.Status,
		)
		if r.metrics != nil {
			r.metrics.IncrementUnknownStatus(metrics.SourceProctoring)
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

func (r *ProctoringReconciler) apply(
	ctx context.Context,
	records store.Records,
	ev models.ProctoringEvent,
	trigger models.Status,
	hasTrigger bool,
	cs *changeSet,
) (string, error) {
	approved, err := records.FindMostRecent(ctx, store.ForUser(ev.UserID).WithStatus(models.StatusApproved))
	switch {
	case err == nil:
		if approved.VerifiedName != ev.FullName {
			r.logger.WarnContext(ctx, "proctoring full name differs from approved verified name",
				"user_id", ev.UserID,
				"attempt_id", ev.AttemptID,
				"verified_name_id", approved.ID,
			)
			if r.metrics != nil {
				r.metrics.IncrementMismatch()
			}
		}
		return metrics.OutcomeApproved, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return "", err
	}

	now := requestcontext.Now(ctx)
	byAttempt := store.ForUser(ev.UserID).WithProctoredAttempt(ev.AttemptID)

	rec, err := records.FindMostRecent(ctx, byAttempt)
	if errors.Is(err, sentinel.ErrNotFound) {
		res, createErr := r.create(ctx, records, ev, trigger, hasTrigger, now, cs)
		if createErr != nil {
			return "", createErr
		}
		switch res {
		case createDone:
			return metrics.OutcomeCreated, nil
		case createSkipped:
			return metrics.OutcomeIncomplete, nil
		}
		// Lost the race to a concurrent delivery; update its record instead.
		rec, err = records.FindMostRecent(ctx, byAttempt)
	}
	if err != nil {
		return "", err
	}

	if !hasTrigger {
		return metrics.OutcomeNoop, nil
	}
	if err := rec.CanApplyStatus(trigger); err != nil {
		r.logger.WarnContext(ctx, "skipping stale proctoring status",
			"user_id", ev.UserID,
			"attempt_id", ev.AttemptID,
			"verified_name_id", rec.ID,
			"current_status", rec.Status,
			"status", trigger,
		)
		if r.metrics != nil {
			r.metrics.IncrementStale(metrics.SourceProctoring)
		}
		return metrics.OutcomeNoop, nil
	}

	prev := rec.Status
	rec.ApplyStatus(trigger, now)
	if err := records.Update(ctx, rec); err != nil {
		return "", err
	}
	cs.statusUpdated(rec, prev)
	if r.metrics != nil {
		r.metrics.IncrementTransition(metrics.SourceProctoring, trigger.String())
	}
	r.logger.InfoContext(ctx, "updated verified name for proctored exam attempt",
		"user_id", ev.UserID,
		"attempt_id", ev.AttemptID,
		"verified_name_id", rec.ID,
		"status", trigger,
	)
	return metrics.OutcomeUpdated, nil
}

type createResult int

const (
	createDone createResult = iota
	createSkipped
	createLostRace
)

func (r *ProctoringReconciler) create(
	ctx context.Context,
	records store.Records,
	ev models.ProctoringEvent,
	trigger models.Status,
	hasTrigger bool,
	now time.Time,
	cs *changeSet,
) (createResult, error) {
	if !ev.HasNames() {
		r.logger.ErrorContext(ctx, "cannot create verified name without full name and profile name",
			"user_id", ev.UserID,
			"attempt_id", ev.AttemptID,
		)
		return createSkipped, nil
	}
	if err := requireUser(ctx, r.users, ev.UserID); err != nil {
		return 0, err
	}

	status := models.StatusPending
	if hasTrigger {
		status = trigger
	}
	rec, err := models.NewVerifiedName(id.NewVerifiedNameID(), models.NewVerifiedNameParams{
		UserID:                 ev.UserID,
		VerifiedName:           ev.FullName,
		ProfileName:            models.StringPtr(ev.ProfileName),
		ProctoredExamAttemptID: models.AttemptPtr(ev.AttemptID),
		Status:                 status,
	}, now)
	if err != nil {
		return 0, err
	}

	err = records.CreateIfAbsent(ctx, rec, store.ForUser(ev.UserID).WithProctoredAttempt(ev.AttemptID))
	if errors.Is(err, sentinel.ErrConflict) {
		r.logger.InfoContext(ctx, "verified name already created by concurrent delivery",
			"user_id", ev.UserID,
			"attempt_id", ev.AttemptID,
		)
		return createLostRace, nil
	}
	if err != nil {
		return 0, err
	}

	cs.created(rec)
	if r.metrics != nil {
		r.metrics.IncrementCreated(metrics.OriginProctoring)
	}
	r.logger.InfoContext(ctx, "created verified name for proctored exam attempt",
		"user_id", ev.UserID,
		"attempt_id", ev.AttemptID,
		"verified_name_id", rec.ID,
		"status", rec.Status,
	)
	return createDone, nil
}

func validateProctoring(ev models.ProctoringEvent) error {
	return validateIDs(ev.UserID, ev.AttemptID)
}
