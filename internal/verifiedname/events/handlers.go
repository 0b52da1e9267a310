package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"nameaffirm/internal/platform/kafka/consumer"
	"nameaffirm/internal/verifiedname/models"
	"nameaffirm/internal/verifiedname/reconcile"
	id "nameaffirm/pkg/domain"
	dErrors "nameaffirm/pkg/domain-errors"
	"nameaffirm/pkg/requestcontext"
)

// IDVPayload is the wire shape of an identity-verification status event.
type IDVPayload struct {
	AttemptID   int64  `json:"attempt_id"`
	UserID      int64  `json:"user_id"`
	Status      string `json:"status"`
	PhotoIDName string `json:"photo_id_name"`
	FullName    string `json:"full_name"`
}

func (p IDVPayload) Event() models.IDVEvent {
	return models.IDVEvent{
		AttemptID:   id.AttemptID(p.AttemptID),
		UserID:      id.UserID(p.UserID),
		Status:      p.Status,
		PhotoIDName: p.PhotoIDName,
		FullName:    p.FullName,
	}
}

// ProctoringPayload is the wire shape of a proctored-exam status event.
type ProctoringPayload struct {
	AttemptID                 int64  `json:"attempt_id"`
	UserID                    int64  `json:"user_id"`
	Status                    string `json:"status"`
	FullName                  string `json:"full_name"`
	ProfileName               string `json:"profile_name"`
	IsPracticeExam            bool   `json:"is_practice_exam"`
	IsProctored               bool   `json:"is_proctored"`
	BackendSupportsOnboarding bool   `json:"backend_supports_onboarding"`
}

func (p ProctoringPayload) Event() models.ProctoringEvent {
	return models.ProctoringEvent{
		AttemptID:                 id.AttemptID(p.AttemptID),
		UserID:                    id.UserID(p.UserID),
		Status:                    p.Status,
		FullName:                  p.FullName,
		ProfileName:               p.ProfileName,
		IsPracticeExam:            p.IsPracticeExam,
		IsProctored:               p.IsProctored,
		BackendSupportsOnboarding: p.BackendSupportsOnboarding,
	}
}

type eventPayload[E any] interface {
	Event() E
}

// Decoder decodes a message body of type P and applies the resulting event.
type Decoder[P eventPayload[E], E any] struct {
	name       string
	reconciler reconcile.Reconciler[E]
	logger     *slog.Logger
}

// NewIDVHandler handles the identity-verification topic.
func NewIDVHandler(r reconcile.Reconciler[models.IDVEvent], logger *slog.Logger) *Decoder[IDVPayload, models.IDVEvent] {
	return newDecoder[IDVPayload]("idv", r, logger)
}

// NewProctoringHandler handles the proctoring topic.
func NewProctoringHandler(r reconcile.Reconciler[models.ProctoringEvent], logger *slog.Logger) *Decoder[ProctoringPayload, models.ProctoringEvent] {
	return newDecoder[ProctoringPayload]("proctoring", r, logger)
}

func newDecoder[P eventPayload[E], E any](name string, r reconcile.Reconciler[E], logger *slog.Logger) *Decoder[P, E] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder[P, E]{name: name, reconciler: r, logger: logger}
}

// Handle decodes msg and applies it. Malformed bodies are permanent
// bad-request errors; the reconciler's own errors pass through unchanged.
func (d *Decoder[P, E]) Handle(ctx context.Context, msg *consumer.Message) error {
	var payload P
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		d.logger.WarnContext(ctx, "malformed event payload",
			"source", d.name,
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed "+d.name+" event")
	}

	ctx = requestcontext.WithRequestID(ctx, messageID(msg))
	ctx = requestcontext.WithTime(ctx, time.Now())
	return d.reconciler.Apply(ctx, payload.Event())
}

func messageID(msg *consumer.Message) string {
	return msg.Topic + "/" + strconv.Itoa(int(msg.Partition)) + "/" + strconv.FormatInt(msg.Offset, 10)
}
