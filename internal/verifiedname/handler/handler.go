package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	usermodels "nameaffirm/internal/users/models"
	"nameaffirm/internal/verifiedname/models"
	"nameaffirm/internal/verifiedname/service"
	id "nameaffirm/pkg/domain"
	dErrors "nameaffirm/pkg/domain-errors"
	"nameaffirm/pkg/platform/httputil"
	"nameaffirm/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/service_mock.go -package=mocks Service

// Service defines the verified-name operations the handler needs.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.VerifiedName, error)
	GetMostRecent(ctx context.Context, userID id.UserID, requireVerified bool) (*models.VerifiedName, error)
	History(ctx context.Context, userID id.UserID) ([]*models.VerifiedName, error)
	GetConfig(ctx context.Context, userID id.UserID) (*models.Config, error)
	UpdateConfig(ctx context.Context, userID id.UserID, useForCerts bool, changedBy id.UserID) (*models.Config, error)
	User(ctx context.Context, userID id.UserID) (*usermodels.User, error)
	UserByUsername(ctx context.Context, username string) (*usermodels.User, error)
}

// Handler wires verified-name endpoints to the service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a verified-name handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the endpoints on r. Callers apply authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/verified_name", h.HandleGet)
	r.Post("/verified_name", h.HandleCreate)
	r.Get("/verified_name/history", h.HandleHistory)
	r.Get("/verified_name/config", h.HandleGetConfig)
	r.Post("/verified_name/config", h.HandleUpdateConfig)
}

// HandleGet handles GET /verified_name: the most recent verified record, or
// the most recent of any status with require_verified=false.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	requireVerified, err := parseRequireVerified(r.URL.Query().Get("require_verified"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	user, err := h.resolveUser(ctx, r.URL.Query().Get("username"))
	if err != nil {
		h.writeError(ctx, w, requestID, "failed to resolve user", err)
		return
	}

	rec, err := h.service.GetMostRecent(ctx, user.ID, requireVerified)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "there is no verified name related to this user"))
			return
		}
		h.writeError(ctx, w, requestID, "failed to load verified name", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromRecord(rec, user))
}

// HandleCreate handles POST /verified_name.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if req.IsVerified && !requestcontext.IsStaff(ctx) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "must be a staff user to create a verified record"))
		return
	}

	user, err := h.resolveUser(ctx, req.Username)
	if err != nil {
		h.writeError(ctx, w, requestID, "failed to resolve user", err)
		return
	}

	rec, err := h.service.Create(ctx, service.CreateRequest{
		UserID:                 user.ID,
		VerifiedName:           req.VerifiedName,
		ProfileName:            req.ProfileName,
		VerificationAttemptID:  req.verificationAttempt(),
		ProctoredExamAttemptID: req.proctoredAttempt(),
		IsVerified:             req.IsVerified,
	})
	if err != nil {
		h.writeError(ctx, w, requestID, "failed to create verified name", err)
		return
	}

	h.logger.InfoContext(ctx, "verified name created via api",
		"request_id", requestID,
		"user_id", user.ID,
		"caller_id", requestcontext.UserID(ctx),
		"verified_name_id", rec.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromRecord(rec, user))
}

// HandleHistory handles GET /verified_name/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	user, err := h.resolveUser(ctx, r.URL.Query().Get("username"))
	if err != nil {
		h.writeError(ctx, w, requestID, "failed to resolve user", err)
		return
	}

	recs, err := h.service.History(ctx, user.ID)
	if err != nil {
		h.writeError(ctx, w, requestID, "failed to load verified name history", err)
		return
	}
	cfg, err := h.service.GetConfig(ctx, user.ID)
	if err != nil {
		h.writeError(ctx, w, requestID, "failed to load verified name config", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromHistory(recs, user, cfg))
}

// HandleGetConfig handles GET /verified_name/config.
func (h *Handler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	user, err := h.resolveUser(ctx, r.URL.Query().Get("username"))
	if err != nil {
		h.writeError(ctx, w, requestID, "failed to resolve user", err)
		return
	}
	cfg, err := h.service.GetConfig(ctx, user.ID)
	if err != nil {
		h.writeError(ctx, w, requestID, "failed to load verified name config", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromConfig(cfg, user))
}

// HandleUpdateConfig handles POST /verified_name/config.
func (h *Handler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[UpdateConfigRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	user, err := h.resolveUser(ctx, req.Username)
	if err != nil {
		h.writeError(ctx, w, requestID, "failed to resolve user", err)
		return
	}

	cfg, err := h.service.UpdateConfig(ctx, user.ID, *req.UseVerifiedNameForCerts, requestcontext.UserID(ctx))
	if err != nil {
		h.writeError(ctx, w, requestID, "failed to update verified name config", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromConfig(cfg, user))
}

// resolveUser returns the caller, or the named user when the caller is staff.
// Naming any user, the caller included, requires staff.
func (h *Handler) resolveUser(ctx context.Context, username string) (*usermodels.User, error) {
	if username == "" {
		callerID := requestcontext.UserID(ctx)
		if callerID.IsNil() {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
		}
		return h.service.User(ctx, callerID)
	}
	if !requestcontext.IsStaff(ctx) {
		return nil, dErrors.New(dErrors.CodeForbidden, "must be a staff user to perform this request")
	}
	return h.service.UserByUsername(ctx, username)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, requestID, msg string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeUnavailable, dErrors.CodeTimeout:
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestID,
			"error", err,
		)
	default:
		h.logger.WarnContext(ctx, msg,
			"request_id", requestID,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
