// Package service is the synchronous API over a user's verified-name history:
// direct creation by first-party callers, most-recent and history queries,
// and the per-user certificate config.
package service

import (
	"context"
	"errors"
	"log/slog"

	usermodels "nameaffirm/internal/users/models"
	"nameaffirm/internal/verifiedname/metrics"
	"nameaffirm/internal/verifiedname/models"
	"nameaffirm/internal/verifiedname/store"
	id "nameaffirm/pkg/domain"
	dErrors "nameaffirm/pkg/domain-errors"
	"nameaffirm/pkg/platform/sentinel"
	"nameaffirm/pkg/requestcontext"
)

// Users resolves the accounts records belong to.
type Users interface {
	FindByID(ctx context.Context, userID id.UserID) (*usermodels.User, error)
	FindByUsername(ctx context.Context, username string) (*usermodels.User, error)
}

// Notifier receives a change for every record the service creates.
type Notifier interface {
	Notify(ctx context.Context, change models.Change)
}

// CreateRequest carries the inputs of a direct creation.
type CreateRequest struct {
	UserID                 id.UserID
	VerifiedName           string
	ProfileName            string
	VerificationAttemptID  *id.AttemptID
	ProctoredExamAttemptID *id.AttemptID
	IsVerified             bool
}

type Service struct {
	records  store.Records
	configs  store.Configs
	tx       store.Tx
	users    Users
	logger   *slog.Logger
	metrics  *metrics.Metrics
	notifier Notifier
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// New builds a Service. Writes go through tx so they serialize with the
// event reconcilers working on the same user.
func New(records store.Records, configs store.Configs, tx store.Tx, users Users, opts ...Option) (*Service, error) {
	if records == nil {
		return nil, errors.New("records store is required")
	}
	if configs == nil {
		return nil, errors.New("config store is required")
	}
	if tx == nil {
		return nil, errors.New("tx is required")
	}
	if users == nil {
		return nil, errors.New("user directory is required")
	}
	s := &Service{
		records: records,
		configs: configs,
		tx:      tx,
		users:   users,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create appends a record for req.UserID. Both names are required and at
// most one attempt id may be given. The record starts approved when
// req.IsVerified is set, pending otherwise.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.VerifiedName, error) {
	status := models.StatusPending
	if req.IsVerified {
		status = models.StatusApproved
	}
	rec, err := models.NewVerifiedName(id.NewVerifiedNameID(), models.NewVerifiedNameParams{
		UserID:                 req.UserID,
		VerifiedName:           req.VerifiedName,
		ProfileName:            &req.ProfileName,
		VerificationAttemptID:  req.VerificationAttemptID,
		ProctoredExamAttemptID: req.ProctoredExamAttemptID,
		Status:                 status,
		IsVerified:             req.IsVerified,
	}, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if _, err := s.User(ctx, req.UserID); err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, req.UserID, func(ctx context.Context, records store.Records) error {
		return records.Create(ctx, rec)
	})
	if err != nil {
		return nil, translate(err, "failed to create verified name")
	}

	if s.metrics != nil {
		s.metrics.IncrementCreated(metrics.OriginDirect)
	}
	s.logger.InfoContext(ctx, "verified name created",
		"user_id", rec.UserID,
		"verified_name_id", rec.ID,
		"status", rec.Status,
	)
	if s.notifier != nil {
		s.notifier.Notify(ctx, models.Change{
			Kind:   models.ChangeCreated,
			Record: rec.Clone(),
			At:     rec.Created,
		})
	}
	return rec, nil
}

// GetMostRecent returns the user's newest record. With requireVerified only
// records that are approved or carry the legacy verified flag count.
func (s *Service) GetMostRecent(ctx context.Context, userID id.UserID, requireVerified bool) (*models.VerifiedName, error) {
	f := store.ForUser(userID)
	if requireVerified {
		f = f.OnlyVerified()
	}
	rec, err := s.records.FindMostRecent(ctx, f)
	if err != nil {
		return nil, translate(err, "failed to load verified name")
	}
	return rec, nil
}

// History returns every record for the user, newest first.
func (s *Service) History(ctx context.Context, userID id.UserID) ([]*models.VerifiedName, error) {
	recs, err := s.records.List(ctx, store.ForUser(userID))
	if err != nil {
		return nil, translate(err, "failed to load verified name history")
	}
	return recs, nil
}

// GetConfig returns the user's current config, or the default when none was saved.
func (s *Service) GetConfig(ctx context.Context, userID id.UserID) (*models.Config, error) {
	cfg, err := s.configs.CurrentConfig(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.DefaultConfig(userID), nil
	}
	if err != nil {
		return nil, translate(err, "failed to load verified name config")
	}
	return cfg, nil
}

// UpdateConfig appends a new config row. Saving the current value again is
// a no-op.
func (s *Service) UpdateConfig(ctx context.Context, userID id.UserID, useForCerts bool, changedBy id.UserID) (*models.Config, error) {
	current, err := s.GetConfig(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !current.Created.IsZero() && current.UseVerifiedNameForCerts == useForCerts {
		return current, nil
	}

	cfg := &models.Config{
		UserID:                  userID,
		UseVerifiedNameForCerts: useForCerts,
		ChangedBy:               changedBy,
		Created:                 requestcontext.Now(ctx),
	}
	if err := s.configs.SaveConfig(ctx, cfg); err != nil {
		return nil, translate(err, "failed to save verified name config")
	}
	s.logger.InfoContext(ctx, "verified name config updated",
		"user_id", userID,
		"changed_by", changedBy,
		"use_verified_name_for_certs", useForCerts,
	)
	return cfg, nil
}

// User resolves a user id.
func (s *Service) User(ctx context.Context, userID id.UserID) (*usermodels.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, translateUser(err)
	}
	return u, nil
}

// UserByUsername resolves a username.
func (s *Service) UserByUsername(ctx context.Context, username string) (*usermodels.User, error) {
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, translateUser(err)
	}
	return u, nil
}

func translateUser(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return translate(err, "failed to load user")
}

// translate maps store sentinels onto domain codes. Errors that already
// carry a code pass through.
func translate(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "verified name not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "a verified name already exists for this attempt")
	case errors.Is(err, sentinel.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
