package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"nameaffirm/internal/verifiedname/models"
	id "nameaffirm/pkg/domain"
	"nameaffirm/pkg/platform/sentinel"
	txcontext "nameaffirm/pkg/platform/tx"
)

const recordColumns = `id, user_id, verified_name, profile_name, verification_attempt_id,
	proctored_exam_attempt_id, status, is_verified, created, modified`

// PostgresStore persists records in the verified_names table. Every query
// runs on the transaction carried by ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, rec *models.VerifiedName) error {
	query := `INSERT INTO verified_names (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query, recordArgs(rec)...)
	if err != nil {
		return classify("create verified name", err)
	}
	return nil
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, rec *models.VerifiedName, guard Filter) error {
	where, guardArgs := guard.where(11)
	query := `INSERT INTO verified_names (` + recordColumns + `)
		SELECT $1::uuid, $2::bigint, $3::text, $4::text, $5::bigint,
			$6::bigint, $7::text, $8::boolean, $9::timestamptz, $10::timestamptz
		WHERE NOT EXISTS (SELECT 1 FROM verified_names WHERE ` + where + `)`
	args := append(recordArgs(rec), guardArgs...)
	res, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return classify("create verified name", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create verified name: rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*models.VerifiedName, error) {
	where, args := f.where(1)
	query := `SELECT ` + recordColumns + ` FROM verified_names WHERE ` + where +
		` ORDER BY created DESC, id DESC`
	rows, err := txcontext.ExecutorFor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list verified names", err)
	}
	defer rows.Close()

	var out []*models.VerifiedName
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verified name: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list verified names", err)
	}
	return out, nil
}

func (s *PostgresStore) FindMostRecent(ctx context.Context, f Filter) (*models.VerifiedName, error) {
	where, args := f.where(1)
	query := `SELECT ` + recordColumns + ` FROM verified_names WHERE ` + where +
		` ORDER BY created DESC, id DESC LIMIT 1`
	rec, err := scanRecord(txcontext.ExecutorFor(ctx, s.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, classify("find verified name", err)
	}
	return rec, nil
}

func (s *PostgresStore) LinkVerificationAttempt(ctx context.Context, f Filter, attemptID id.AttemptID, now time.Time) (int, error) {
	where, args := f.WithoutAttempt().where(3)
	query := `UPDATE verified_names SET verification_attempt_id = $1, modified = $2 WHERE ` + where
	res, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		append([]any{int64(attemptID), now}, args...)...)
	if err != nil {
		return 0, classify("link verification attempt", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("link verification attempt: rows affected: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) Update(ctx context.Context, rec *models.VerifiedName) error {
	query := `UPDATE verified_names
		SET status = $2, is_verified = $3, verification_attempt_id = $4,
			proctored_exam_attempt_id = $5, modified = $6
		WHERE id = $1`
	res, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(rec.ID),
		string(rec.Status),
		rec.IsVerified,
		nullAttempt(rec.VerificationAttemptID),
		nullAttempt(rec.ProctoredExamAttemptID),
		rec.Modified,
	)
	if err != nil {
		return classify("update verified name", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update verified name: rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveConfig(ctx context.Context, cfg *models.Config) error {
	query := `INSERT INTO verified_name_configs (user_id, use_verified_name_for_certs, changed_by, created)
		VALUES ($1, $2, $3, $4)`
	_, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		int64(cfg.UserID), cfg.UseVerifiedNameForCerts, int64(cfg.ChangedBy), cfg.Created)
	if err != nil {
		return classify("save verified name config", err)
	}
	return nil
}

func (s *PostgresStore) CurrentConfig(ctx context.Context, userID id.UserID) (*models.Config, error) {
	query := `SELECT user_id, use_verified_name_for_certs, changed_by, created
		FROM verified_name_configs WHERE user_id = $1
		ORDER BY created DESC, id DESC LIMIT 1`
	var (
		uid, changedBy int64
		cfg            models.Config
	)
	err := txcontext.ExecutorFor(ctx, s.db).QueryRowContext(ctx, query, int64(userID)).
		Scan(&uid, &cfg.UseVerifiedNameForCerts, &changedBy, &cfg.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, classify("load verified name config", err)
	}
	cfg.UserID = id.UserID(uid)
	cfg.ChangedBy = id.UserID(changedBy)
	return &cfg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.VerifiedName, error) {
	var (
		recordID    uuid.UUID
		userID      int64
		rec         models.VerifiedName
		profileName sql.NullString
		idvAttempt  sql.NullInt64
		examAttempt sql.NullInt64
		status      string
	)
	if err := row.Scan(
		&recordID,
		&userID,
		&rec.VerifiedName,
		&profileName,
		&idvAttempt,
		&examAttempt,
		&status,
		&rec.IsVerified,
		&rec.Created,
		&rec.Modified,
	); err != nil {
		return nil, err
	}
	parsed, err := models.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("verified name %s has unknown status %q", recordID, status)
	}
	rec.ID = id.VerifiedNameID(recordID)
	rec.UserID = id.UserID(userID)
	rec.Status = parsed
	if profileName.Valid {
		rec.ProfileName = &profileName.String
	}
	if idvAttempt.Valid {
		rec.VerificationAttemptID = models.AttemptPtr(id.AttemptID(idvAttempt.Int64))
	}
	if examAttempt.Valid {
		rec.ProctoredExamAttemptID = models.AttemptPtr(id.AttemptID(examAttempt.Int64))
	}
	return &rec, nil
}

func recordArgs(rec *models.VerifiedName) []any {
	var profile sql.NullString
	if rec.ProfileName != nil {
		profile = sql.NullString{String: *rec.ProfileName, Valid: true}
	}
	return []any{
		uuid.UUID(rec.ID),
		int64(rec.UserID),
		rec.VerifiedName,
		profile,
		nullAttempt(rec.VerificationAttemptID),
		nullAttempt(rec.ProctoredExamAttemptID),
		string(rec.Status),
		rec.IsVerified,
		rec.Created,
		rec.Modified,
	}
}

func nullAttempt(a *id.AttemptID) sql.NullInt64 {
	if a == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*a), Valid: true}
}

// Postgres error codes the store maps onto sentinels.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// classify maps driver errors onto sentinels so callers can decide whether
// to retry.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", op, errors.Join(sentinel.ErrConflict, err))
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return fmt.Errorf("%s: %w", op, errors.Join(sentinel.ErrUnavailable, err))
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%s: %w", op, errors.Join(sentinel.ErrUnavailable, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// lockKey namespaces the advisory lock so it cannot collide with other users
// of pg_advisory_xact_lock on the same database.
func lockKey(userID id.UserID) string {
	return "verified_name:" + strconv.FormatInt(int64(userID), 10)
}
