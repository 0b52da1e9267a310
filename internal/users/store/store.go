// Package store resolves platform accounts by id or username.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"nameaffirm/internal/users/models"
	id "nameaffirm/pkg/domain"
	"nameaffirm/pkg/platform/sentinel"
)

// Directory resolves accounts by id or by case-insensitive username.
// Missing accounts are sentinel.ErrNotFound.
type Directory interface {
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

var (
	_ Directory = (*InMemory)(nil)
	_ Directory = (*Postgres)(nil)
)

// InMemory is the directory used when no database is configured.
type InMemory struct {
	mu     sync.RWMutex
	byID   map[id.UserID]*models.User
	byName map[string]id.UserID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:   make(map[id.UserID]*models.User),
		byName: make(map[string]id.UserID),
	}
}

// Save inserts or replaces a user.
func (s *InMemory) Save(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.byName[strings.ToLower(u.Username)]; ok && owner != u.ID {
		return fmt.Errorf("username %q: %w", u.Username, sentinel.ErrConflict)
	}
	if prev, ok := s.byID[u.ID]; ok {
		delete(s.byName, strings.ToLower(prev.Username))
	}
	c := *u
	s.byID[u.ID] = &c
	s.byName[strings.ToLower(u.Username)] = u.ID
	return nil
}

// LoadSeed saves every account in a JSON array of users and returns how
// many were loaded. Nothing is saved when any entry is invalid.
func (s *InMemory) LoadSeed(ctx context.Context, r io.Reader) (int, error) {
	var users []models.User
	if err := json.NewDecoder(r).Decode(&users); err != nil {
		return 0, fmt.Errorf("decode user seed: %w", err)
	}
	for i, u := range users {
		if u.ID.IsNil() {
			return 0, fmt.Errorf("user seed entry %d: id must be positive", i)
		}
		if strings.TrimSpace(u.Username) == "" {
			return 0, fmt.Errorf("user seed entry %d: username is required", i)
		}
	}
	for i := range users {
		if err := s.Save(ctx, &users[i]); err != nil {
			return i, err
		}
	}
	return len(users), nil
}

// LoadSeedFile reads LoadSeed input from path.
func (s *InMemory) LoadSeedFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open user seed: %w", err)
	}
	defer f.Close()
	return s.LoadSeed(ctx, f)
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *InMemory) FindByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byName[strings.ToLower(username)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *s.byID[userID]
	return &c, nil
}

// Postgres reads the auth_user table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const userColumns = `id, username, email, is_staff`

func (s *Postgres) Save(ctx context.Context, u *models.User) error {
	query := `INSERT INTO auth_user (` + userColumns + `) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username,
			email = EXCLUDED.email, is_staff = EXCLUDED.is_staff`
	if _, err := s.db.ExecContext(ctx, query, int64(u.ID), u.Username, u.Email, u.IsStaff); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM auth_user WHERE id = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, int64(userID)))
}

func (s *Postgres) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM auth_user WHERE lower(username) = lower($1)`
	return scanUser(s.db.QueryRowContext(ctx, query, username))
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u      models.User
		userID int64
	)
	if err := row.Scan(&userID, &u.Username, &u.Email, &u.IsStaff); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.ID = id.UserID(userID)
	return &u, nil
}
