package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskboard/internal/common"
	"taskboard/internal/models"
)

type UserStore struct {
	db  *DB
	now func() time.Time
}

func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db, now: time.Now}
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a new user. It returns common.ErrConflict when the username
// or the email is already taken.
func (s *UserStore) Create(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(username),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	}

	taken, err := s.exists(ctx, user.Username, user.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("user with given username or email already exists: %w", common.ErrConflict)
	}

	_, err = s.db.exec(ctx,
		`INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		// Lost a race with a concurrent registration.
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user with given username or email already exists: %w", common.ErrConflict)
		}
		return nil, fmt.Errorf("UserStore.Create: %w", err)
	}
	return user, nil
}

func (s *UserStore) exists(ctx context.Context, username, email string) (bool, error) {
	var n int
	err := s.db.queryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ? OR email = ?`, username, email).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("UserStore.exists: %w", err)
	}
	return n > 0, nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, "email", NormalizeEmail(email))
}

func (s *UserStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, "username", strings.TrimSpace(username))
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	return s.findOne(ctx, "id", id)
}

// findOne looks a user up by one of the fixed column names above; column is
// never taken from input.
func (s *UserStore) findOne(ctx context.Context, column, value string) (*models.User, error) {
	query := `SELECT id, username, email, password_hash, created_at FROM users WHERE ` + column + ` = ?`
	user := &models.User{}
	err := s.db.queryRow(ctx, query, value).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("UserStore.findBy %s: %w", column, err)
	}
	return user, nil
}
