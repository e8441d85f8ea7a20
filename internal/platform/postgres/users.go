package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dontdude/markcheck/internal/domain"
)

// UserStore persists user profiles.
type UserStore struct {
	db DB
}

var _ domain.UserStore = (*UserStore)(nil)

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) FindByOwner(ctx context.Context, ownerKey string) (domain.User, error) {
	const query = `SELECT owner_key, email, name, created_at FROM users WHERE owner_key = $1`

	var u domain.User
	err := s.db.QueryRow(ctx, query, ownerKey).Scan(&u.OwnerKey, &u.Email, &u.Name, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", classify(err))
	}
	return u, nil
}

// Create inserts u. If the owner already has a profile it is returned unchanged.
func (s *UserStore) Create(ctx context.Context, u domain.User) (domain.User, error) {
	const query = `
		INSERT INTO users (owner_key, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_key) DO NOTHING`

	if _, err := s.db.Exec(ctx, query, u.OwnerKey, u.Email, u.Name); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", classify(err))
	}
	return s.FindByOwner(ctx, u.OwnerKey)
}
