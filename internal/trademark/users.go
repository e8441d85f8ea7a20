package trademark

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dontdude/markcheck/internal/apperr"
	"github.com/dontdude/markcheck/internal/domain"
)

// SignupResult is the outcome of a signup call.
type SignupResult struct {
	Message string      `json:"message"`
	User    domain.User `json:"user"`
	Created bool        `json:"-"`
}

// Signup registers the caller's profile. Repeated calls return the existing profile.
func (s *Service) Signup(ctx context.Context, id domain.Identity, name, email string) (SignupResult, error) {
	existing, err := s.users.FindByOwner(ctx, id.OwnerKey)
	switch {
	case err == nil:
		return SignupResult{Message: fmt.Sprintf("Welcome back, %s!", existing.Name), User: existing}, nil
	case !errors.Is(err, domain.ErrUserNotFound):
		return SignupResult{}, fmt.Errorf("find user %s: %w", id.OwnerKey, err)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return SignupResult{}, apperr.ValidationField("name", "name is required")
	}
	// The verified token's email wins over the request body.
	if id.Email != "" {
		email = id.Email
	}
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return SignupResult{}, apperr.ValidationField("email", "a valid email is required")
	}

	u, err := s.users.Create(ctx, domain.User{
		OwnerKey:  id.OwnerKey,
		Email:     email,
		Name:      name,
		CreatedAt: s.now(),
	})
	if err != nil {
		return SignupResult{}, fmt.Errorf("create user %s: %w", id.OwnerKey, err)
	}
	return SignupResult{Message: fmt.Sprintf("Welcome, %s!", u.Name), User: u, Created: true}, nil
}

// Profile returns the caller's profile or an error wrapping domain.ErrUserNotFound.
func (s *Service) Profile(ctx context.Context, ownerKey string) (domain.User, error) {
	u, err := s.users.FindByOwner(ctx, ownerKey)
	if err != nil {
		return domain.User{}, fmt.Errorf("find user %s: %w", ownerKey, err)
	}
	return u, nil
}
