package trademark

import (
	"context"
	"testing"

	"github.com/dontdude/markcheck/internal/apperr"
	"github.com/dontdude/markcheck/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignup_CreatesOnceThenWelcomesBack(t *testing.T) {
	f := newFixture(t)
	id := domain.Identity{OwnerKey: "u1", Email: "owner@example.com"}

	first, err := f.svc.Signup(context.Background(), id, "Kim", "ignored@example.com")
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, "owner@example.com", first.User.Email)
	assert.Equal(t, "Welcome, Kim!", first.Message)

	second, err := f.svc.Signup(context.Background(), id, "Someone Else", "")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, "Kim", second.User.Name)
	assert.Equal(t, "Welcome back, Kim!", second.Message)
}

func TestSignup_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Signup(context.Background(), domain.Identity{OwnerKey: "u1", Email: "a@b.c"}, " ", "")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = f.svc.Signup(context.Background(), domain.Identity{OwnerKey: "u2"}, "Lee", "not-an-email")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestProfile(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Profile(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = f.svc.Signup(context.Background(), domain.Identity{OwnerKey: "u1", Email: "a@b.c"}, "Kim", "")
	require.NoError(t, err)

	u, err := f.svc.Profile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Kim", u.Name)
}
