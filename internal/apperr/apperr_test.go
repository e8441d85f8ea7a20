package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dontdude/markcheck/internal/domain"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", ValidationField("name", "name is required"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("submit: %w", ValidationField("image", "image is required")), http.StatusBadRequest},
		{"unauthenticated sentinel", domain.ErrUnauthenticated, http.StatusUnauthorized},
		{"expired sentinel", fmt.Errorf("verify: %w", domain.ErrTokenExpired), http.StatusUnauthorized},
		{"dispatch failure", fmt.Errorf("%w: after 3 attempts", domain.ErrDispatch), http.StatusServiceUnavailable},
		{"store unavailable", domain.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"user not found", domain.ErrUserNotFound, http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := domain.ErrDispatch
	err := Wrap(cause, CodeUnavailable, "trademark check could not be started")

	assert.ErrorIs(t, err, domain.ErrDispatch)
	assert.Equal(t, "trademark check could not be started", PublicMessage(err))
	assert.Contains(t, err.Error(), cause.Error())
	assert.NoError(t, Wrap(nil, CodeInternal, "x"))
}

func TestPublicMessage_HidesInternals(t *testing.T) {
	assert.Equal(t, "internal server error", PublicMessage(errors.New("pq: password=secret")))
	assert.Equal(t, "service temporarily unavailable", PublicMessage(domain.ErrStoreUnavailable))
}
