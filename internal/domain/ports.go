package domain

import (
	"context"
	"io"
	"time"
)

// ResultStore is the durable record store used by the correlator and the history query.
type ResultStore interface {
	// Save persists rec and returns it with its store-assigned ID.
	Save(ctx context.Context, rec Record) (Record, error)

	// ListByOwner returns every record of ownerKey ordered by ascending creation time.
	// An owner without records yields an empty slice and no error.
	ListByOwner(ctx context.Context, ownerKey string) ([]Record, error)
}

// Object is a binary blob to be stored.
type Object struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ObjectStore turns blobs into retrievable URLs.
type ObjectStore interface {
	Upload(ctx context.Context, obj Object) (string, error)
}

// Identity is a verified caller.
type Identity struct {
	OwnerKey string
	Email    string
	Expiry   time.Time
}

// TokenVerifier turns a bearer credential into an Identity.
// It returns ErrTokenExpired or ErrUnauthenticated (possibly wrapped) on failure.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (Identity, error)
}

// User is a registered account, keyed by owner key.
type User struct {
	OwnerKey  string    `json:"uid"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserStore persists user profiles.
type UserStore interface {
	// FindByOwner returns ErrUserNotFound when the owner has no profile.
	FindByOwner(ctx context.Context, ownerKey string) (User, error)
	Create(ctx context.Context, u User) (User, error)
}
