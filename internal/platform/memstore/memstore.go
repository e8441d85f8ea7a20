// Package memstore keeps results and users in process memory.
// It backs STORE_BACKEND=memory and tests; nothing survives a restart.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dontdude/markcheck/internal/domain"
)

// ResultStore is an in-memory domain.ResultStore.
type ResultStore struct {
	mu      sync.RWMutex
	nextID  int64
	byOwner map[string][]domain.Record
}

var _ domain.ResultStore = (*ResultStore)(nil)

// NewResultStore returns an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{byOwner: make(map[string][]domain.Record)}
}

// Save appends rec to its owner's history.
func (s *ResultStore) Save(ctx context.Context, rec domain.Record) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Results = append([]byte(nil), rec.Results...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	s.byOwner[rec.OwnerKey] = append(s.byOwner[rec.OwnerKey], rec)
	return rec, nil
}

// ListByOwner returns a copy of the owner's records, oldest first.
func (s *ResultStore) ListByOwner(ctx context.Context, ownerKey string) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := append([]domain.Record{}, s.byOwner[ownerKey]...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UserStore is an in-memory domain.UserStore.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

var _ domain.UserStore = (*UserStore)(nil)

// NewUserStore returns an empty store.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]domain.User)}
}

func (s *UserStore) FindByOwner(_ context.Context, ownerKey string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[ownerKey]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

// Create stores u unless the owner already has a profile, in which case the
// existing profile is returned.
func (s *UserStore) Create(_ context.Context, u domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[u.OwnerKey]; ok {
		return existing, nil
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.OwnerKey] = u
	return u, nil
}
