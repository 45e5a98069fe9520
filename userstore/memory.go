/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package userstore

import (
	"context"
	"sync"
	"time"
)

// DefaultLatency is the default simulated latency of MemoryStore.
const DefaultLatency = 200 * time.Millisecond

// MemoryStoreOpts represents options for MemoryStore.
type MemoryStoreOpts struct {
	// Latency is added to every Get and Create call.
	Latency time.Duration
	// Seed is the initial set of users. DefaultUsers is used if it's nil.
	Seed []User
}

// MemoryStore is an in-memory Store that simulates a slow database.
type MemoryStore struct {
	latency time.Duration

	mu     sync.RWMutex
	users  map[int64]User
	nextID int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore(opts MemoryStoreOpts) *MemoryStore {
	seed := opts.Seed
	if seed == nil {
		seed = DefaultUsers()
	}
	users := make(map[int64]User, len(seed))
	for _, u := range seed {
		users[u.ID] = u
	}
	return &MemoryStore{latency: opts.Latency, users: users, nextID: maxUserID(seed) + 1}
}

// Get returns the user with the given identifier.
func (s *MemoryStore) Get(ctx context.Context, id int64) (User, error) {
	if err := s.wait(ctx); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

// Create creates a new user.
func (s *MemoryStore) Create(ctx context.Context, name, email string) (User, error) {
	name, email, err := validateNewUser(name, email)
	if err != nil {
		return User{}, err
	}
	if err = s.wait(ctx); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user := User{ID: s.nextID, Name: name, Email: email}
	s.users[user.ID] = user
	s.nextID++
	return user, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close does nothing.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
