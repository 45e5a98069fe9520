/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package userstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/acronis/go-resolvekit/fetchpool"
)

// ErrUserNotFound is returned when there is no user with the requested identifier.
var ErrUserNotFound = errors.New("user not found")

// ErrInvalidUser is returned when a user cannot be created because of invalid attributes.
var ErrInvalidUser = errors.New("invalid user")

// User is the entity served by the resolver.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Store is an origin store of users.
type Store interface {
	// Get returns the user with the given identifier or ErrUserNotFound.
	Get(ctx context.Context, id int64) (User, error)
	// Create creates a new user with the next sequential identifier.
	Create(ctx context.Context, name, email string) (User, error)
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// DefaultUsers returns users the stores are seeded with.
func DefaultUsers() []User {
	return []User{
		{ID: 1, Name: "John Doe", Email: "john@example.com"},
		{ID: 2, Name: "Jane Smith", Email: "jane@example.com"},
		{ID: 3, Name: "Alice Johnson", Email: "alice@example.com"},
	}
}

// FetchFunc adapts the store to the fetch function of the resolver.
// ErrUserNotFound is reported as fetchpool.ErrNotFound, any other error is a fetch failure.
func FetchFunc(store Store) fetchpool.FetchFunc[int64, User] {
	return func(ctx context.Context, id int64) (User, error) {
		user, err := store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return User{}, fetchpool.ErrNotFound
			}
			return User{}, err
		}
		return user, nil
	}
}

func validateNewUser(name, email string) (string, string, error) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" {
		return "", "", fmt.Errorf("%w: name is required", ErrInvalidUser)
	}
	if email == "" {
		return "", "", fmt.Errorf("%w: email is required", ErrInvalidUser)
	}
	return name, email, nil
}

func maxUserID(users []User) int64 {
	var maxID int64
	for _, u := range users {
		if u.ID > maxID {
			maxID = u.ID
		}
	}
	return maxID
}
