/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package userstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix is the default prefix of keys used by RedisStore.
const DefaultRedisKeyPrefix = "resolvekit:"

// RedisStore is a Store that keeps JSON-encoded users in Redis under "<prefix>user:<id>" keys.
// Identifiers are allocated with INCR of the "<prefix>user:seq" key.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a new RedisStore. The store owns the client and closes it on Close.
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{client: client, prefix: keyPrefix}
}

// Seed writes users that don't exist yet and moves the identifier sequence past them.
func (s *RedisStore) Seed(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, u := range users {
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		pipe.SetNX(ctx, s.userKey(u.ID), data, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}

	maxID := maxUserID(users)
	seq, err := s.client.Get(ctx, s.seqKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("get user sequence: %w", err)
	}
	if seq < maxID {
		if err = s.client.Set(ctx, s.seqKey(), maxID, 0).Err(); err != nil {
			return fmt.Errorf("set user sequence: %w", err)
		}
	}
	return nil
}

// Get returns the user with the given identifier.
func (s *RedisStore) Get(ctx context.Context, id int64) (User, error) {
	data, err := s.client.Get(ctx, s.userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	var user User
	if err = json.Unmarshal(data, &user); err != nil {
		return User{}, fmt.Errorf("decode user %d: %w", id, err)
	}
	return user, nil
}

// Create creates a new user.
func (s *RedisStore) Create(ctx context.Context, name, email string) (User, error) {
	name, email, err := validateNewUser(name, email)
	if err != nil {
		return User{}, err
	}
	id, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return User{}, fmt.Errorf("allocate user id: %w", err)
	}
	user := User{ID: id, Name: name, Email: email}
	data, err := json.Marshal(user)
	if err != nil {
		return User{}, err
	}
	if err = s.client.Set(ctx, s.userKey(id), data, 0).Err(); err != nil {
		return User{}, fmt.Errorf("create user %d: %w", id, err)
	}
	return user, nil
}

// Ping checks the connection to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) userKey(id int64) string {
	return s.prefix + "user:" + strconv.FormatInt(id, 10)
}

func (s *RedisStore) seqKey() string {
	return s.prefix + "user:seq"
}
