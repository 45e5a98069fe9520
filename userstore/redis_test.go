/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package userstore

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"github.com/stretchr/testify/require"
)

// newTestRedisStore returns a store over a real Redis server, the test is skipped if there is none.
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("RESOLVEKIT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RESOLVEKIT_TEST_REDIS_ADDR is not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	prefix := "resolvekit-test:" + xid.New().String() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		_ = client.Close()
	})
	return NewRedisStore(client, prefix)
}

func TestRedisStore(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Seed(ctx, DefaultUsers()))

	user, err := store.Get(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, User{ID: 3, Name: "Alice Johnson", Email: "alice@example.com"}, user)

	_, err = store.Get(ctx, 33)
	require.ErrorIs(t, err, ErrUserNotFound)

	created, err := store.Create(ctx, "Bob", "bob@example.com")
	require.NoError(t, err)
	require.Equal(t, int64(4), created.ID)

	// Seeding again must neither overwrite users nor move the sequence back.
	require.NoError(t, store.Seed(ctx, []User{{ID: 1, Name: "Other", Email: "other@example.com"}}))
	user, err = store.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "John Doe", user.Name)

	created, err = store.Create(ctx, "Carol", "carol@example.com")
	require.NoError(t, err)
	require.Equal(t, int64(5), created.ID)

	_, err = store.Create(ctx, "", "")
	require.ErrorIs(t, err, ErrInvalidUser)
}
