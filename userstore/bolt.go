/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package userstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"

	"github.com/acronis/go-resolvekit/log"
	"github.com/acronis/go-resolvekit/retry"
)

// Default values for BoltStore.
const (
	DefaultBoltBucket      = "users"
	DefaultBoltOpenTimeout = time.Second
)

// BoltStoreOpts represents options for BoltStore.
type BoltStoreOpts struct {
	// Bucket is the name of the bucket with users. DefaultBoltBucket is used if it's empty.
	Bucket string

	// OpenTimeout is the time to wait for the file lock on every open attempt.
	// DefaultBoltOpenTimeout is used if it's 0.
	OpenTimeout time.Duration

	// RetryPolicy is used to retry opening the database while its file is locked by another process.
	// By default, opening is retried 5 times with exponential backoff.
	RetryPolicy retry.Policy

	// Seed is written to the bucket if it's empty.
	Seed []User

	// Logger is used for logging open retries. Logging is disabled if it's nil.
	Logger log.FieldLogger
}

// BoltStore is a Store that keeps JSON-encoded users in a bbolt database, keyed by the big-endian identifier.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
}

var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens (or creates) a bbolt database at the given path.
func OpenBoltStore(ctx context.Context, path string, opts BoltStoreOpts) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt database path must not be empty")
	}
	bucket := []byte(DefaultBoltBucket)
	if opts.Bucket != "" {
		bucket = []byte(opts.Bucket)
	}
	openTimeout := opts.OpenTimeout
	if openTimeout == 0 {
		openTimeout = DefaultBoltOpenTimeout
	}
	policy := opts.RetryPolicy
	if policy == nil {
		policy = retry.NewExponentialBackoffPolicy(100*time.Millisecond, 5)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	var db *bolt.DB
	isRetryable := func(err error) bool {
		return errors.Is(err, berrors.ErrTimeout)
	}
	notify := func(err error, d time.Duration) {
		logger.Warn("bolt database is locked, retrying", log.String("path", path), log.Error(err),
			log.Duration("delay", d))
	}
	if err := retry.DoWithRetry(ctx, policy, isRetryable, notify, func(ctx context.Context) error {
		var openErr error
		db, openErr = bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
		return openErr
	}); err != nil {
		return nil, fmt.Errorf("open bolt database %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		if b.Stats().KeyN != 0 || len(opts.Seed) == 0 {
			return nil
		}
		for _, u := range opts.Seed {
			if err = putUser(b, u); err != nil {
				return err
			}
		}
		return b.SetSequence(uint64(maxUserID(opts.Seed))) // nolint: gosec // ids are positive
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt bucket: %w", err)
	}

	return &BoltStore{db: db, bucket: bucket}, nil
}

// Get returns the user with the given identifier.
func (s *BoltStore) Get(_ context.Context, id int64) (User, error) {
	var user User
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get(idToKey(id))
		if v == nil {
			return ErrUserNotFound
		}
		return json.Unmarshal(v, &user)
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Create creates a new user using the bucket sequence as the identifier.
func (s *BoltStore) Create(_ context.Context, name, email string) (User, error) {
	name, email, err := validateNewUser(name, email)
	if err != nil {
		return User{}, err
	}
	var user User
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		seq, seqErr := b.NextSequence()
		if seqErr != nil {
			return seqErr
		}
		user = User{ID: int64(seq), Name: name, Email: email} // nolint: gosec // sequence fits int64
		return putUser(b, user)
	})
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Ping checks that the users bucket is accessible.
func (s *BoltStore) Ping(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(s.bucket) == nil {
			return fmt.Errorf("bucket %q not found", s.bucket)
		}
		return nil
	})
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func putUser(b *bolt.Bucket, u User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return b.Put(idToKey(u.ID), data)
}

func idToKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id)) // nolint: gosec // sortable key
	return key
}
