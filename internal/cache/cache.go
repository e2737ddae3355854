package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	settingsKey  = "tarotTrackerSettings"
	lastCheckKey = "lastNotificationCheck"
)

// ErrNotFound indicates the key holds nothing.
var ErrNotFound = errors.New("cache: not found")

// Store keeps the small state blobs the browser kept in local storage:
// one per-user session snapshot, one settings blob, and the notifier's
// last-check stamp.
type Store struct {
	client    *redis.Client
	namespace string
}

// NewStore returns redis-backed store. The namespace prefixes per-user keys
// ("readingTracker" matches the legacy local storage keys).
func NewStore(client *redis.Client, namespace string) *Store {
	if namespace == "" {
		namespace = "readingTracker"
	}
	return &Store{client: client, namespace: namespace}
}

func (s *Store) userKey(user string) string {
	return fmt.Sprintf("%s_%s", s.namespace, user)
}

// SaveUserBlob stores a user's serialized session state.
func (s *Store) SaveUserBlob(ctx context.Context, user string, data []byte) error {
	return s.client.Set(ctx, s.userKey(user), data, 0).Err()
}

// LoadUserBlob fetches a user's serialized session state.
func (s *Store) LoadUserBlob(ctx context.Context, user string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.userKey(user)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

// DeleteUserBlob drops a user's session state.
func (s *Store) DeleteUserBlob(ctx context.Context, user string) error {
	return s.client.Del(ctx, s.userKey(user)).Err()
}

// SaveSettings stores the serialized settings blob.
func (s *Store) SaveSettings(ctx context.Context, data []byte) error {
	return s.client.Set(ctx, settingsKey, data, 0).Err()
}

// LoadSettings fetches the serialized settings blob.
func (s *Store) LoadSettings(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, settingsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

// LastNotificationCheck returns the day stamp of the last heuristics run,
// empty when the battery has never run.
func (s *Store) LastNotificationCheck(ctx context.Context) (string, error) {
	stamp, err := s.client.Get(ctx, lastCheckKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return stamp, err
}

// SetLastNotificationCheck records the day stamp of a heuristics run.
func (s *Store) SetLastNotificationCheck(ctx context.Context, day string) error {
	return s.client.Set(ctx, lastCheckKey, day, 0).Err()
}
