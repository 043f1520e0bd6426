// Package redis provides a Redis-backed credential store, for web-style
// deployments where the client core runs next to a session cache rather
// than on a device.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prodonik/tierlist-client/config"
	"github.com/prodonik/tierlist-client/pkg/errors"
)

const keyPrefix = "tierlist:cred:"

// Store implements storage.Store on top of Redis.
type Store struct {
	client *redis.Client
}

// NewStore connects to Redis and verifies connectivity.
func NewStore(cfg *config.StorageConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(errors.ErrStorage, err.Error())
	}

	return &Store{client: client}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// SetItem stores a credential entry. Credentials have no TTL; they live
// until removed.
func (s *Store) SetItem(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, keyPrefix+key, value, 0).Err(); err != nil {
		return errors.Wrap(errors.ErrStorage, err.Error())
	}
	return nil
}

// GetItem retrieves a credential entry.
func (s *Store) GetItem(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		return "", errors.ErrItemNotFound
	}
	if err != nil {
		return "", errors.Wrap(errors.ErrStorage, err.Error())
	}
	return value, nil
}

// RemoveItem deletes a credential entry. Absent keys are a no-op.
func (s *Store) RemoveItem(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return errors.Wrap(errors.ErrStorage, err.Error())
	}
	return nil
}
