// Package redisstore implements store.Ephemeral on Redis, the deployment
// backend when multiple authority instances share transaction and code state.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/centrid/go-identity-server/store"
)

// Store is a Redis-backed ephemeral store. TTLs are delegated to Redis key
// expiry; GetAndRemove maps to GETDEL, which is atomic server-side.
type Store struct {
	client redis.UniversalClient
}

var _ store.Ephemeral = (*Store)(nil)

// New wraps an existing Redis client.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

func (s *Store) Put(ctx context.Context, tenant, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, namespaced(tenant, key), value, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, tenant, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, namespaced(tenant, key)).Bytes()
	if err == redis.Nil {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}
	return value, nil
}

func (s *Store) GetAndRemove(ctx context.Context, tenant, key string) ([]byte, error) {
	value, err := s.client.GetDel(ctx, namespaced(tenant, key)).Bytes()
	if err == redis.Nil {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis getdel")
	}
	return value, nil
}

func (s *Store) Delete(ctx context.Context, tenant, key string) error {
	if err := s.client.Del(ctx, namespaced(tenant, key)).Err(); err != nil && err != redis.Nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func namespaced(tenant, key string) string {
	return fmt.Sprintf("%s:%s", tenant, key)
}
