package session

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisRegistry keeps live sessions in Redis so that several authority
// instances agree on which sessions exist. Each session is a value key with
// the session's timeout as TTL; a per-account-per-endpoint list preserves
// issue order for limit eviction.
type RedisRegistry struct {
	client redis.UniversalClient
}

var _ Registry = (*RedisRegistry)(nil)

func NewRedisRegistry(client redis.UniversalClient) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func sessionKey(tenant, accountID, sessionID string) string {
	return fmt.Sprintf("%s:identity:session:%s:%s", tenant, accountID, sessionID)
}

func endpointKey(tenant, accountID, endpoint string) string {
	return fmt.Sprintf("%s:identity:session:endpoint:%s:%s", tenant, accountID, endpoint)
}

func (r *RedisRegistry) Save(ctx context.Context, sess *Session, limit int) error {
	listKey := endpointKey(sess.TenantCode(), sess.AccountID(), sess.Endpoint())

	if limit > 0 {
		size, err := r.client.LLen(ctx, listKey).Result()
		if err != nil {
			return errors.Wrap(err, "redis llen")
		}
		if size >= int64(limit) {
			if err := r.evictOne(ctx, sess, listKey); err != nil {
				return err
			}
		}
	}

	if err := r.client.RPush(ctx, listKey, sess.ID()).Err(); err != nil {
		return errors.Wrap(err, "redis rpush")
	}
	key := sessionKey(sess.TenantCode(), sess.AccountID(), sess.ID())
	if err := r.client.Set(ctx, key, sess.Token(), sess.Timeout()).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

// evictOne removes an already-expired session from the endpoint list when one
// exists; otherwise it kicks the oldest live session.
func (r *RedisRegistry) evictOne(ctx context.Context, sess *Session, listKey string) error {
	ids, err := r.client.LRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		return errors.Wrap(err, "redis lrange")
	}

	for _, id := range ids {
		exists, err := r.client.Exists(ctx, sessionKey(sess.TenantCode(), sess.AccountID(), id)).Result()
		if err != nil {
			return errors.Wrap(err, "redis exists")
		}
		if exists == 0 {
			return errors.Wrap(r.client.LRem(ctx, listKey, 1, id).Err(), "redis lrem")
		}
	}

	oldest, err := r.client.LPop(ctx, listKey).Result()
	if err != nil && err != redis.Nil {
		return errors.Wrap(err, "redis lpop")
	}
	if oldest != "" {
		if err := r.client.Del(ctx, sessionKey(sess.TenantCode(), sess.AccountID(), oldest)).Err(); err != nil {
			return errors.Wrap(err, "redis del")
		}
	}
	return nil
}

func (r *RedisRegistry) Verify(ctx context.Context, sess *Session) (bool, error) {
	key := sessionKey(sess.TenantCode(), sess.AccountID(), sess.ID())
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis exists")
	}
	if exists == 0 {
		return false, nil
	}

	if sess.Source() != "" {
		sourceExists, err := r.client.Exists(ctx, sessionKey(sess.TenantCode(), sess.AccountID(), sess.Source())).Result()
		if err != nil {
			return false, errors.Wrap(err, "redis exists source")
		}
		if sourceExists == 0 {
			return false, nil
		}
	}

	if err := r.client.Expire(ctx, key, sess.Timeout()).Err(); err != nil {
		return false, errors.Wrap(err, "redis expire")
	}
	return true, nil
}

func (r *RedisRegistry) Invalidate(ctx context.Context, sess *Session) error {
	if err := r.client.Del(ctx, sessionKey(sess.TenantCode(), sess.AccountID(), sess.ID())).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	listKey := endpointKey(sess.TenantCode(), sess.AccountID(), sess.Endpoint())
	if err := r.client.LRem(ctx, listKey, 0, sess.ID()).Err(); err != nil && err != redis.Nil {
		return errors.Wrap(err, "redis lrem")
	}
	return nil
}

func (r *RedisRegistry) Clear(ctx context.Context, tenant, accountID string) error {
	patterns := []string{
		fmt.Sprintf("%s:identity:session:%s:*", tenant, accountID),
		fmt.Sprintf("%s:identity:session:endpoint:%s:*", tenant, accountID),
	}
	for _, pattern := range patterns {
		iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
				return errors.Wrap(err, "redis del")
			}
		}
		if err := iter.Err(); err != nil {
			return errors.Wrap(err, "redis scan")
		}
	}
	return nil
}
