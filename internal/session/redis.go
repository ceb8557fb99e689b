package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs the session cache tier with a shared Redis instance so
// multiple server processes observe the same current-session state. This
// is the "cache store URL" configuration surface in the external
// interfaces table.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache constructs a cache backed by the given Redis client. Keys
// are namespaced under prefix to keep the session cache separate from any
// other use of the same Redis instance.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "judgehost:session:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) namespaced(key string) string { return c.prefix + key }

func (c *RedisCache) Get(ctx context.Context, key string) (*Session, bool, error) {
	raw, err := c.client.Get(ctx, c.namespaced(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, false, err
	}
	return &sess, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.namespaced(key), raw, 0).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.namespaced(key)).Err()
}

func (c *RedisCache) Keys(ctx context.Context) ([]string, error) {
	var out []string
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val()[len(c.prefix):])
	}
	return out, iter.Err()
}

// Close releases the underlying Redis client, used by the persistence
// manager's documented close order (flush file, close durable, close
// cache).
func (c *RedisCache) Close() error { return c.client.Close() }
