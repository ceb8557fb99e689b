package session

import (
	"context"
	"sync"
)

// Cache is the session cache tier. getOrCreateSession consults it before
// touching the durable store; at most one cached session per key exists at
// any instant.
type Cache interface {
	Get(ctx context.Context, key string) (*Session, bool, error)
	Set(ctx context.Context, key string, sess *Session) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// LocalCache is the default, process-local cache tier.
type LocalCache struct {
	mu   sync.RWMutex
	data map[string]*Session
}

// NewLocalCache constructs an empty process-local cache.
func NewLocalCache() *LocalCache {
	return &LocalCache{data: make(map[string]*Session)}
}

func (c *LocalCache) Get(_ context.Context, key string) (*Session, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sess, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	return sess.clone(), true, nil
}

func (c *LocalCache) Set(_ context.Context, key string, sess *Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = sess.clone()
	return nil
}

func (c *LocalCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *LocalCache) Keys(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	return keys, nil
}
