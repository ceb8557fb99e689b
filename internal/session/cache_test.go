package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCacheSetGetRoundTrips(t *testing.T) {
	c := NewLocalCache()
	sess := &Session{ID: "s1", Counters: map[string]int64{"x": 1}}

	require.NoError(t, c.Set(context.Background(), "k", sess))

	got, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, int64(1), got.Counters["x"])
}

func TestLocalCacheGetReturnsClonedCountersMap(t *testing.T) {
	c := NewLocalCache()
	sess := &Session{ID: "s1", Counters: map[string]int64{"x": 1}}
	require.NoError(t, c.Set(context.Background(), "k", sess))

	got, _, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	got.Counters["x"] = 99

	again, _, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Counters["x"])
}

func TestLocalCacheMissingKeyReturnsNotOK(t *testing.T) {
	c := NewLocalCache()
	_, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalCacheDeleteRemovesKey(t *testing.T) {
	c := NewLocalCache()
	require.NoError(t, c.Set(context.Background(), "k", &Session{ID: "s1", Counters: map[string]int64{}}))
	require.NoError(t, c.Delete(context.Background(), "k"))

	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalCacheKeysListsAllEntries(t *testing.T) {
	c := NewLocalCache()
	require.NoError(t, c.Set(context.Background(), "a", &Session{ID: "1", Counters: map[string]int64{}}))
	require.NoError(t, c.Set(context.Background(), "b", &Session{ID: "2", Counters: map[string]int64{}}))

	keys, err := c.Keys(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}
