package persistence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judgehost/judgehost/internal/persistence"
)

func TestNewSelectsMemoryWhenNoDurableOrDataDirConfigured(t *testing.T) {
	mgr := persistence.New(context.Background(), persistence.Config{})
	assert.Equal(t, persistence.BackendMemory, mgr.Backend())
}

func TestNewSelectsFileWhenDataDirConfigured(t *testing.T) {
	mgr := persistence.New(context.Background(), persistence.Config{DataDir: t.TempDir()})
	assert.Equal(t, persistence.BackendFile, mgr.Backend())
}

type fakeDurableStore struct {
	docs    map[string]persistence.Document
	pingErr error
}

func (f *fakeDurableStore) Put(_ context.Context, _ persistence.Domain, id string, doc persistence.Document) error {
	f.docs[id] = doc
	return nil
}
func (f *fakeDurableStore) Get(_ context.Context, _ persistence.Domain, id string) (persistence.Document, error) {
	return f.docs[id], nil
}
func (f *fakeDurableStore) Delete(_ context.Context, _ persistence.Domain, id string) error {
	delete(f.docs, id)
	return nil
}
func (f *fakeDurableStore) List(context.Context, persistence.Domain) ([]persistence.Document, error) {
	var out []persistence.Document
	for _, d := range f.docs {
		out = append(out, d)
	}
	return out, nil
}
func (f *fakeDurableStore) Search(ctx context.Context, d persistence.Domain, predicate func(persistence.Document) bool) ([]persistence.Document, error) {
	docs, _ := f.List(ctx, d)
	var out []persistence.Document
	for _, doc := range docs {
		if predicate == nil || predicate(doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}
func (f *fakeDurableStore) Close(context.Context) error { return nil }
func (f *fakeDurableStore) Ping(context.Context) error  { return f.pingErr }

func TestNewSelectsDurableWhenDialSucceeds(t *testing.T) {
	store := &fakeDurableStore{docs: make(map[string]persistence.Document)}
	mgr := persistence.New(context.Background(), persistence.Config{
		DurableURL: "mongodb://fake",
		Dial: func(context.Context, string) (persistence.DurableStore, error) {
			return store, nil
		},
	})
	assert.Equal(t, persistence.BackendDurable, mgr.Backend())

	health := mgr.Health(context.Background())
	assert.Equal(t, persistence.StatusHealthy, health["postgres"].Status)
}

func TestNewFallsBackToFileWhenDurableDialFails(t *testing.T) {
	mgr := persistence.New(context.Background(), persistence.Config{
		DurableURL: "mongodb://fake",
		DataDir:    t.TempDir(),
		Dial: func(context.Context, string) (persistence.DurableStore, error) {
			return nil, errors.New("dial failed")
		},
	})
	assert.Equal(t, persistence.BackendFile, mgr.Backend())

	health := mgr.Health(context.Background())
	assert.Equal(t, persistence.StatusConnectionFailed, health["postgres"].Status)
}

func TestHealthReportsNotConfiguredWithoutDurableURL(t *testing.T) {
	mgr := persistence.New(context.Background(), persistence.Config{})
	health := mgr.Health(context.Background())
	assert.Equal(t, persistence.StatusNotConfigured, health["postgres"].Status)
}

func TestAdapterPutGetRoundTripsThroughActiveBackend(t *testing.T) {
	mgr := persistence.New(context.Background(), persistence.Config{})
	adapter := mgr.Adapter(persistence.DomainJudgments)

	require.NoError(t, adapter.Put(context.Background(), "1", persistence.Document{"id": "1", "score": 5}))
	got, err := adapter.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.EqualValues(t, 5, got["score"])
}

func TestCloseInvokesCacheCloser(t *testing.T) {
	closed := false
	mgr := persistence.New(context.Background(), persistence.Config{
		CacheCloser: func(context.Context) error {
			closed = true
			return nil
		},
	})
	require.NoError(t, mgr.Close(context.Background()))
	assert.True(t, closed)
}
