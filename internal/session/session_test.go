package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judgehost/judgehost/internal/persistence"
	"github.com/judgehost/judgehost/internal/session"
)

func newAdapter(t *testing.T) *persistence.Adapter {
	t.Helper()
	mgr := persistence.New(context.Background(), persistence.Config{})
	return mgr.Adapter(persistence.DomainSessions)
}

func TestDeriveIDIsDeterministicPerUserAndProject(t *testing.T) {
	a := session.DeriveID("alice", "proj")
	b := session.DeriveID("alice", "proj")
	c := session.DeriveID("alice", "other")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestGetOrCreateSessionReturnsSameSessionOnSecondCall(t *testing.T) {
	mgr := session.NewManager(nil, newAdapter(t), nil)

	first, err := mgr.GetOrCreateSession(context.Background(), "alice", "proj")
	require.NoError(t, err)

	second, err := mgr.GetOrCreateSession(context.Background(), "alice", "proj")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, session.DeriveID("alice", "proj"), first.ID)
}

func TestGetOrCreateSessionDefaultsEmptyProject(t *testing.T) {
	mgr := session.NewManager(nil, newAdapter(t), nil)
	sess, err := mgr.GetOrCreateSession(context.Background(), "bob", "")
	require.NoError(t, err)
	assert.Equal(t, "default", sess.Project)
}

func TestStartSessionReplacesExistingSession(t *testing.T) {
	mgr := session.NewManager(nil, newAdapter(t), nil)

	first, err := mgr.StartSession(context.Background(), "alice", "proj")
	require.NoError(t, err)
	require.NoError(t, mgr.IncrementCounter(context.Background(), "judgments"))

	second, err := mgr.StartSession(context.Background(), "alice", "proj")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(0), second.Counters["judgments"])
}

func TestIncrementCounterRequiresCurrentSession(t *testing.T) {
	mgr := session.NewManager(nil, newAdapter(t), nil)
	err := mgr.IncrementCounter(context.Background(), "judgments")
	assert.Error(t, err)
}

func TestIncrementCounterUpdatesCurrentAndCache(t *testing.T) {
	mgr := session.NewManager(nil, newAdapter(t), nil)
	_, err := mgr.GetOrCreateSession(context.Background(), "alice", "proj")
	require.NoError(t, err)

	require.NoError(t, mgr.IncrementCounter(context.Background(), "judgments"))
	require.NoError(t, mgr.IncrementCounter(context.Background(), "judgments"))

	assert.Equal(t, int64(2), mgr.Current().Counters["judgments"])

	refetched, err := mgr.GetOrCreateSession(context.Background(), "alice", "proj")
	require.NoError(t, err)
	assert.Equal(t, int64(2), refetched.Counters["judgments"])
}

func TestIncrementCounterPropagatesSnakeCaseFieldsToDurable(t *testing.T) {
	adapter := newAdapter(t)
	mgr := session.NewManager(nil, adapter, nil)
	sess, err := mgr.GetOrCreateSession(context.Background(), "alice", "proj")
	require.NoError(t, err)

	require.NoError(t, mgr.IncrementCounter(context.Background(), "toolCalls"))

	doc, err := adapter.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	counters, ok := doc["counters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(1), counters["tool_calls"])
	assert.NotContains(t, counters, "toolCalls")
}

func TestEndSessionClearsCurrentAndCache(t *testing.T) {
	mgr := session.NewManager(nil, newAdapter(t), nil)
	sess, err := mgr.GetOrCreateSession(context.Background(), "alice", "proj")
	require.NoError(t, err)

	ended, reason, err := mgr.EndSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.True(t, ended)
	assert.Empty(t, reason)
	assert.Nil(t, mgr.Current())

	summary, err := mgr.GetSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ActiveSessions)
}

func TestEndSessionUnknownIDReturnsNotFound(t *testing.T) {
	mgr := session.NewManager(nil, newAdapter(t), nil)
	ended, reason, err := mgr.EndSession(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.False(t, ended)
	assert.Equal(t, "session_not_found", reason)
}

func TestGetSummaryCountsDistinctSessions(t *testing.T) {
	mgr := session.NewManager(nil, newAdapter(t), nil)
	_, err := mgr.GetOrCreateSession(context.Background(), "alice", "proj")
	require.NoError(t, err)
	_, err = mgr.GetOrCreateSession(context.Background(), "bob", "proj")
	require.NoError(t, err)

	summary, err := mgr.GetSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ActiveSessions)
}
