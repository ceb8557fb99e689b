// Package session implements the deterministic per-(user, project) session
// lifecycle: cache + durable store coordination, monotonic counters, and
// replace-on-start semantics.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/judgehost/judgehost/internal/persistence"
	"github.com/judgehost/judgehost/internal/telemetry"
)

const defaultProject = "default"

// Session is the per-(user, project) state record.
type Session struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId"`
	Project        string         `json:"project"`
	CreatedAt      time.Time      `json:"createdAt"`
	LastActivityAt time.Time      `json:"lastActivityAt"`
	Counters       map[string]int64 `json:"counters"`
	Context        map[string]any `json:"context,omitempty"`
}

func (s *Session) clone() *Session {
	cp := *s
	cp.Counters = make(map[string]int64, len(s.Counters))
	for k, v := range s.Counters {
		cp.Counters[k] = v
	}
	return &cp
}

// key is the cache key format: userId + ":" + project.
func key(userID, project string) string {
	if project == "" {
		project = defaultProject
	}
	return userID + ":" + project
}

// DeriveID returns the deterministic session identifier for (userID,
// project), stable across restarts for an identical key. A random
// identifier path existed in the source system this server replaces but
// was documented as legacy; this implementation always derives
// deterministically.
func DeriveID(userID, project string) string {
	sum := sha256.Sum256([]byte(key(userID, project)))
	return hex.EncodeToString(sum[:])[:32]
}

// Manager coordinates the session cache and the durable session store.
type Manager struct {
	mu      sync.Mutex
	cache   Cache
	durable *persistence.Adapter
	logger  telemetry.Logger

	currentMu sync.Mutex
	current   *Session
}

// NewManager constructs a Manager. durable may be nil if no durable tier is
// configured; cache defaults to an in-process map if nil.
func NewManager(cache Cache, durable *persistence.Adapter, logger telemetry.Logger) *Manager {
	if cache == nil {
		cache = NewLocalCache()
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Manager{cache: cache, durable: durable, logger: logger}
}

// GetOrCreateSession returns the cached session for (userID, project),
// refreshing its last-activity time, or creates a fresh one: derives the
// deterministic ID, writes it to the durable store if one is configured (a
// failed write is logged, not returned), then caches it and marks it
// current. That durable write is the session record itself; no separate
// audit row is inserted.
func (m *Manager) GetOrCreateSession(ctx context.Context, userID, project string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked(ctx, userID, project)
}

func (m *Manager) getOrCreateLocked(ctx context.Context, userID, project string) (*Session, error) {
	k := key(userID, project)
	if sess, ok, err := m.cache.Get(ctx, k); err != nil {
		return nil, err
	} else if ok {
		sess.LastActivityAt = time.Now()
		if err := m.cache.Set(ctx, k, sess); err != nil {
			m.logger.Warn(ctx, "session cache refresh failed", "key", k, "error", err.Error())
		}
		m.setCurrent(sess)
		return sess.clone(), nil
	}

	now := time.Now()
	sess := &Session{
		ID:             DeriveID(userID, project),
		UserID:         userID,
		Project:        normalizeProject(project),
		CreatedAt:      now,
		LastActivityAt: now,
		Counters:       map[string]int64{"judgments": 0, "digests": 0, "feedback": 0},
	}

	if m.durable != nil {
		if err := m.durable.Put(ctx, sess.ID, toDocument(sess)); err != nil {
			m.logger.Error(ctx, "durable session create failed", "sessionId", sess.ID, "error", err.Error())
		}
	}

	if err := m.cache.Set(ctx, k, sess); err != nil {
		return nil, err
	}
	m.setCurrent(sess)
	return sess.clone(), nil
}

// StartSession is GetOrCreateSession with explicit replacement semantics:
// any existing session for (userID, project) is ended first.
func (m *Manager) StartSession(ctx context.Context, userID, project string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(userID, project)
	if existing, ok, err := m.cache.Get(ctx, k); err == nil && ok {
		if _, _, endErr := m.endLocked(ctx, existing.ID, k); endErr != nil {
			m.logger.Warn(ctx, "session replacement end failed", "sessionId", existing.ID, "error", endErr.Error())
		}
	}
	return m.getOrCreateLocked(ctx, userID, project)
}

// EndSession flushes counters to the durable repository before deleting
// from the cache and the session store. Unknown session IDs return a
// not-found result without raising.
func (m *Manager) EndSession(ctx context.Context, sessionID string) (ended bool, reason string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, k, ok := m.findByID(ctx, sessionID)
	if !ok {
		return false, "session_not_found", nil
	}
	return m.endLocked(ctx, sess.ID, k)
}

func (m *Manager) endLocked(ctx context.Context, sessionID, cacheKey string) (bool, string, error) {
	sess, ok, err := m.cache.Get(ctx, cacheKey)
	if err != nil {
		return false, "", err
	}
	if !ok || sess.ID != sessionID {
		return false, "session_not_found", nil
	}

	if m.durable != nil {
		if err := m.durable.Put(ctx, sess.ID, toDocument(sess)); err != nil {
			m.logger.Error(ctx, "flushing session counters failed", "sessionId", sess.ID, "error", err.Error())
		}
	}
	if err := m.cache.Delete(ctx, cacheKey); err != nil {
		m.logger.Error(ctx, "session cache delete failed", "sessionId", sess.ID, "error", err.Error())
	}
	if m.durable != nil {
		if err := m.durable.Delete(ctx, sess.ID); err != nil {
			m.logger.Error(ctx, "durable session delete failed", "sessionId", sess.ID, "error", err.Error())
		}
	}

	m.currentMu.Lock()
	if m.current != nil && m.current.ID == sess.ID {
		m.current = nil
	}
	m.currentMu.Unlock()

	return true, "", nil
}

// IncrementCounter increments field on the current session in cache and
// propagates best-effort to the session store and durable repository.
func (m *Manager) IncrementCounter(ctx context.Context, field string) error {
	m.currentMu.Lock()
	cur := m.current
	m.currentMu.Unlock()
	if cur == nil {
		return errors.New("no current session")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(cur.UserID, cur.Project)
	sess, ok, err := m.cache.Get(ctx, k)
	if err != nil || !ok {
		return fmt.Errorf("session not cached: %w", err)
	}
	sess.Counters[field]++
	sess.LastActivityAt = time.Now()
	if err := m.cache.Set(ctx, k, sess); err != nil {
		m.logger.Warn(ctx, "counter cache propagation failed", "field", field, "error", err.Error())
	}
	if m.durable != nil {
		if err := m.durable.Put(ctx, sess.ID, toDocument(sess)); err != nil {
			m.logger.Warn(ctx, "counter durable propagation failed", "field", field, "error", err.Error())
		}
	}
	m.setCurrent(sess)
	return nil
}

// Current returns the session most recently started or fetched, or nil if
// no startSession has succeeded since the last endSession of the current
// session.
func (m *Manager) Current() *Session {
	m.currentMu.Lock()
	defer m.currentMu.Unlock()
	if m.current == nil {
		return nil
	}
	return m.current.clone()
}

func (m *Manager) setCurrent(sess *Session) {
	m.currentMu.Lock()
	m.current = sess
	m.currentMu.Unlock()
}

func (m *Manager) findByID(ctx context.Context, sessionID string) (*Session, string, bool) {
	keys, err := m.cache.Keys(ctx)
	if err != nil {
		return nil, "", false
	}
	for _, k := range keys {
		sess, ok, err := m.cache.Get(ctx, k)
		if err == nil && ok && sess.ID == sessionID {
			return sess, k, true
		}
	}
	return nil, "", false
}

// Summary reports the total number of currently cached sessions (one per
// (user, project) key), returned by the session tool's "summary" action.
type Summary struct {
	ActiveSessions int `json:"activeSessions"`
}

// GetSummary reports the number of cached sessions.
func (m *Manager) GetSummary(ctx context.Context) (Summary, error) {
	keys, err := m.cache.Keys(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{ActiveSessions: len(keys)}, nil
}

func toSnakeCase(s string) string {
	var out []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			out = append(out, '_', c+'a'-'A')
			continue
		}
		out = append(out, c)
	}
	return string(out)
}

func normalizeProject(project string) string {
	if project == "" {
		return defaultProject
	}
	return project
}

// toDocument maps a session to its durable form. Counter fields are stored
// under snake-case keys, matching the durable repository's column naming.
func toDocument(sess *Session) persistence.Document {
	counters := make(map[string]any, len(sess.Counters))
	for k, v := range sess.Counters {
		counters[toSnakeCase(k)] = v
	}
	return persistence.Document{
		"id":             sess.ID,
		"userId":         sess.UserID,
		"project":        sess.Project,
		"createdAt":      sess.CreatedAt,
		"lastActivityAt": sess.LastActivityAt,
		"counters":       counters,
	}
}
