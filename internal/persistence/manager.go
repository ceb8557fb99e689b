package persistence

import (
	"context"
	"time"

	"github.com/judgehost/judgehost/internal/persistence/file"
	"github.com/judgehost/judgehost/internal/persistence/memory"
	mongostore "github.com/judgehost/judgehost/internal/persistence/mongo"
	"github.com/judgehost/judgehost/internal/telemetry"
)

// Dialer opens a durable store connection. Abstracted so Manager tests can
// substitute a fake without dialing a real MongoDB deployment.
type Dialer func(ctx context.Context, uri string) (DurableStore, error)

// DurableStore is the durable tier's store plus a liveness check used for
// health reporting.
type DurableStore interface {
	Store
	Ping(ctx context.Context) error
}

// Config controls Manager initialization.
type Config struct {
	DurableURL    string
	DataDir       string
	DurableDBName string
	Dial          Dialer
	Logger        telemetry.Logger
	// CacheCloser, if set, is invoked during Close after the durable store
	// and before returning, matching the documented close order (flush
	// file state, close durable, close cache).
	CacheCloser func(ctx context.Context) error
}

func defaultDialer(ctx context.Context, uri string) (DurableStore, error) {
	return mongostore.Dial(ctx, uri, "judgehost")
}

// Manager owns the fallback chain and hands out per-domain adapters backed
// by whichever single tier was selected at initialize.
type Manager struct {
	backend     Backend
	active      Store
	durable     DurableStore
	durableErr  error
	fileStore   *file.Store
	cacheCloser func(ctx context.Context) error
	logger      telemetry.Logger
	adapters    map[Domain]*Adapter
}

// New selects the active backend following the documented preference order:
// durable (two dial attempts, ~3s backoff) then file then memory.
func New(ctx context.Context, cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	dial := cfg.Dial
	if dial == nil {
		dial = defaultDialer
	}

	m := &Manager{logger: logger, cacheCloser: cfg.CacheCloser}

	if cfg.DurableURL != "" {
		var store DurableStore
		var err error
		for attempt := 1; attempt <= 2; attempt++ {
			store, err = dial(ctx, cfg.DurableURL)
			if err == nil {
				m.durableErr = nil
				break
			}
			m.durableErr = err
			if attempt < 2 {
				logger.Warn(ctx, "durable store dial attempt failed, retrying", "attempt", attempt, "error", err.Error())
				select {
				case <-time.After(3 * time.Second):
				case <-ctx.Done():
					attempt = 2
				}
			}
		}
		if err == nil {
			m.backend = BackendDurable
			m.durable = store
			m.active = store
		} else {
			logger.Error(ctx, "durable store unavailable, falling back", "error", err.Error())
		}
	}

	if m.active == nil {
		if cfg.DataDir != "" {
			fs, err := file.Open(cfg.DataDir)
			if err != nil {
				logger.Error(ctx, "file store unavailable, falling back to memory", "error", err.Error())
			} else {
				m.backend = BackendFile
				m.fileStore = fs
				m.active = fs
			}
		}
	}

	if m.active == nil {
		m.backend = BackendMemory
		m.active = memory.New()
	}

	m.adapters = make(map[Domain]*Adapter, len(AllDomains))
	for _, d := range AllDomains {
		m.adapters[d] = &Adapter{domain: d, store: m.active, logger: logger}
	}
	return m
}

// Backend reports the currently active persistence provider.
func (m *Manager) Backend() Backend { return m.backend }

// Adapter returns the uniform per-domain adapter for domain.
func (m *Manager) Adapter(domain Domain) *Adapter { return m.adapters[domain] }

// Health returns a stable shape regardless of which backends are connected.
// The durable subsystem is reported under the "postgres" key, matching the
// external health contract.
func (m *Manager) Health(ctx context.Context) map[string]SubsystemHealth {
	out := map[string]SubsystemHealth{
		"postgres": m.durableHealth(ctx),
	}
	return out
}

func (m *Manager) durableHealth(ctx context.Context) SubsystemHealth {
	if m.durable == nil {
		if m.durableErr != nil {
			return SubsystemHealth{Status: StatusConnectionFailed, Detail: m.durableErr.Error()}
		}
		return SubsystemHealth{Status: StatusNotConfigured}
	}
	if err := m.durable.Ping(ctx); err != nil {
		return SubsystemHealth{Status: StatusUnhealthy, Detail: err.Error()}
	}
	return SubsystemHealth{Status: StatusHealthy}
}

// Close tears the manager down in the documented order: flush file state,
// close the durable store, then close the injected cache.
func (m *Manager) Close(ctx context.Context) error {
	if m.fileStore != nil {
		if err := m.fileStore.Close(ctx); err != nil {
			m.logger.Error(ctx, "flushing file store failed", "error", err.Error())
		}
	}
	if m.durable != nil {
		if err := m.durable.Close(ctx); err != nil {
			m.logger.Error(ctx, "closing durable store failed", "error", err.Error())
		}
	}
	if m.cacheCloser != nil {
		return m.cacheCloser(ctx)
	}
	return nil
}

// Adapter is the uniform, domain-scoped façade over whichever store tier
// the manager selected at initialize. Capabilities is always true: the
// manager never hands out a domain it cannot service both for reads and
// writes, regardless of which tier is active.
type Adapter struct {
	domain Domain
	store  Store
	logger telemetry.Logger
}

// Capabilities reports whether this adapter can service both reads and
// writes, which holds for every initialized adapter.
func (a *Adapter) Capabilities() bool { return a.store != nil }

// Put writes doc under id. Query-level failures are logged and returned;
// the manager does not fall back mid-operation.
func (a *Adapter) Put(ctx context.Context, id string, doc Document) error {
	if err := a.store.Put(ctx, a.domain, id, doc); err != nil {
		a.logger.Error(ctx, "persistence put failed", "domain", string(a.domain), "error", err.Error())
		return err
	}
	return nil
}

// Get returns the document for id, or nil if absent, never raising for
// absence.
func (a *Adapter) Get(ctx context.Context, id string) (Document, error) {
	doc, err := a.store.Get(ctx, a.domain, id)
	if err != nil {
		a.logger.Error(ctx, "persistence get failed", "domain", string(a.domain), "error", err.Error())
		return nil, err
	}
	return doc, nil
}

// Delete removes the document for id.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	if err := a.store.Delete(ctx, a.domain, id); err != nil {
		a.logger.Error(ctx, "persistence delete failed", "domain", string(a.domain), "error", err.Error())
		return err
	}
	return nil
}

// List returns every document in the domain, or an empty slice.
func (a *Adapter) List(ctx context.Context) ([]Document, error) {
	docs, err := a.store.List(ctx, a.domain)
	if err != nil {
		a.logger.Error(ctx, "persistence list failed", "domain", string(a.domain), "error", err.Error())
		return nil, err
	}
	return docs, nil
}

// Search returns every document in the domain matching predicate.
func (a *Adapter) Search(ctx context.Context, predicate func(Document) bool) ([]Document, error) {
	docs, err := a.store.Search(ctx, a.domain, predicate)
	if err != nil {
		a.logger.Error(ctx, "persistence search failed", "domain", string(a.domain), "error", err.Error())
		return nil, err
	}
	return docs, nil
}
