// Package service implements the Service Initializer: it creates every
// subsystem in dependency-respecting order (leaves first), injects any
// pre-supplied services instead of recreating them, wires a fixed set of
// event bus subscriptions once everything exists, and hands back an
// unsubscribe-ordered teardown function.
package service

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/judgehost/judgehost/internal/config"
	"github.com/judgehost/judgehost/internal/discovery"
	"github.com/judgehost/judgehost/internal/dispatch"
	"github.com/judgehost/judgehost/internal/eventbus"
	"github.com/judgehost/judgehost/internal/peerforward"
	"github.com/judgehost/judgehost/internal/persistence"
	"github.com/judgehost/judgehost/internal/poj"
	"github.com/judgehost/judgehost/internal/scheduler"
	"github.com/judgehost/judgehost/internal/session"
	"github.com/judgehost/judgehost/internal/telemetry"
	"github.com/judgehost/judgehost/internal/tools"
	"github.com/judgehost/judgehost/internal/toolregistry"
)

// Services aggregates every subsystem handle the Server Orchestrator needs.
// This is the "value object aggregating them" the design notes call for:
// ownership of each long-lived object lives here, not scattered across
// package-level globals.
type Services struct {
	Bus         *eventbus.Bus
	Persistence *persistence.Manager
	Sessions    *session.Manager
	PoJ         *poj.Manager
	Registry    *toolregistry.Registry
	Dispatcher  *dispatch.Dispatcher
	Collective  dispatch.Collective
	Scheduler   *scheduler.Scheduler
	Discovery   *discovery.Client
	Forwarder   *peerforward.Forwarder
	Metrics     telemetry.Metrics
	Logger      telemetry.Logger

	// MetricsHTTP renders Metrics' instruments as Prometheus text; the
	// HTTP adapter mounts it at the metrics route. Nil when a pre-supplied
	// Metrics recorder has no exposition surface.
	MetricsHTTP http.Handler

	PoJIntegrity poj.IntegrityReport
}

// Provided lets a caller (tests, or an embedder) pre-supply any subsystem;
// the initializer will not recreate an entry that is non-nil here.
type Provided struct {
	Bus         *eventbus.Bus
	Persistence *persistence.Manager
	Sessions    *session.Manager
	PoJ         *poj.Manager
	Collective  dispatch.Collective
	Metrics     telemetry.Metrics
	Logger      telemetry.Logger
	Dialer      persistence.Dialer
	CacheCloser func(ctx context.Context) error
}

// Initializer builds a Services value from configuration, retaining every
// bus subscription's unsubscribe handle so Close can invoke them in
// reverse order.
type Initializer struct {
	unsubscribes []eventbus.Unsubscribe
}

// New constructs an empty Initializer.
func New() *Initializer { return &Initializer{} }

// Init runs every subsystem factory in leaves-first order: event bus,
// persistence, session manager, PoJ chain manager, tool registry, tool
// dispatcher. It then verifies PoJ chain integrity and subscribes the
// fixed bus handlers that route events into metrics and best-effort peer
// forwarding.
func (in *Initializer) Init(ctx context.Context, cfg config.Config, provided Provided) (*Services, error) {
	svc := &Services{
		Logger:  provided.Logger,
		Metrics: provided.Metrics,
	}
	if svc.Logger == nil {
		svc.Logger = telemetry.NewNoopLogger()
	}
	if svc.Metrics == nil {
		metrics, handler, err := telemetry.NewPrometheusMetrics()
		if err != nil {
			svc.Logger.Error(ctx, "prometheus metrics setup failed, using no-op recorder", "error", err.Error())
			svc.Metrics = telemetry.NewNoopMetrics()
		} else {
			svc.Metrics = metrics
			svc.MetricsHTTP = handler
		}
	}

	svc.Bus = provided.Bus
	if svc.Bus == nil {
		svc.Bus = eventbus.New(svc.Logger)
	}

	// The cache tier is resolved before persistence so the manager's close
	// order (flush file, close durable, close cache) can own its teardown.
	sessionCache, cacheCloser := resolveSessionCache(ctx, cfg, provided, svc.Logger)

	svc.Persistence = provided.Persistence
	if svc.Persistence == nil {
		svc.Persistence = persistence.New(ctx, persistence.Config{
			DurableURL:  cfg.DurableURL,
			DataDir:     cfg.DataDir,
			Dial:        provided.Dialer,
			Logger:      svc.Logger,
			CacheCloser: cacheCloser,
		})
	}

	svc.Sessions = provided.Sessions
	if svc.Sessions == nil {
		svc.Sessions = session.NewManager(sessionCache, svc.Persistence.Adapter(persistence.DomainSessions), svc.Logger)
	}

	svc.PoJ = provided.PoJ
	if svc.PoJ == nil {
		svc.PoJ = poj.NewManager(poj.Config{}, svc.Persistence.Adapter(persistence.DomainPoJBlocks), svc.Bus, svc.Logger)
	}
	report, err := svc.PoJ.VerifyIntegrity(ctx)
	if err != nil {
		return nil, err
	}
	svc.PoJIntegrity = report

	svc.Collective = provided.Collective
	if svc.Collective == nil {
		svc.Collective = dispatch.AllowAllCollective{}
	}

	svc.Registry = toolregistry.New(svc.Logger)
	toolServices := map[string]any{
		"persistence": svc.Persistence,
		"poj":         svc.PoJ,
		"sessions":    svc.Sessions,
		"bus":         svc.Bus,
	}
	if cfg.GitHubToken != "" {
		svc.Discovery = discovery.New(cfg.GitHubToken)
		toolServices["discovery"] = svc.Discovery
	}
	for _, f := range tools.All() {
		if err := svc.Registry.RegisterFactory(f); err != nil {
			return nil, err
		}
	}
	svc.Registry.CreateAll(ctx, toolServices)

	svc.Dispatcher = dispatch.New(svc.Registry, svc.Collective, svc.Bus, svc.Sessions, svc.Metrics, svc.Logger)

	svc.Forwarder = peerforward.New(cfg.PeerNodes, svc.Logger)

	libraryCache := svc.Persistence.Adapter(persistence.DomainLibraryCache)
	svc.Scheduler = scheduler.New(svc.Logger, scheduler.Task{
		Name:     "library-cache-expiry",
		Interval: time.Hour,
		Run: func(taskCtx context.Context) error {
			removed, err := tools.ExpireLibraryCache(taskCtx, libraryCache, tools.LibraryCacheTTL)
			if err != nil {
				return err
			}
			if removed > 0 {
				svc.Logger.Info(taskCtx, "expired library cache entries", "removed", removed)
			}
			return nil
		},
	})
	svc.Scheduler.Start(ctx)

	in.subscribe(svc)

	return svc, nil
}

// resolveSessionCache picks the session cache tier: a Redis-backed cache
// when a cache store URL is configured, the manager's process-local default
// otherwise. A malformed URL is logged and falls back to the local cache
// rather than aborting startup.
func resolveSessionCache(ctx context.Context, cfg config.Config, provided Provided, logger telemetry.Logger) (session.Cache, func(ctx context.Context) error) {
	if provided.Sessions != nil || cfg.CacheURL == "" {
		return nil, provided.CacheCloser
	}
	opts, err := redis.ParseURL(cfg.CacheURL)
	if err != nil {
		logger.Error(ctx, "cache store URL invalid, using local session cache", "error", err.Error())
		return nil, provided.CacheCloser
	}
	rc := session.NewRedisCache(redis.NewClient(opts), "")
	closer := provided.CacheCloser
	if closer == nil {
		closer = func(context.Context) error { return rc.Close() }
	}
	return rc, closer
}

// subscribe wires the fixed set of bus handlers the design calls for:
// tool-call outcomes into metrics, and judgment-created events into
// best-effort peer forwarding. Every unsubscribe handle is retained so
// Close can invoke them in reverse order.
func (in *Initializer) subscribe(svc *Services) {
	in.track(svc.Bus.Subscribe("tool_post", func(ctx context.Context, evt eventbus.Event) {
		payload, ok := evt.Payload.(map[string]any)
		if !ok {
			return
		}
		toolName, _ := payload["tool"].(string)
		success, _ := payload["success"].(bool)
		if !success {
			svc.Metrics.IncCounter("tool.failures", 1, "tool", toolName)
		}
	}))

	in.track(svc.Bus.Subscribe(tools.JudgmentCreatedEvent, func(ctx context.Context, evt eventbus.Event) {
		svc.Metrics.IncCounter("judgments.created", 1)
		svc.Forwarder.Forward(ctx, evt.Payload)
	}))

	in.track(svc.Bus.Subscribe(poj.BlockCreatedEvent, func(ctx context.Context, evt eventbus.Event) {
		svc.Metrics.IncCounter("poj.blocks.created", 1)
	}))
}

func (in *Initializer) track(unsub eventbus.Unsubscribe) {
	in.unsubscribes = append(in.unsubscribes, unsub)
}

// Close tears down every bus subscription in reverse order, then the PoJ
// chain (flushing its final block), the scheduler, the discovery client,
// and finally persistence. Failures in individual handlers are logged and
// swallowed so teardown always completes.
func (in *Initializer) Close(ctx context.Context, svc *Services) error {
	for i := len(in.unsubscribes) - 1; i >= 0; i-- {
		func() {
			defer func() {
				if r := recover(); r != nil {
					svc.Logger.Error(ctx, "unsubscribe panicked during teardown", "recover", r)
				}
			}()
			in.unsubscribes[i]()
		}()
	}

	if svc.PoJ != nil {
		if err := svc.PoJ.Close(ctx); err != nil {
			svc.Logger.Error(ctx, "poj chain close failed", "error", err.Error())
		}
	}
	if svc.Scheduler != nil {
		svc.Scheduler.Stop(ctx)
	}
	if svc.Discovery != nil {
		if err := svc.Discovery.Shutdown(ctx); err != nil {
			svc.Logger.Error(ctx, "discovery shutdown failed", "error", err.Error())
		}
	}
	if svc.Persistence != nil {
		if err := svc.Persistence.Close(ctx); err != nil {
			return err
		}
	}
	return nil
}
