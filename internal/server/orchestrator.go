// Package server implements the Server Orchestrator: it chooses a
// transport at construction, starts and stops every subsystem in the
// documented order, and exposes a status snapshot.
package server

import (
	"context"
	"io"
	"sync"

	"github.com/judgehost/judgehost/internal/config"
	"github.com/judgehost/judgehost/internal/eventbus"
	"github.com/judgehost/judgehost/internal/jsonrpc"
	"github.com/judgehost/judgehost/internal/poj"
	"github.com/judgehost/judgehost/internal/service"
	"github.com/judgehost/judgehost/internal/telemetry"
	"github.com/judgehost/judgehost/internal/tools"
	"github.com/judgehost/judgehost/internal/transport/httpapi"
	"github.com/judgehost/judgehost/internal/transport/stream"
)

// Name and Version identify this server in the MCP "initialize" handshake
// and in the startup log line.
const (
	Name    = "judgehost"
	Version = "0.1.0"
)

// Orchestrator owns every subsystem handle exclusively, per the ownership
// summary: no other package keeps a reference to the services it
// constructs.
type Orchestrator struct {
	cfg    config.Config
	logger telemetry.Logger
	exit   func(code int)

	initializer *service.Initializer
	services    *service.Services

	streamTransport *stream.Transport
	httpAdapter     *httpapi.Adapter
	sseUnsubs       []eventbus.Unsubscribe

	mu      sync.Mutex
	running bool
}

// Option customizes Orchestrator construction.
type Option func(*Orchestrator)

// WithExitFunc overrides the process-exit hook used at end of stream mode.
// Tests supply a no-op so Stop doesn't kill the test binary.
func WithExitFunc(exit func(code int)) Option {
	return func(o *Orchestrator) { o.exit = exit }
}

// New constructs an Orchestrator. logger defaults to a no-op logger.
func New(cfg config.Config, logger telemetry.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	o := &Orchestrator{cfg: cfg, logger: logger, initializer: service.New(), exit: func(int) {}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start runs the Service Initializer, assigns the returned services, and
// starts the transport selected at construction. In stream mode, stdin/
// stdout are wired as the transport's byte stream; in HTTP mode, the HTTP
// Adapter begins listening and Start returns once it has been asked to
// listen (errors surface asynchronously and are logged while the
// orchestrator is still running; they do not trigger shutdown).
func (o *Orchestrator) Start(ctx context.Context, stdin io.Reader, stdout io.Writer, provided service.Provided) error {
	svc, err := o.initializer.Init(ctx, o.cfg, provided)
	if err != nil {
		return err
	}
	o.services = svc

	handler := &jsonrpc.Handler{
		Dispatcher:       svc.Dispatcher,
		Registry:         svc.Registry,
		Stop:             o.Stop,
		ServerName:       Name,
		ServerVersion:    Version,
		MaxResponseBytes: o.cfg.MaxResponseBytes,
		Logger:           o.logger,
	}

	o.mu.Lock()
	o.running = true
	o.mu.Unlock()

	o.logger.Info(ctx, "judgehost starting", "transport", string(o.cfg.Transport), "tools", len(svc.Registry.List()))

	switch o.cfg.Transport {
	case config.TransportHTTP:
		routes := &httpapi.Routes{
			JSONRPC:        handler,
			Dispatcher:     svc.Dispatcher,
			Registry:       svc.Registry,
			Persistence:    svc.Persistence,
			PoJ:            svc.PoJ,
			Sessions:       svc.Sessions,
			Bus:            svc.Bus,
			Collective:     svc.Collective,
			MetricsHandler: svc.MetricsHTTP,
			Logger:         o.logger,
		}
		o.httpAdapter = httpapi.New(o.cfg, routes, o.logger, svc.Metrics)
		o.wireSSEFanout(svc)
		errc := o.httpAdapter.Start(ctx)
		go func() {
			if err := <-errc; err != nil {
				o.mu.Lock()
				stillRunning := o.running
				o.mu.Unlock()
				if stillRunning {
					o.logger.Error(ctx, "http adapter terminated unexpectedly", "error", err.Error())
				}
			}
		}()
	default:
		o.streamTransport = stream.New(stdin, stdout, handler, func() { _ = o.Stop(ctx) }, o.logger)
		if err := o.streamTransport.Run(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Stop shuts every subsystem down in the documented order: stop accepting
// HTTP connections and drain in-flight requests, close the PoJ chain
// (flushing its final block), stop the scheduler, shut down discovery, and
// close persistence. In stream mode it exits the process afterward; in
// HTTP mode it remains alive for orchestration-driven restart.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	isStream := o.cfg.Transport != config.TransportHTTP
	o.mu.Unlock()

	for i := len(o.sseUnsubs) - 1; i >= 0; i-- {
		o.sseUnsubs[i]()
	}
	o.sseUnsubs = nil

	if o.httpAdapter != nil {
		if err := o.httpAdapter.Shutdown(ctx); err != nil {
			o.logger.Error(ctx, "http adapter shutdown failed", "error", err.Error())
		}
	}

	if o.services != nil {
		if err := o.initializer.Close(ctx, o.services); err != nil {
			o.logger.Error(ctx, "subsystem teardown failed", "error", err.Error())
		}
	}

	if isStream {
		o.exit(0)
	}
	return nil
}

// wireSSEFanout subscribes the HTTP adapter's broadcast set to the bus
// events SSE clients observe: tool lifecycle, judgment creation, and block
// sealing. Stream mode has no SSE surface so nothing is wired there.
func (o *Orchestrator) wireSSEFanout(svc *service.Services) {
	for _, name := range []string{"tool_pre", "tool_post", tools.JudgmentCreatedEvent, poj.BlockCreatedEvent} {
		o.sseUnsubs = append(o.sseUnsubs, svc.Bus.Subscribe(name, func(_ context.Context, evt eventbus.Event) {
			o.httpAdapter.Broadcast(name, evt.Payload)
		}))
	}
}

// Status is the status snapshot the orchestrator exposes to callers
// (health/metrics routes, operational tooling) without reaching into
// individual subsystems.
type Status struct {
	Running bool   `json:"running"`
	Backend string `json:"backend,omitempty"`
	Tools   int    `json:"tools,omitempty"`
}

// Status reports whether the orchestrator is running and a summary of its
// wired subsystems.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{Running: o.running}
	if o.services != nil {
		st.Backend = string(o.services.Persistence.Backend())
		st.Tools = len(o.services.Registry.List())
	}
	return st
}

// Services returns the orchestrator's service bundle, or nil before Start.
func (o *Orchestrator) Services() *service.Services { return o.services }
