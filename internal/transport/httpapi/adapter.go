package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	goahttp "goa.design/goa/v3/http"

	"github.com/judgehost/judgehost/internal/config"
	"github.com/judgehost/judgehost/internal/telemetry"
)

// Adapter listens on a configured port, routes requests by path, enforces
// body size and request timeout limits, and operates the SSE broadcast set.
// It exclusively owns the SSE client set and the active-request set.
type Adapter struct {
	cfg     config.Config
	routes  *Routes
	logger  telemetry.Logger
	metrics telemetry.Metrics

	srv   *http.Server
	muxer goahttp.Muxer

	activeMu sync.Mutex
	active   map[*http.Request]struct{}

	stopping bool
	stopMu   sync.Mutex
}

// New constructs an Adapter. routes.sse is wired here so Routes never needs
// to know the concrete broadcaster implementation.
func New(cfg config.Config, routes *Routes, logger telemetry.Logger, metrics telemetry.Metrics) *Adapter {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	routes.sse = newSSEBroadcaster()
	return &Adapter{cfg: cfg, routes: routes, logger: logger, metrics: metrics, active: make(map[*http.Request]struct{})}
}

// Broadcast exposes the SSE broadcast set to callers outside this package
// (the event bus subscriptions wired by the Server Orchestrator).
func (a *Adapter) Broadcast(eventType string, data any) {
	a.routes.sse.broadcast(eventType, data)
}

func (a *Adapter) buildMux() http.Handler {
	mux := goahttp.NewMuxer()

	mux.Handle(http.MethodGet, "/", a.handleHealth)
	mux.Handle(http.MethodGet, "/health", a.handleHealth)
	mux.Handle(http.MethodGet, "/metrics", a.handleMetrics)
	mux.Handle(http.MethodGet, "/metrics/html", a.handleMetricsHTML)
	mux.Handle(http.MethodPost, "/mcp", a.handleJSONRPC)
	mux.Handle(http.MethodPost, "/message", a.handleJSONRPC)
	mux.Handle(http.MethodGet, "/sse", a.handleSSE)
	mux.Handle(http.MethodGet, "/api/tools", a.handleToolDirectory)
	mux.Handle(http.MethodGet, "/api/tools/{name}", a.handleToolInfo)
	mux.Handle(http.MethodPost, "/api/tools/{name}", a.handleToolInvoke)
	mux.Handle(http.MethodPost, "/hooks/event", a.handleHooksEvent)
	mux.Handle(http.MethodPost, "/psychology/sync", a.handlePsychologySync)
	mux.Handle(http.MethodGet, "/psychology/load", a.handlePsychologyLoad)

	return mux
}

// Handler returns the fully wrapped http.Handler: CORS, active-request
// tracking, then routing.
func (a *Adapter) Handler() http.Handler {
	return a.corsMiddleware(a.trackActive(a.buildMux()))
}

// corsMiddleware permits cross-origin requests from any origin for GET and
// POST, answering OPTIONS with a bare 204.
func (a *Adapter) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// trackActive registers r in the active-request set for the duration of
// the handler call, so graceful shutdown can poll it.
func (a *Adapter) trackActive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.activeMu.Lock()
		a.active[r] = struct{}{}
		a.activeMu.Unlock()
		defer func() {
			a.activeMu.Lock()
			delete(a.active, r)
			a.activeMu.Unlock()
		}()
		next.ServeHTTP(w, r)
	})
}

func (a *Adapter) activeCount() int {
	a.activeMu.Lock()
	defer a.activeMu.Unlock()
	return len(a.active)
}

// Start begins listening on the configured port in a background goroutine
// and returns immediately; errc receives the listener's terminal error.
func (a *Adapter) Start(ctx context.Context) (errc chan error) {
	errc = make(chan error, 1)
	a.srv = &http.Server{
		Addr:              addr(a.cfg.HTTPPort),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 60 * time.Second,
	}
	go func() {
		a.logger.Info(ctx, "http adapter listening", "addr", a.srv.Addr)
		errc <- a.srv.ListenAndServe()
	}()
	return errc
}

func addr(port int) string {
	if port <= 0 {
		port = 3000
	}
	return ":" + itoa(port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Shutdown stops accepting new connections, ends every SSE client, and
// polls the active-request set every 100ms until empty or the ~10-second
// shutdown budget expires.
func (a *Adapter) Shutdown(ctx context.Context) error {
	a.stopMu.Lock()
	a.stopping = true
	a.stopMu.Unlock()

	if a.srv == nil {
		return nil
	}

	a.routes.sse.closeAll()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownBudget)
	defer cancel()

	drained := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			if a.activeCount() == 0 {
				close(drained)
				return
			}
			select {
			case <-ticker.C:
			case <-shutdownCtx.Done():
				close(drained)
				return
			}
		}
	}()
	<-drained

	remaining := a.activeCount()
	if remaining > 0 {
		a.logger.Warn(ctx, "shutdown budget expired with requests still in flight", "remaining", remaining)
	}

	return a.srv.Shutdown(shutdownCtx)
}

// bodyLimited wraps r's body with the configured hard cap. Exceeding it
// surfaces as an error from the reader, which callers translate to HTTP 413.
func (a *Adapter) bodyLimited(w http.ResponseWriter, r *http.Request) io.Reader {
	limit := a.cfg.RequestBodyLimitBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	return http.MaxBytesReader(w, r.Body, limit)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
