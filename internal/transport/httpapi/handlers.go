package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	goahttp "goa.design/goa/v3/http"
)

func (a *Adapter) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := a.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(r.Context(), timeout)
}

func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.requestContext(r)
	defer cancel()
	status, body := a.routes.Health(ctx)
	writeJSON(w, status, body)
}

func (a *Adapter) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if a.routes.MetricsHandler != nil {
		a.routes.MetricsHandler.ServeHTTP(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("# HELP judgehost_up server process liveness\n# TYPE judgehost_up gauge\njudgehost_up 1\n"))
}

func (a *Adapter) handleMetricsHTML(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.requestContext(r)
	defer cancel()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(a.routes.MetricsHTML(ctx)))
}

func (a *Adapter) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	body := a.bodyLimited(w, r)
	raw, err := io.ReadAll(body)
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
			"jsonrpc": "2.0",
			"error":   map[string]any{"code": -32000, "message": "request body too large"},
		})
		return
	}

	ctx, cancel := a.requestContext(r)
	defer cancel()

	done := make(chan struct{})
	var status int
	var resp any
	go func() {
		defer close(done)
		s, body := a.routes.JSONRPCOverHTTP(ctx, raw)
		status, resp = s, body
	}()

	select {
	case <-done:
		if resp == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		writeJSON(w, status, resp)
	case <-ctx.Done():
		writeJSON(w, http.StatusRequestTimeout, map[string]any{
			"jsonrpc": "2.0",
			"error":   map[string]any{"code": -32000, "message": "request timed out"},
		})
	}
}

func (a *Adapter) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	keepalive := a.cfg.SSEKeepalive
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	remove, ok := a.routes.SSESubscribe(w, keepalive)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	defer remove()

	<-r.Context().Done()
}

func (a *Adapter) handleToolDirectory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": a.routes.ToolDirectory()})
}

func (a *Adapter) handleToolInfo(w http.ResponseWriter, r *http.Request) {
	name := pathVar(r, "name")
	info, ok := a.routes.ToolInfo(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "tool not found"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *Adapter) handleToolInvoke(w http.ResponseWriter, r *http.Request) {
	name := pathVar(r, "name")
	var args map[string]any
	_ = json.NewDecoder(a.bodyLimited(w, r)).Decode(&args)

	ctx, cancel := a.requestContext(r)
	defer cancel()
	status, body := a.routes.ToolInvoke(ctx, name, args)
	writeJSON(w, status, body)
}

func (a *Adapter) handleHooksEvent(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		HookType string         `json:"hookType"`
		Payload  map[string]any `json:"payload"`
	}
	if err := json.NewDecoder(a.bodyLimited(w, r)).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}
	ctx, cancel := a.requestContext(r)
	defer cancel()
	a.routes.HookEventIngress(ctx, payload.HookType, payload.Payload)
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

func (a *Adapter) handlePsychologySync(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID   string         `json:"userId"`
		Snapshot map[string]any `json:"snapshot"`
	}
	if err := json.NewDecoder(a.bodyLimited(w, r)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}
	ctx, cancel := a.requestContext(r)
	defer cancel()
	if err := a.routes.PsychologySync(ctx, body.UserID, body.Snapshot); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"synced": true})
}

func (a *Adapter) handlePsychologyLoad(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	ctx, cancel := a.requestContext(r)
	defer cancel()
	doc, ok, err := a.routes.PsychologyLoad(ctx, userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// pathVar extracts a {name}-style path variable registered via the goa
// muxer's pattern syntax.
func pathVar(r *http.Request, name string) string {
	mux := goahttp.NewMuxer()
	return mux.Vars(r)[name]
}
