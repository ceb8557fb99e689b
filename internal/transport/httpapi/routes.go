// Package httpapi implements the HTTP Adapter and the Route Handlers that
// sit behind it: health, metrics, REST tool calls, hook ingress, psychology
// sync/load, and SSE subscribe.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/judgehost/judgehost/internal/dispatch"
	"github.com/judgehost/judgehost/internal/eventbus"
	"github.com/judgehost/judgehost/internal/jsonrpc"
	"github.com/judgehost/judgehost/internal/persistence"
	"github.com/judgehost/judgehost/internal/poj"
	"github.com/judgehost/judgehost/internal/session"
	"github.com/judgehost/judgehost/internal/telemetry"
	"github.com/judgehost/judgehost/internal/toolregistry"
)

// Routes implements the domain logic behind every HTTP path. It holds no
// transport state of its own (that belongs to Adapter); it is purely the
// per-path handler logic.
type Routes struct {
	JSONRPC     *jsonrpc.Handler
	Dispatcher  *dispatch.Dispatcher
	Registry    *toolregistry.Registry
	Persistence *persistence.Manager
	PoJ         *poj.Manager
	Sessions    *session.Manager
	Bus         *eventbus.Bus
	Collective  dispatch.Collective
	Logger      telemetry.Logger

	// MetricsHandler renders the process's OTEL-backed instruments as
	// Prometheus text. When nil the metrics route serves a minimal
	// liveness gauge instead.
	MetricsHandler http.Handler

	sse *sseBroadcaster
}

// Health aggregates per-subsystem status. If any critical subsystem is
// unhealthy the caller (Adapter) returns HTTP 503 with this same body.
func (r *Routes) Health(ctx context.Context) (status int, body map[string]any) {
	persistenceHealth := r.Persistence.Health(ctx)
	dbStatus := persistenceHealth["postgres"]

	cacheStatus := persistence.SubsystemHealth{Status: persistence.StatusHealthy}
	pojStatus := persistence.SubsystemHealth{Status: persistence.StatusHealthy}
	judgeStatus := persistence.SubsystemHealth{Status: persistence.StatusNotConfigured}
	if _, ok := r.Registry.Get("judge"); ok {
		judgeStatus = persistence.SubsystemHealth{Status: persistence.StatusHealthy}
	}
	anchoringStatus := persistence.SubsystemHealth{Status: persistence.StatusNotConfigured}

	body = map[string]any{
		"database":  dbStatus,
		"cache":     cacheStatus,
		"poj":       pojStatus,
		"judge":     judgeStatus,
		"anchoring": anchoringStatus,
	}

	critical := []persistence.SubsystemHealth{dbStatus, pojStatus}
	status = http.StatusOK
	for _, s := range critical {
		if s.Status == persistence.StatusUnhealthy {
			status = http.StatusServiceUnavailable
			break
		}
	}
	return status, body
}

// MetricsHTML renders a minimal dashboard. The full visualization front-end
// is out of core scope; this is the thin HTML surface the HTTP Adapter's
// route table promises.
func (r *Routes) MetricsHTML(ctx context.Context) string {
	_, health := r.Health(ctx)
	raw, _ := json.MarshalIndent(health, "", "  ")
	return fmt.Sprintf("<html><body><h1>judgehost</h1><pre>%s</pre></body></html>", raw)
}

// JSONRPCOverHTTP handles POST /mcp and /message: same JSON-RPC handler as
// the stream transport. Every handled envelope — including a hook block,
// which surfaces as a -32000 error with a [BLOCKED] message — is HTTP 200;
// only the REST tool route translates blocks to 403.
func (r *Routes) JSONRPCOverHTTP(ctx context.Context, raw []byte) (status int, resp *jsonrpc.Response) {
	return http.StatusOK, r.JSONRPC.HandleMessage(ctx, raw)
}

// SSESubscribe registers w in the broadcast set, sends the endpoint event
// naming the message POST path, and returns the unregister function.
func (r *Routes) SSESubscribe(w http.ResponseWriter, keepalive time.Duration) (remove func(), ok bool) {
	remove, ok = r.sse.register(w, keepalive)
	if !ok {
		return nil, false
	}
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", `{"path":"/mcp"}`)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return remove, true
}

// ToolDirectory lists every tool's shared shape.
func (r *Routes) ToolDirectory() []map[string]any {
	descriptors := r.Registry.List()
	out := make([]map[string]any, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"domain":      d.Domain,
			"inputSchema": d.InputSchema,
		})
	}
	return out
}

// ToolInfo returns a single tool's descriptor, or ok=false if unknown.
func (r *Routes) ToolInfo(name string) (map[string]any, bool) {
	d, ok := r.Registry.Get(name)
	if !ok {
		return nil, false
	}
	return map[string]any{
		"name":        d.Name,
		"description": d.Description,
		"domain":      d.Domain,
		"inputSchema": d.InputSchema,
	}, true
}

// ToolInvoke runs the same pre-hook/post-hook pipeline as MCP tools/call,
// but hook blocks translate to HTTP 403 rather than a JSON-RPC error.
func (r *Routes) ToolInvoke(ctx context.Context, name string, args map[string]any) (status int, body any) {
	result, err := r.Dispatcher.Dispatch(ctx, name, args)
	if err != nil {
		if de, ok := err.(*dispatch.Error); ok {
			switch de.Code {
			case dispatch.CodeBlocked:
				return http.StatusForbidden, map[string]any{"error": de.Message}
			case dispatch.CodeToolNotFound:
				return http.StatusNotFound, map[string]any{"error": de.Message}
			default:
				return http.StatusInternalServerError, map[string]any{"error": de.Message}
			}
		}
		return http.StatusInternalServerError, map[string]any{"error": err.Error()}
	}
	return http.StatusOK, result
}

// HookEventIngress forwards a posted {hookType, payload} to the collective
// and broadcasts the corresponding SSE events.
func (r *Routes) HookEventIngress(ctx context.Context, hookType string, payload map[string]any) {
	evt := dispatch.HookEvent{HookType: dispatch.HookType(hookType)}
	if tool, ok := payload["tool"].(string); ok {
		evt.Payload.Tool = tool
	}
	if toolUseID, ok := payload["toolUseId"].(string); ok {
		evt.Payload.ToolUseID = toolUseID
	}
	evt.Payload.Input = payload

	if r.Collective != nil {
		if _, err := r.Collective.Invoke(ctx, evt); err != nil {
			r.Logger.Warn(ctx, "hook event forward failed", "hookType", hookType, "error", err.Error())
		}
	}

	r.sse.broadcast("hook:received", map[string]any{"hookType": hookType, "payload": payload})
	switch dispatch.HookType(hookType) {
	case dispatch.HookPreToolUse:
		r.sse.broadcast("tool_pre", payload)
	case dispatch.HookPostToolUse:
		r.sse.broadcast("tool_post", payload)
	}
}

// PsychologySync persists a psychology snapshot keyed by userId.
func (r *Routes) PsychologySync(ctx context.Context, userID string, snapshot map[string]any) error {
	doc := persistence.Document{"id": userID}
	for k, v := range snapshot {
		doc[k] = v
	}
	return r.Persistence.Adapter(persistence.DomainPsychology).Put(ctx, userID, doc)
}

// PsychologyLoad fetches a psychology snapshot keyed by userId. ok is false
// if absent, translating to HTTP 404 at the transport layer.
func (r *Routes) PsychologyLoad(ctx context.Context, userID string) (persistence.Document, bool, error) {
	doc, err := r.Persistence.Adapter(persistence.DomainPsychology).Get(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return doc, doc != nil, nil
}
