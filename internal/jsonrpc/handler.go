package jsonrpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/judgehost/judgehost/internal/dispatch"
	"github.com/judgehost/judgehost/internal/telemetry"
	"github.com/judgehost/judgehost/internal/toolregistry"
)

// ProtocolVersion is the literal MCP protocol version returned by
// initialize.
const ProtocolVersion = "2024-11-05"

// StopFunc stops the server orchestrator; invoked by the shutdown method.
type StopFunc func(ctx context.Context) error

// Handler parses and validates JSON-RPC 2.0 envelopes, routes method names
// per the dispatch table, and truncates oversized responses.
type Handler struct {
	Dispatcher       *dispatch.Dispatcher
	Registry         *toolregistry.Registry
	Stop             StopFunc
	ServerName       string
	ServerVersion    string
	MaxResponseBytes int
	Logger           telemetry.Logger
}

// HandleMessage parses a single JSON-RPC message and returns the response
// envelope to emit, or nil if the message was a notification. A parse
// failure always yields a -32700 response since the correlation identifier
// cannot be recovered.
func (h *Handler) HandleMessage(ctx context.Context, raw []byte) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		resp := errorResponse(nil, CodeParseError, "parse error: "+err.Error())
		return &resp
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		if req.IsNotification() {
			return nil
		}
		resp := errorResponse(req.ID, CodeInvalidRequest, "invalid envelope")
		return &resp
	}

	resp := h.route(ctx, req)
	if req.IsNotification() {
		return nil
	}
	if resp.Error == nil {
		if truncated, did := truncateIfOversized(resp.Result, h.maxBytes()); did {
			resp.Result = truncated
		}
	}
	return &resp
}

func (h *Handler) maxBytes() int {
	if h.MaxResponseBytes > 0 {
		return h.MaxResponseBytes
	}
	return maxResponseBytes
}

func (h *Handler) route(ctx context.Context, req Request) Response {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, h.initializeResult())
	case "initialized", "notifications/initialized":
		// Normally a notification; acked with an empty result in case a
		// client sends it with a correlation identifier.
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, map[string]any{"tools": h.toolDescriptors()})
	case "tools/call":
		return h.handleToolsCall(ctx, req)
	case "resources/list":
		return resultResponse(req.ID, map[string]any{"resources": []any{}})
	case "prompts/list":
		return resultResponse(req.ID, map[string]any{"prompts": []any{}})
	case "ping":
		return resultResponse(req.ID, map[string]any{"pong": true, "timestamp": time.Now().UnixMilli()})
	case "shutdown":
		return h.handleShutdown(ctx, req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (h *Handler) initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"serverInfo": map[string]any{
			"name":    h.ServerName,
			"version": h.ServerVersion,
		},
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{},
			"prompts":   map[string]any{},
		},
	}
}

func (h *Handler) toolDescriptors() []map[string]any {
	descriptors := h.Registry.List()
	out := make([]map[string]any, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"inputSchema": d.InputSchema,
		})
	}
	return out
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (h *Handler) handleToolsCall(ctx context.Context, req Request) Response {
	var params toolCallParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid params: "+err.Error())
		}
	}

	result, err := h.Dispatcher.Dispatch(ctx, params.Name, params.Arguments)
	if err != nil {
		message := err.Error()
		if de, ok := err.(*dispatch.Error); ok && de.Code == dispatch.CodeBlocked {
			return errorResponse(req.ID, CodeApplicationError, message)
		}
		return errorResponse(req.ID, CodeApplicationError, message)
	}
	return resultResponse(req.ID, result)
}

func (h *Handler) handleShutdown(ctx context.Context, req Request) Response {
	if h.Stop != nil {
		if err := h.Stop(ctx); err != nil {
			return errorResponse(req.ID, CodeApplicationError, "shutdown failed: "+err.Error())
		}
	}
	return resultResponse(req.ID, map[string]any{"success": true})
}
