package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/judgehost/judgehost/internal/eventbus"
	"github.com/judgehost/judgehost/internal/session"
	"github.com/judgehost/judgehost/internal/telemetry"
	"github.com/judgehost/judgehost/internal/toolregistry"
)

// Error codes surfaced by Dispatch; the JSON-RPC handler maps these onto
// transport-specific error envelopes.
const (
	CodeToolNotFound     = "TOOL_NOT_FOUND"
	CodeInvalidArguments = "INVALID_ARGUMENTS"
	CodeBlocked          = "BLOCKED"
	CodeHandlerError     = "HANDLER_ERROR"
)

// Error is a dispatch-level failure tagged with one of the Code* constants
// above.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// ContentBlock is a single element of the MCP "content" result envelope.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the handler's output wrapped in the MCP content envelope.
type Result struct {
	Content []ContentBlock `json:"content"`
}

const truncatedOutputPrefix = 2048

// Dispatcher executes the pre-hook → handler → post-hook pipeline for a
// single tool call.
type Dispatcher struct {
	Registry   *toolregistry.Registry
	Collective Collective
	Bus        *eventbus.Bus
	Sessions   *session.Manager
	Metrics    telemetry.Metrics
	Logger     telemetry.Logger
}

// New constructs a Dispatcher, defaulting Collective to AllowAllCollective
// when none is supplied.
func New(registry *toolregistry.Registry, collective Collective, bus *eventbus.Bus, sessions *session.Manager, metrics telemetry.Metrics, logger telemetry.Logger) *Dispatcher {
	if collective == nil {
		collective = AllowAllCollective{}
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Dispatcher{Registry: registry, Collective: collective, Bus: bus, Sessions: sessions, Metrics: metrics, Logger: logger}
}

// Dispatch looks up name, runs the pre-hook, invokes the handler, runs the
// post-hook (fire-and-forget), and returns the MCP content envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) (*Result, error) {
	descriptor, ok := d.Registry.Get(name)
	if !ok {
		return nil, &Error{Code: CodeToolNotFound, Message: fmt.Sprintf("tool not found: %s", name)}
	}
	if err := descriptor.ValidateInput(args); err != nil {
		return nil, &Error{Code: CodeInvalidArguments, Message: err.Error()}
	}

	toolUseID := mintToolUseID()

	preResult, err := d.Collective.Invoke(ctx, HookEvent{
		HookType: HookPreToolUse,
		Payload:  HookPayload{Tool: name, ToolUseID: toolUseID, Input: args},
	})
	if err != nil {
		d.Logger.Warn(ctx, "pre-hook invocation failed, allowing by default", "tool", name, "error", err.Error())
		preResult = HookResult{Decision: DecisionAllow}
	}

	if preResult.Decision == DecisionBlock {
		if d.Sessions != nil {
			_ = d.Sessions.IncrementCounter(ctx, "blocked")
		}
		if d.Bus != nil {
			d.Bus.Publish(ctx, "tool_pre", map[string]any{
				"tool":      name,
				"toolUseId": toolUseID,
				"blockedBy": preResult.BlockedBy,
			})
		}
		return nil, &Error{
			Code:    CodeBlocked,
			Message: fmt.Sprintf("[BLOCKED] %s: %s", preResult.BlockedBy, preResult.BlockMessage),
		}
	}
	if preResult.Decision == DecisionWarn {
		d.Logger.Warn(ctx, "pre-hook warning", "tool", name, "message", preResult.WarnMessage)
	}
	if d.Bus != nil {
		d.Bus.Publish(ctx, "tool_pre", map[string]any{
			"tool":           name,
			"toolUseId":      toolUseID,
			"agentsNotified": preResult.AgentsNotified,
			"timestamp":      time.Now(),
		})
	}

	start := time.Now()
	output, handlerErr := descriptor.Handler(ctx, args)
	duration := time.Since(start)
	d.Metrics.RecordTimer("tool.duration", duration, "tool", name)

	if d.Sessions != nil {
		_ = d.Sessions.IncrementCounter(ctx, "toolCalls")
	}

	success := handlerErr == nil
	d.runPostHookAsync(name, toolUseID, args, output, duration, success)

	if d.Bus != nil {
		d.Bus.Publish(ctx, "tool_post", map[string]any{
			"tool":      name,
			"toolUseId": toolUseID,
			"duration":  duration,
			"success":   success,
		})
	}

	if handlerErr != nil {
		if d.Sessions != nil && preResult.Decision != DecisionBlock {
			_ = d.Sessions.IncrementCounter(ctx, "errors")
		}
		d.Metrics.IncCounter("tool.errors", 1, "tool", name)
		return nil, &Error{Code: CodeHandlerError, Message: handlerErr.Error()}
	}

	text, err := json.Marshal(output)
	if err != nil {
		return nil, &Error{Code: CodeHandlerError, Message: err.Error()}
	}
	return &Result{Content: []ContentBlock{{Type: "text", Text: string(text)}}}, nil
}

// runPostHookAsync invokes the post-hook without blocking the response
// path; its own errors are swallowed. The output is truncated to a bounded
// prefix before being handed to the collective.
func (d *Dispatcher) runPostHookAsync(tool, toolUseID string, input map[string]any, output any, duration time.Duration, success bool) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.Logger.Error(context.Background(), "post-hook panicked", "tool", tool, "recover", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := d.Collective.Invoke(ctx, HookEvent{
			HookType: HookPostToolUse,
			Payload: HookPayload{
				Tool: tool, ToolUseID: toolUseID, Input: input,
				Output: truncateOutput(output), Duration: duration, Success: success,
			},
		})
		if err != nil {
			d.Logger.Warn(ctx, "post-hook invocation failed", "tool", tool, "error", err.Error())
		}
	}()
}

func truncateOutput(output any) any {
	raw, err := json.Marshal(output)
	if err != nil || len(raw) <= truncatedOutputPrefix {
		return output
	}
	return string(raw[:truncatedOutputPrefix]) + "...[TRUNCATED]"
}

func mintToolUseID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), uuid.NewString()[:8])
}
