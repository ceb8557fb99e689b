package tools

import (
	"context"
	"fmt"

	"github.com/judgehost/judgehost/internal/session"
	"github.com/judgehost/judgehost/internal/toolregistry"
)

var sessionInputSchema = map[string]any{
	"type":     "object",
	"required": []any{"action", "userId"},
	"properties": map[string]any{
		"action":    map[string]any{"type": "string", "enum": []any{"start", "end", "summary"}},
		"userId":    map[string]any{"type": "string"},
		"project":   map[string]any{"type": "string"},
		"sessionId": map[string]any{"type": "string"},
	},
}

// SessionFactory builds the session-control tool, the client-facing
// surface over the Session Manager's lifecycle operations: start, end, and
// summary.
var SessionFactory = toolregistry.Factory{
	Name:     "session",
	Domain:   "session",
	Requires: []string{"sessions"},
	Create: func(services map[string]any) (any, error) {
		mgr := services["sessions"].(*session.Manager)

		return &toolregistry.Descriptor{
			Name:        "session",
			Description: "Start, end, or summarize sessions tracked per (user, project).",
			InputSchema: sessionInputSchema,
			Domain:      "session",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				action, _ := args["action"].(string)
				userID, _ := args["userId"].(string)
				project, _ := args["project"].(string)

				switch action {
				case "start":
					if userID == "" {
						return nil, fmt.Errorf("session: userId is required")
					}
					sess, err := mgr.StartSession(ctx, userID, project)
					if err != nil {
						return nil, fmt.Errorf("session: start: %w", err)
					}
					return sess, nil
				case "end":
					sessionID, _ := args["sessionId"].(string)
					if sessionID == "" {
						return nil, fmt.Errorf("session: sessionId is required to end")
					}
					ended, reason, err := mgr.EndSession(ctx, sessionID)
					if err != nil {
						return nil, fmt.Errorf("session: end: %w", err)
					}
					return map[string]any{"ended": ended, "reason": reason}, nil
				case "summary", "":
					summary, err := mgr.GetSummary(ctx)
					if err != nil {
						return nil, fmt.Errorf("session: summary: %w", err)
					}
					return summary, nil
				default:
					return nil, fmt.Errorf("session: unknown action %q", action)
				}
			},
		}, nil
	},
}

// All lists every tool factory this package provides, in the order the
// Service Initializer registers them.
func All() []toolregistry.Factory {
	return []toolregistry.Factory{
		JudgeFactory,
		FeedbackFactory,
		SearchFactory,
		PatternFactory,
		LibraryFactory,
		SessionFactory,
	}
}
