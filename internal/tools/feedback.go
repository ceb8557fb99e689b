package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/judgehost/judgehost/internal/persistence"
	"github.com/judgehost/judgehost/internal/session"
	"github.com/judgehost/judgehost/internal/toolregistry"
)

var feedbackInputSchema = map[string]any{
	"type":     "object",
	"required": []any{"judgmentId", "rating"},
	"properties": map[string]any{
		"judgmentId": map[string]any{"type": "string"},
		"rating":     map[string]any{"type": "string"},
		"comment":    map[string]any{"type": "string"},
	},
}

// FeedbackFactory builds the feedback tool: it persists user feedback
// against a prior judgment and, when a session is active, increments its
// feedback counter.
var FeedbackFactory = toolregistry.Factory{
	Name:     "feedback",
	Domain:   "feedback",
	Requires: []string{"persistence"},
	Create: func(services map[string]any) (any, error) {
		mgr := services["persistence"].(*persistence.Manager)
		var sessions *session.Manager
		if v, ok := services["sessions"].(*session.Manager); ok {
			sessions = v
		}
		adapter := mgr.Adapter(persistence.DomainFeedback)

		return &toolregistry.Descriptor{
			Name:        "feedback",
			Description: "Record human feedback on a previously issued judgment.",
			InputSchema: feedbackInputSchema,
			Domain:      "feedback",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				judgmentID, _ := args["judgmentId"].(string)
				rating, _ := args["rating"].(string)
				comment, _ := args["comment"].(string)
				if judgmentID == "" || rating == "" {
					return nil, fmt.Errorf("feedback: judgmentId and rating are required")
				}

				id := uuid.NewString()
				doc := persistence.Document{
					"id":         id,
					"judgmentId": judgmentID,
					"rating":     rating,
					"comment":    comment,
					"createdAt":  time.Now(),
				}
				if err := adapter.Put(ctx, id, doc); err != nil {
					return nil, fmt.Errorf("feedback: persist: %w", err)
				}
				if sessions != nil {
					_ = sessions.IncrementCounter(ctx, "feedback")
				}
				return map[string]any{"id": id, "recorded": true}, nil
			},
		}, nil
	},
}
