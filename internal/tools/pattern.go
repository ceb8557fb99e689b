package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/judgehost/judgehost/internal/persistence"
	"github.com/judgehost/judgehost/internal/toolregistry"
)

var patternInputSchema = map[string]any{
	"type":     "object",
	"required": []any{"action"},
	"properties": map[string]any{
		"action":      map[string]any{"type": "string", "enum": []any{"lookup", "record"}},
		"name":        map[string]any{"type": "string"},
		"description": map[string]any{"type": "string"},
	},
}

// PatternFactory builds the pattern tool: "lookup" lists recorded patterns
// (optionally filtered by exact name), "record" appends a new one. The
// pattern-extraction heuristic itself is out of core scope; this tool only
// exercises the Persistence Manager's patterns domain.
var PatternFactory = toolregistry.Factory{
	Name:     "pattern",
	Domain:   "pattern",
	Requires: []string{"persistence"},
	Create: func(services map[string]any) (any, error) {
		mgr := services["persistence"].(*persistence.Manager)
		adapter := mgr.Adapter(persistence.DomainPatterns)

		return &toolregistry.Descriptor{
			Name:        "pattern",
			Description: "Look up or record a recurring judgment pattern.",
			InputSchema: patternInputSchema,
			Domain:      "pattern",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				action, _ := args["action"].(string)
				switch action {
				case "record":
					name, _ := args["name"].(string)
					if name == "" {
						return nil, fmt.Errorf("pattern: name is required to record")
					}
					description, _ := args["description"].(string)
					id := uuid.NewString()
					doc := persistence.Document{
						"id":          id,
						"name":        name,
						"description": description,
						"createdAt":   time.Now(),
					}
					if err := adapter.Put(ctx, id, doc); err != nil {
						return nil, fmt.Errorf("pattern: record: %w", err)
					}
					return map[string]any{"id": id, "recorded": true}, nil
				case "lookup", "":
					name, _ := args["name"].(string)
					docs, err := adapter.Search(ctx, func(doc persistence.Document) bool {
						if name == "" {
							return true
						}
						n, _ := doc["name"].(string)
						return n == name
					})
					if err != nil {
						return nil, fmt.Errorf("pattern: lookup: %w", err)
					}
					return map[string]any{"patterns": docs}, nil
				default:
					return nil, fmt.Errorf("pattern: unknown action %q", action)
				}
			},
		}, nil
	},
}
