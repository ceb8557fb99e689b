package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/judgehost/judgehost/internal/persistence"
	"github.com/judgehost/judgehost/internal/toolregistry"
)

var searchInputSchema = map[string]any{
	"type":     "object",
	"required": []any{"query"},
	"properties": map[string]any{
		"query":  map[string]any{"type": "string"},
		"domain": map[string]any{"type": "string", "enum": []any{"judgments", "knowledge", "patterns", "facts"}},
		"limit":  map[string]any{"type": "integer"},
	},
}

var searchableDomains = map[string]persistence.Domain{
	"judgments": persistence.DomainJudgments,
	"knowledge": persistence.DomainKnowledge,
	"patterns":  persistence.DomainPatterns,
	"facts":     persistence.DomainFacts,
}

// SearchFactory builds the search tool: a case-insensitive substring scan
// over the documents of a chosen domain's persistence adapter, defaulting
// to knowledge when no domain is named. The concrete ranking/indexing
// strategy a production search would use is out of core scope; this is the
// Persistence Manager's uniform adapter surface exercised directly.
var SearchFactory = toolregistry.Factory{
	Name:     "search",
	Domain:   "search",
	Requires: []string{"persistence"},
	Create: func(services map[string]any) (any, error) {
		mgr := services["persistence"].(*persistence.Manager)

		return &toolregistry.Descriptor{
			Name:        "search",
			Description: "Search stored judgments, knowledge, patterns, or facts by substring.",
			InputSchema: searchInputSchema,
			Domain:      "search",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				query, _ := args["query"].(string)
				if query == "" {
					return nil, fmt.Errorf("search: query is required")
				}
				domainName, _ := args["domain"].(string)
				domain, ok := searchableDomains[domainName]
				if !ok {
					domain = persistence.DomainKnowledge
				}
				limit := 20
				if l, ok := args["limit"].(float64); ok && l > 0 {
					limit = int(l)
				}

				needle := strings.ToLower(query)
				docs, err := mgr.Adapter(domain).Search(ctx, func(doc persistence.Document) bool {
					return documentContains(doc, needle)
				})
				if err != nil {
					return nil, fmt.Errorf("search: %w", err)
				}
				if len(docs) > limit {
					docs = docs[:limit]
				}
				return map[string]any{"results": docs, "count": len(docs)}, nil
			},
		}, nil
	},
}

func documentContains(doc persistence.Document, needle string) bool {
	for _, v := range doc {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}
