package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/judgehost/judgehost/internal/discovery"
	"github.com/judgehost/judgehost/internal/persistence"
	"github.com/judgehost/judgehost/internal/toolregistry"
)

// LibraryCacheTTL is how long a cached repository lookup stays valid before
// the expiry sweep removes it and the next lookup refetches.
const LibraryCacheTTL = 24 * time.Hour

var libraryInputSchema = map[string]any{
	"type":     "object",
	"required": []any{"repo"},
	"properties": map[string]any{
		"repo": map[string]any{"type": "string", "description": "owner/repo identifier"},
	},
}

// LibraryFactory builds the library/ecosystem query tool: it consults the
// library-cache persistence domain first and only calls out to the
// discovery client on a cache miss, caching the result afterward. Requires
// the persistence manager; the discovery client is optional (absent, a
// cache miss surfaces as an error naming the missing subsystem rather than
// dialing out unauthenticated against the caller's expectations).
var LibraryFactory = toolregistry.Factory{
	Name:     "library",
	Domain:   "library",
	Requires: []string{"persistence"},
	Create: func(services map[string]any) (any, error) {
		mgr := services["persistence"].(*persistence.Manager)
		var client *discovery.Client
		if v, ok := services["discovery"].(*discovery.Client); ok {
			client = v
		}
		adapter := mgr.Adapter(persistence.DomainLibraryCache)

		return &toolregistry.Descriptor{
			Name:        "library",
			Description: "Look up ecosystem/library metadata for an owner/repo identifier, cached after first fetch.",
			InputSchema: libraryInputSchema,
			Domain:      "library",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				repo, _ := args["repo"].(string)
				if repo == "" {
					return nil, fmt.Errorf("library: repo is required")
				}

				if cached, err := adapter.Get(ctx, repo); err == nil && cached != nil {
					return cached, nil
				}

				if client == nil {
					return nil, fmt.Errorf("library: no cache entry for %q and no discovery client configured", repo)
				}
				info, err := client.Lookup(ctx, repo)
				if err != nil {
					return nil, fmt.Errorf("library: %w", err)
				}

				doc := persistence.Document{
					"id":          repo,
					"fullName":    info.FullName,
					"description": info.Description,
					"stars":       info.Stars,
					"language":    info.Language,
					"updatedAt":   info.UpdatedAt,
					"cachedAt":    time.Now(),
				}
				if err := adapter.Put(ctx, repo, doc); err != nil {
					return nil, fmt.Errorf("library: cache write: %w", err)
				}
				return doc, nil
			},
		}, nil
	},
}

// ExpireLibraryCache deletes cached lookups whose cachedAt stamp is older
// than ttl and returns how many were removed. Entries without a parseable
// stamp are left alone. The scheduler runs this periodically so a stale
// cache entry cannot outlive its source repository's metadata forever.
func ExpireLibraryCache(ctx context.Context, adapter *persistence.Adapter, ttl time.Duration) (int, error) {
	docs, err := adapter.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("library: list cache: %w", err)
	}
	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, doc := range docs {
		cachedAt, ok := cacheStamp(doc["cachedAt"])
		if !ok || !cachedAt.Before(cutoff) {
			continue
		}
		id, _ := doc["id"].(string)
		if id == "" {
			continue
		}
		if err := adapter.Delete(ctx, id); err != nil {
			return removed, fmt.Errorf("library: expire %q: %w", id, err)
		}
		removed++
	}
	return removed, nil
}

// cacheStamp reads a cachedAt value in either of the forms the store tiers
// produce: a time.Time from the memory tier, an RFC 3339 string after a
// JSON round-trip through the file tier.
func cacheStamp(v any) (time.Time, bool) {
	switch stamp := v.(type) {
	case time.Time:
		return stamp, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, stamp)
		return t, err == nil
	default:
		return time.Time{}, false
	}
}
