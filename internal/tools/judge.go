// Package tools registers the MCP tool descriptors named in the external
// interfaces surface: judge, feedback, search, pattern, library, and
// session control. Each handler's body is a minimal, documented stub —
// the scoring algorithm behind judge and the concrete per-domain schemas
// are out of core scope — but every handler persists and retrieves
// through the Persistence Manager's adapters exactly as a full
// implementation would.
package tools

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/judgehost/judgehost/internal/eventbus"
	"github.com/judgehost/judgehost/internal/persistence"
	"github.com/judgehost/judgehost/internal/poj"
	"github.com/judgehost/judgehost/internal/toolregistry"
)

// JudgmentCreatedEvent is published whenever the judge tool records a new
// judgment, separate from the PoJ chain's own block-created event.
const JudgmentCreatedEvent = "judgment:created"

var verdicts = []string{"HOWL", "WAG", "GROWL", "BARK"}

var judgeInputSchema = map[string]any{
	"type":     "object",
	"required": []any{"item"},
	"properties": map[string]any{
		"item": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content":  map[string]any{"type": "string"},
				"verified": map[string]any{"type": "boolean"},
			},
		},
	},
}

// JudgeFactory builds the judge tool. It requires the persistence manager;
// the PoJ chain manager and event bus are optional so the tool still works
// in a minimal wiring (e.g. unit tests) without a chain or bus.
var JudgeFactory = toolregistry.Factory{
	Name:     "judge",
	Domain:   "judge",
	Requires: []string{"persistence"},
	Create: func(services map[string]any) (any, error) {
		mgr := services["persistence"].(*persistence.Manager)
		var chain *poj.Manager
		if v, ok := services["poj"].(*poj.Manager); ok {
			chain = v
		}
		var bus *eventbus.Bus
		if v, ok := services["bus"].(*eventbus.Bus); ok {
			bus = v
		}
		adapter := mgr.Adapter(persistence.DomainJudgments)

		return &toolregistry.Descriptor{
			Name:        "judge",
			Description: "Evaluate an item and record a judgment with a score, verdict and confidence.",
			InputSchema: judgeInputSchema,
			Domain:      "judge",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return runJudge(ctx, args, adapter, chain, bus)
			},
		}, nil
	},
}

func runJudge(ctx context.Context, args map[string]any, adapter *persistence.Adapter, chain *poj.Manager, bus *eventbus.Bus) (any, error) {
	item, _ := args["item"].(map[string]any)
	content, _ := item["content"].(string)
	verified, _ := item["verified"].(bool)

	requestID := uuid.NewString()
	score, verdict, confidence := evaluate(content, verified)

	judgment := persistence.Document{
		"id":         requestID,
		"requestId":  requestID,
		"score":      score,
		"verdict":    verdict,
		"confidence": confidence,
		"createdAt":  time.Now(),
	}
	if err := adapter.Put(ctx, requestID, judgment); err != nil {
		return nil, fmt.Errorf("judge: persist judgment: %w", err)
	}

	if chain != nil {
		if err := chain.AddJudgment(ctx, requestID); err != nil {
			return nil, fmt.Errorf("judge: add to poj chain: %w", err)
		}
	}
	if bus != nil {
		bus.Publish(ctx, JudgmentCreatedEvent, judgment)
	}

	return map[string]any{
		"requestId":  requestID,
		"score":      score,
		"verdict":    verdict,
		"confidence": confidence,
	}, nil
}

// evaluate is a documented, deterministic placeholder for the scoring
// algorithm the core substrate does not own: it derives a score and
// verdict from a hash of the content so dispatching the same content
// twice yields the same result, without embedding any real judgment
// model.
func evaluate(content string, verified bool) (score int, verdict string, confidence float64) {
	sum := sha256.Sum256([]byte(content))
	score = int(binary.BigEndian.Uint32(sum[:4]) % 101)
	if verified && score < 50 {
		score += 25
	}
	verdict = verdicts[int(sum[4])%len(verdicts)]
	confidence = float64(sum[5]) / 255.0
	return score, verdict, confidence
}
