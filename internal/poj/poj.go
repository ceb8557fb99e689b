// Package poj implements the Proof-of-Judgment chain manager: an
// append-only, hash-linked sequence of blocks batching judgment references,
// with startup integrity verification and size/time-based batch sealing.
package poj

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/judgehost/judgehost/internal/eventbus"
	"github.com/judgehost/judgehost/internal/persistence"
	"github.com/judgehost/judgehost/internal/telemetry"
)

// GenesisHash is the fixed sentinel previous-hash for slot 0.
const GenesisHash = "genesis"

// BlockCreatedEvent is the event name published when a block seals.
const BlockCreatedEvent = "poj:block:created"

// ErrClosing is returned by AddJudgment once Close has been called.
var ErrClosing = errors.New("poj: chain manager is closing")

// JudgmentRef is the ordered reference stored in a sealed block.
type JudgmentRef struct {
	JudgmentID string `json:"judgment_id"`
}

// Block is a sealed batch of judgment references linked by hash to the
// preceding block.
type Block struct {
	Slot          int           `json:"slot"`
	PreviousHash  string        `json:"previous_hash"`
	JudgmentsRoot string        `json:"judgments_root"`
	Judgments     []JudgmentRef `json:"judgments"`
	Hash          string        `json:"hash"`
	CreatedAt     time.Time     `json:"created_at"`
}

// IntegrityError names a single hash-chain mismatch found during startup
// verification.
type IntegrityError struct {
	Slot   int    `json:"slot"`
	Reason string `json:"reason"`
}

// IntegrityReport is the result of startup verification.
type IntegrityReport struct {
	Valid         bool             `json:"valid"`
	BlocksChecked int              `json:"blocksChecked"`
	Errors        []IntegrityError `json:"errors"`
}

// Config controls batch sealing thresholds.
type Config struct {
	BatchSize     int
	BatchInterval time.Duration
}

// Manager is a single-owner actor over the pending-judgment buffer: all
// buffer mutation happens under mu, and sealMu serialises seal attempts so
// AddJudgment can never straddle a seal in progress and two seals can never
// race for the same slot.
type Manager struct {
	mu      sync.Mutex
	sealMu  sync.Mutex
	cfg     Config
	adapter *persistence.Adapter
	bus     *eventbus.Bus
	logger  telemetry.Logger

	head    *Block
	pending []JudgmentRef
	oldest  time.Time
	closing bool
	closed  bool

	// timer fires the time-based seal once the oldest pending item has
	// aged past the batch interval without the size threshold tripping.
	timer *time.Timer
}

// NewManager constructs a chain manager. It does not itself perform startup
// verification; call VerifyIntegrity explicitly during service
// initialization so its report can be surfaced before accepting writes.
func NewManager(cfg Config, adapter *persistence.Adapter, bus *eventbus.Bus, logger telemetry.Logger) *Manager {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = 10 * time.Second
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Manager{cfg: cfg, adapter: adapter, bus: bus, logger: logger}
}

// VerifyIntegrity walks every persisted block from slot 0 upward confirming
// previous_hash == hash(previous block). It never mutates the chain. The
// current head is set to the last valid block found so new blocks link
// correctly even if trailing blocks fail verification.
func (m *Manager) VerifyIntegrity(ctx context.Context) (IntegrityReport, error) {
	docs, err := m.adapter.List(ctx)
	if err != nil {
		return IntegrityReport{}, err
	}
	blocks := make([]*Block, 0, len(docs))
	for _, d := range docs {
		b, err := blockFromDocument(d)
		if err != nil {
			return IntegrityReport{}, err
		}
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Slot < blocks[j].Slot })

	report := IntegrityReport{Valid: true, BlocksChecked: len(blocks)}
	var prev *Block
	for _, b := range blocks {
		wantPrevHash := GenesisHash
		if prev != nil {
			wantPrevHash = prev.Hash
		}
		if b.PreviousHash != wantPrevHash {
			report.Valid = false
			if len(report.Errors) < 3 {
				report.Errors = append(report.Errors, IntegrityError{
					Slot:   b.Slot,
					Reason: fmt.Sprintf("previous_hash mismatch: want %s, got %s", wantPrevHash, b.PreviousHash),
				})
			}
		} else {
			prev = b
		}
	}

	m.mu.Lock()
	m.head = prev
	m.mu.Unlock()

	if !report.Valid {
		m.logger.Error(ctx, "poj chain integrity check failed", "blocksChecked", report.BlocksChecked, "errorCount", len(report.Errors))
	}
	return report, nil
}

// AddJudgment appends a judgment reference to the pending buffer. Sealing
// is triggered once the buffer reaches the configured size or the oldest
// pending item has aged past the configured interval, whichever comes
// first. Judgments appear in a block in call order.
func (m *Manager) AddJudgment(ctx context.Context, judgmentID string) error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return ErrClosing
	}
	if len(m.pending) == 0 {
		m.oldest = time.Now()
		if m.timer == nil {
			m.timer = time.AfterFunc(m.cfg.BatchInterval, m.sealOnTimer)
		} else {
			m.timer.Reset(m.cfg.BatchInterval)
		}
	}
	m.pending = append(m.pending, JudgmentRef{JudgmentID: judgmentID})
	shouldSeal := len(m.pending) >= m.cfg.BatchSize || time.Since(m.oldest) >= m.cfg.BatchInterval
	m.mu.Unlock()

	if shouldSeal {
		return m.seal(ctx)
	}
	return nil
}

// sealOnTimer is the time-based trigger: it seals whatever is pending once
// the oldest item has waited a full batch interval. Seal failures here are
// already logged by seal and will replay on the next trigger.
func (m *Manager) sealOnTimer() {
	_ = m.seal(context.Background())
}

// seal computes and persists the next block from the current pending
// buffer. If persistence fails the buffer is restored to its pre-seal state
// so a subsequent attempt replays the same judgments. sealMu serialises
// concurrent seal triggers (size threshold, timer, close) so only one can
// extend the head at a time.
func (m *Manager) seal(ctx context.Context) error {
	m.sealMu.Lock()
	defer m.sealMu.Unlock()

	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return nil
	}
	batch := make([]JudgmentRef, len(m.pending))
	copy(batch, m.pending)
	prevHash := GenesisHash
	nextSlot := 0
	if m.head != nil {
		prevHash = m.head.Hash
		nextSlot = m.head.Slot + 1
	}

	root := judgmentsRoot(batch)
	block := &Block{
		Slot:          nextSlot,
		PreviousHash:  prevHash,
		JudgmentsRoot: root,
		Judgments:     batch,
		CreatedAt:     time.Now(),
	}
	block.Hash = blockHash(block.Slot, block.PreviousHash, block.JudgmentsRoot)
	m.mu.Unlock()

	if err := m.adapter.Put(ctx, fmt.Sprintf("%d", block.Slot), blockToDocument(block)); err != nil {
		m.logger.Error(ctx, "poj block seal failed, restoring pending buffer", "slot", block.Slot, "error", err.Error())
		return err
	}

	m.mu.Lock()
	m.pending = m.pending[len(batch):]
	if len(m.pending) > 0 {
		m.oldest = time.Now()
		if m.timer != nil {
			m.timer.Reset(m.cfg.BatchInterval)
		}
	} else if m.timer != nil {
		m.timer.Stop()
	}
	m.head = block
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(ctx, BlockCreatedEvent, block)
	}
	return nil
}

// Close rejects further AddJudgment calls and seals any non-empty pending
// buffer as the final block.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closing = true
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
	}
	m.mu.Unlock()

	return m.seal(ctx)
}

// Head returns the current chain head, or nil if no block has sealed yet.
func (m *Manager) Head() *Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.head
}

func judgmentsRoot(refs []JudgmentRef) string {
	leaves := make([][]byte, len(refs))
	for i, r := range refs {
		sum := sha256.Sum256([]byte(r.JudgmentID))
		leaves[i] = sum[:]
	}
	return hex.EncodeToString(merkleRoot(leaves))
}

// merkleRoot computes a standard binary Merkle root, duplicating the final
// node at each level when the level has an odd count.
func merkleRoot(leaves [][]byte) []byte {
	if len(leaves) == 0 {
		sum := sha256.Sum256(nil)
		return sum[:]
	}
	level := leaves
	for len(level) > 1 {
		var next [][]byte
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			sum := sha256.Sum256(append(append([]byte{}, left...), right...))
			next = append(next, sum[:])
		}
		level = next
	}
	return level[0]
}

func blockHash(slot int, previousHash, judgmentsRoot string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s", slot, previousHash, judgmentsRoot)
	return hex.EncodeToString(h.Sum(nil))
}

func blockToDocument(b *Block) persistence.Document {
	return persistence.Document{
		"id":             fmt.Sprintf("%d", b.Slot),
		"slot":           b.Slot,
		"previous_hash":  b.PreviousHash,
		"judgments_root": b.JudgmentsRoot,
		"judgments":      b.Judgments,
		"hash":           b.Hash,
		"created_at":     b.CreatedAt,
	}
}

func blockFromDocument(d persistence.Document) (*Block, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var b Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
