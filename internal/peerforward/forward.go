// Package peerforward implements the Service Initializer's best-effort
// judgment forwarding to peer node endpoints: a short-lived HTTP POST per
// configured peer, rate-limited so a burst of judgments cannot flood a
// peer, with failures logged and never surfaced to the originating
// request.
package peerforward

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/judgehost/judgehost/internal/telemetry"
)

const forwardTimeout = 5 * time.Second

// Forwarder fans a judgment payload out to a fixed set of peer endpoints.
type Forwarder struct {
	peers      []string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     telemetry.Logger
}

// New constructs a Forwarder over peers. A nil/empty peers list makes
// Forward a no-op, so callers can wire this unconditionally.
func New(peers []string, logger telemetry.Logger) *Forwarder {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Forwarder{
		peers:      peers,
		httpClient: &http.Client{Timeout: forwardTimeout},
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		logger:     logger,
	}
}

// Forward posts payload to every configured peer's /hooks/event endpoint.
// Each send is independent: one peer's failure does not block or cancel
// sends to the others, and no error is ever returned to the caller.
func (f *Forwarder) Forward(ctx context.Context, payload any) {
	if len(f.peers) == 0 {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		f.logger.Warn(ctx, "peer forward marshal failed", "error", err.Error())
		return
	}
	for _, peer := range f.peers {
		go f.send(ctx, peer, body)
	}
}

func (f *Forwarder) send(ctx context.Context, peer string, body []byte) {
	if err := f.limiter.Wait(ctx); err != nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, peer+"/hooks/event", bytes.NewReader(body))
	if err != nil {
		f.logger.Warn(ctx, "peer forward request build failed", "peer", peer, "error", err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Warn(ctx, "peer forward failed", "peer", peer, "error", err.Error())
		return
	}
	_ = resp.Body.Close()
}
