// Package config loads process configuration from the environment variables
// named in the external interfaces surface: transport mode, listen port,
// durable/cache store URLs, data directory, peer list, anchoring, and the
// GitHub token used by outbound discovery calls.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Transport selects which transport the Server Orchestrator attaches to.
type Transport string

const (
	TransportStream Transport = "stream"
	TransportHTTP   Transport = "http"
)

// Config is the fully-resolved process configuration.
type Config struct {
	Transport Transport

	HTTPPort int

	DurableURL string
	CacheURL   string
	DataDir    string

	PeerNodes []string

	AnchoringEnabled bool
	AnchoringWallet  string

	GitHubToken string

	RequestBodyLimitBytes int64
	RequestTimeout        time.Duration
	ShutdownBudget        time.Duration
	SSEKeepalive          time.Duration
	MaxResponseBytes      int
}

// FromEnv parses Config from the process environment, applying the defaults
// called out in the external interfaces: HTTP port 3000, 1 MiB request body
// cap, 30s request timeout, 10s shutdown budget, 30s SSE keepalive, and a
// 100 KB maximum JSON-RPC response size.
func FromEnv() Config {
	cfg := Config{
		Transport:             TransportStream,
		HTTPPort:              3000,
		RequestBodyLimitBytes: 1 << 20,
		RequestTimeout:        30 * time.Second,
		ShutdownBudget:        10 * time.Second,
		SSEKeepalive:          30 * time.Second,
		MaxResponseBytes:      100 * 1024,
	}

	if v := os.Getenv("JUDGEHOST_TRANSPORT"); v == string(TransportHTTP) {
		cfg.Transport = TransportHTTP
	}
	if v := os.Getenv("JUDGEHOST_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPort = n
		}
	}
	cfg.DurableURL = os.Getenv("JUDGEHOST_DURABLE_URL")
	cfg.CacheURL = os.Getenv("JUDGEHOST_CACHE_URL")
	cfg.DataDir = os.Getenv("JUDGEHOST_DATA_DIR")
	if v := os.Getenv("JUDGEHOST_PEER_NODES"); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.PeerNodes = append(cfg.PeerNodes, p)
			}
		}
	}
	cfg.AnchoringWallet = os.Getenv("JUDGEHOST_ANCHOR_WALLET")
	cfg.AnchoringEnabled = os.Getenv("JUDGEHOST_ANCHOR_ENABLE") == "true" && cfg.AnchoringWallet != ""
	cfg.GitHubToken = os.Getenv("GITHUB_TOKEN")

	return cfg
}
