// Package discovery implements outbound library/ecosystem lookups against
// the GitHub API, authenticated with the token named in the external
// interfaces' configuration table. It backs the library/ecosystem query
// tool's cache-miss path; results are cached by the caller through the
// library-cache persistence domain, not by this package.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// apiBase is a var rather than a const so tests can redirect lookups to a
// local server.
var apiBase = "https://api.github.com"

// Client performs outbound repository metadata lookups.
type Client struct {
	token      string
	httpClient *http.Client
}

// New constructs a Client. An empty token still performs requests, subject
// to GitHub's unauthenticated rate limit.
func New(token string) *Client {
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// RepoInfo is the subset of a GitHub repository record the library tool
// surfaces to clients.
type RepoInfo struct {
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Stars       int    `json:"stargazers_count"`
	Language    string `json:"language"`
	UpdatedAt   string `json:"updated_at"`
}

// Lookup fetches metadata for an "owner/repo" identifier.
func (c *Client) Lookup(ctx context.Context, ownerRepo string) (*RepoInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/repos/"+ownerRepo, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery: lookup %s: %w", ownerRepo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery: lookup %s: status %d", ownerRepo, resp.StatusCode)
	}
	var info RepoInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("discovery: decode %s: %w", ownerRepo, err)
	}
	return &info, nil
}

// Shutdown releases resources held by the client. The underlying
// http.Client needs no explicit teardown; this exists so the Server
// Orchestrator's shutdown sequence ("shutdown discovery") has a symmetric
// call even when there is nothing to flush.
func (c *Client) Shutdown(context.Context) error { return nil }
