package chainweb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// CutHashEntry is one chain's tip within a Cut.
type CutHashEntry struct {
	Hash   string `json:"hash"`
	Height uint64 `json:"height"`
}

// Cut is a consistent snapshot of the multi-chain frontier.
type Cut struct {
	Hashes map[string]CutHashEntry `json:"hashes"`
}

// Client talks to the node's HTTP API (spec §6): cut, header/branch,
// payload/outputs, and pact local calls. All requests go through a
// retryablehttp client shared by the Gap Filler and the Guards Reconciler,
// matching spec §5's "one node HTTP client, shared, with a global
// concurrency cap of 50" — the cap itself is enforced by a semaphore the
// caller wraps around Client calls (see internal/concurrency), not by this type.
type Client struct {
	baseURL string
	network string
	http    *retryablehttp.Client
}

// NewClient builds a Client whose retry policy matches spec §4.4 exactly:
// base 500ms, factor 2, max 30s, max 8 attempts.
func NewClient(baseURL, network string) *Client {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 30 * time.Second
	rc.RetryMax = 7 // retries after the first try: 8 attempts in all
	rc.Backoff = retryablehttp.DefaultBackoff
	return &Client{baseURL: baseURL, network: network, http: rc}
}

// HTTPClient exposes the shared client as a standard *http.Client for
// callers (e.g. the SSE reader). Its transport routes each request through
// the retryablehttp client, so opening a connection is retried under the
// same policy; reading a response body that is already open is not retried.
func (c *Client) HTTPClient() *http.Client { return c.http.StandardClient() }

// Cut fetches the current multi-chain frontier.
func (c *Client) Cut(ctx context.Context) (*Cut, error) {
	url := fmt.Sprintf("%s/chainweb/0.0/%s/cut", c.baseURL, c.network)
	var cut Cut
	if err := c.getJSON(ctx, url, &cut); err != nil {
		return nil, fmt.Errorf("fetching cut: %w", err)
	}
	return &cut, nil
}

// HeaderBranch fetches headers for chainID in the inclusive height range
// [minHeight, maxHeight].
func (c *Client) HeaderBranch(ctx context.Context, chainID int, minHeight, maxHeight uint64) ([]RawHeader, error) {
	url := fmt.Sprintf("%s/chainweb/0.0/%s/chain/%d/header/branch?minheight=%d&maxheight=%d",
		c.baseURL, c.network, chainID, minHeight, maxHeight)
	var resp struct {
		Items []RawHeader `json:"items"`
	}
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("fetching header branch chain=%d [%d,%d]: %w", chainID, minHeight, maxHeight, err)
	}
	return resp.Items, nil
}

// PayloadWithOutputs fetches the payload (with execution outputs) for a
// given chain and payload hash.
func (c *Client) PayloadWithOutputs(ctx context.Context, chainID int, payloadHash string) (*RawPayload, error) {
	url := fmt.Sprintf("%s/chainweb/0.0/%s/chain/%d/payload/%s/outputs", c.baseURL, c.network, chainID, payloadHash)
	var payload RawPayload
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, fmt.Errorf("fetching payload chain=%d hash=%s: %w", chainID, payloadHash, err)
	}
	return &payload, nil
}

// PactLocal executes a local (non-transactional) Pact call against the
// given chain, used by the Guards Reconciler to read an account's current
// guard.
func (c *Client) PactLocal(ctx context.Context, chainID int, body []byte) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/chainweb/0.0/%s/chain/%d/pact/api/v1/local", c.baseURL, c.network, chainID)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("building pact local request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pact local call chain=%d: %w", chainID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pact local call chain=%d: status %d", chainID, resp.StatusCode)
	}
	var out json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding pact local response chain=%d: %w", chainID, err)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
