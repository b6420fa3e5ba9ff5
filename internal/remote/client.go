// Package remote mirrors anomalies and their comments to a PostgREST-style
// REST store.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Client talks to the remote anomaly tables.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client for baseURL using httpClient, pacing requests to
// rps per second.
func NewClient(baseURL string, httpClient *http.Client, rps float64) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// NewAuthenticatedClient creates a client whose requests carry the bearer
// token from ts.
func NewAuthenticatedClient(ctx context.Context, baseURL string, ts oauth2.TokenSource, rps float64, timeout time.Duration) *Client {
	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = timeout
	return NewClient(baseURL, hc, rps)
}

// request describes one REST call.
type request struct {
	method string
	table  string
	query  url.Values
	prefer string
	body   any
}

// do executes req and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, req request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.baseURL + "/" + req.table
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	hreq.Header.Set("Accept", "application/json")
	if req.body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	if req.prefer != "" {
		hreq.Header.Set("Prefer", req.prefer)
	}

	resp, err := c.httpClient.Do(hreq)
	if err != nil {
		return fmt.Errorf("remote request failed: %w", err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("remote %s /%s error %d: %s", req.method, req.table, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding remote response: %w", err)
	}
	return nil
}
