// Package graph is a small client for the ads graph API.
package graph

import (
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

	"github.com/YannKr/adimport/internal/metric"
)

const maxBodyBytes = 10 << 20

type Options struct {
	// CallDelay is the minimum spacing between two calls made through the client.
	CallDelay time.Duration
	// Timeout bounds each individual call.
	Timeout time.Duration
	// HTTPClient is the base client wrapped by the token transport.
	HTTPClient *http.Client
	Metrics    *metric.Metrics
}

type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	timeout time.Duration
	metrics *metric.Metrics
}

// NewClient returns a client for baseURL (including the API version) that
// authenticates every call with accessToken.
func NewClient(baseURL, accessToken string, opts Options) *Client {
	ctx := context.Background()
	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})

	limit := rate.Inf
	if opts.CallDelay > 0 {
		limit = rate.Every(opts.CallDelay)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    oauth2.NewClient(ctx, src),
		limiter: rate.NewLimiter(limit, 1),
		timeout: timeout,
		metrics: opts.Metrics,
	}
}

// AccountPath normalizes an ad account id to its act_ node form.
func AccountPath(accountID string) string {
	if strings.HasPrefix(accountID, "act_") {
		return accountID
	}
	return "act_" + accountID
}

func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("graph %s: %w", endpoint, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("graph %s: build request: %w", endpoint, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.GraphRequest(endpoint, 0)
		return fmt.Errorf("graph %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.metrics.GraphRequest(endpoint, resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("graph %s: read body: %w", endpoint, err)
	}
	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("graph %s: decode: %w", endpoint, err)
	}
	return nil
}
