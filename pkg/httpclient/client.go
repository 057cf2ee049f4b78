package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"

	"golang.org/x/time/rate"

	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/faults"
	"tender-ingest/pkg/retry"
)

// ClientType represents the type of HTTP client configuration
type ClientType string

const (
	// APIClient sends a product User-Agent and asks for JSON. Used for REST and OCDS platforms.
	APIClient ClientType = "api"

	// BrowserClient uses browser-like headers to avoid 406 (Not Acceptable) errors
	// Used for portals that are scraped
	BrowserClient ClientType = "browser"

	// CloudflareClient uses simple headers (like curl) to avoid 403 (Forbidden) errors
	// Used for Cloudflare-protected feeds that block browser-like User-Agents
	CloudflareClient ClientType = "cloudflare"
)

const (
	defaultTimeout = 60 * time.Second
	maxBodyBytes   = 32 << 20
	userAgent      = "tender-ingest/1.0 (+procurement notice collector)"
)

// HTTPClient wraps an http.Client with the platform's headers, rate limit and backoff policy.
// Every request made through GetBody, GetJSON or PostJSON waits for the limiter and
// returns classified *faults.Fault errors.
type HTTPClient struct {
	client     *http.Client
	clientType ClientType
	site       domain.SourceSite
	limiter    *rate.Limiter
	policy     retry.Policy
	headers    http.Header
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithSite tags faults raised by the client with site.
func WithSite(site domain.SourceSite) Option {
	return func(c *HTTPClient) { c.site = site }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPClient) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithRateLimit installs a token bucket of rps requests per second. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *HTTPClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetryPolicy sets the backoff policy for transient and rate-limit faults.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *HTTPClient) { c.policy = p }
}

// WithHeader adds a header sent on every request (API keys, Accept overrides).
func WithHeader(key, value string) Option {
	return func(c *HTTPClient) { c.headers.Set(key, value) }
}

// WithHTTPClient replaces the underlying client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewClient creates a new HTTP client with the specified type
func NewClient(clientType ClientType, opts ...Option) *HTTPClient {
	client := &http.Client{
		Timeout: defaultTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Follow up to 10 redirects
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	c := &HTTPClient{
		client:     client,
		clientType: clientType,
		policy:     retry.DefaultPolicy(),
		headers:    http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// With returns a copy of c with opts applied. The copy shares the rate limiter,
// so requests made through either client draw from the same budget.
func (c *HTTPClient) With(opts ...Option) *HTTPClient {
	cp := *c
	hc := *c.client
	cp.client = &hc
	cp.headers = c.headers.Clone()
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

// Do executes an HTTP request with the appropriate headers for the client type.
// It does not rate limit, retry or classify; callers own the response.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.setHeaders(req)
	return c.client.Do(req)
}

// Get is a convenience method for GET requests
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// GetBody fetches url and returns the body of a 2xx response.
func (c *HTTPClient) GetBody(ctx context.Context, url string) ([]byte, error) {
	return c.send(ctx, http.MethodGet, url, nil, "")
}

// GetJSON fetches url and decodes the JSON body into v. Decode failures are parse faults.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, v any) error {
	body, err := c.send(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return err
	}
	return c.decode(url, body, v)
}

// PostJSON sends payload as JSON and decodes the JSON response into v.
func (c *HTTPClient) PostJSON(ctx context.Context, url string, payload, v any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	body, err := c.send(ctx, http.MethodPost, url, data, "application/json")
	if err != nil {
		return err
	}
	return c.decode(url, body, v)
}

func (c *HTTPClient) decode(url string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		f := faults.Parse(c.site, "decode response", err)
		f.URL = redactURL(url)
		return f
	}
	return nil
}

// send runs one logical request under the retry policy.
func (c *HTTPClient) send(ctx context.Context, method, url string, payload []byte, contentType string) ([]byte, error) {
	var body []byte
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.Do(req)
		if err != nil {
			return faults.ClassifyNetworkError(c.site, redactURL(url), err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			return faults.ClassifyHTTPStatus(c.site, resp.StatusCode, redactURL(url), resp.Header)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return faults.ClassifyNetworkError(c.site, redactURL(url), fmt.Errorf("read response body: %w", err))
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// secretParams are query parameters that carry platform credentials.
var secretParams = []string{"serviceKey", "api_key", "apikey", "key"}

// redactURL masks credentials in a URL before it is put into a fault or log line.
func redactURL(raw string) string {
	u, err := neturl.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	q := u.Query()
	changed := false
	for _, name := range secretParams {
		if q.Has(name) {
			q.Set(name, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// setHeaders sets the appropriate headers based on client type
func (c *HTTPClient) setHeaders(req *http.Request) {
	switch c.clientType {
	case APIClient:
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")

	case BrowserClient:
		// Browser-like headers to avoid 406 (Not Acceptable) errors
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Upgrade-Insecure-Requests", "1")

	case CloudflareClient:
		// Cloudflare allows simple tools like curl but blocks browser-like User-Agents
		req.Header.Set("User-Agent", "curl/8.7.1")
	}

	for key, values := range c.headers {
		for i, v := range values {
			if i == 0 {
				req.Header.Set(key, v)
			} else {
				req.Header.Add(key, v)
			}
		}
	}
}
