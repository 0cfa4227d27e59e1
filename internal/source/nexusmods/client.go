package nexusmods

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"nexusbridge/internal/domain"
)

const (
	// minRequestDelay is the floor between consecutive outgoing requests on
	// a single client instance. The Nexus API tolerates roughly 10 req/s.
	minRequestDelay = 100 * time.Millisecond

	maxRetries = 3
	retryPause = 2 * time.Second

	connectTimeout = 30 * time.Second
	overallTimeout = 60 * time.Second
)

// Client wraps the NexusMods REST v1 and GraphQL v2 APIs
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	graphqlURL string
	userAgent  string

	// Rate limiting state. Workers share one client, so the timestamp of
	// the last outgoing request lives behind the client's own lock.
	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a new NexusMods API client. A nil httpClient gets the
// default transport with a 30 s connect timeout and 60 s overall timeout.
func NewClient(httpClient *http.Client, apiKey string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: overallTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   connectTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:   true,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}

	return &Client{
		httpClient: httpClient,
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		graphqlURL: defaultGraphQLURL,
		userAgent:  "nexusbridge/1.0",
	}
}

// IsAuthenticated returns true if an API key is configured
func (c *Client) IsAuthenticated() bool {
	return c.apiKey != ""
}

// waitForRateLimit blocks until at least minRequestDelay has passed since the
// previous request on this client, then claims the slot.
func (c *Client) waitForRateLimit(ctx context.Context) error {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < minRequestDelay {
		wait := minRequestDelay - elapsed
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		c.mu.Lock()
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
	return nil
}

// Validate checks the API key against the validate endpoint and returns the
// account's username and premium status. Non-200 responses map to
// domain.ErrAuthFailed.
func (c *Client) Validate(ctx context.Context) (*ValidateResult, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", domain.ErrAuthFailed)
	}

	var result ValidateResult
	status, err := c.getJSON(ctx, c.baseURL+"/v1/users/validate.json", &result)
	if err != nil {
		return nil, fmt.Errorf("validating credentials: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: validate returned status %d", domain.ErrAuthFailed, status)
	}
	return &result, nil
}

// ResolveDownload resolves the CDN download URIs for a (modId, fileId) pair.
// A 403 means the account cannot receive direct links (premium required) and
// yields an empty list, not an error. Other non-200 statuses are retried as
// transient.
func (c *Client) ResolveDownload(ctx context.Context, gameDomain string, modID, fileID int64) ([]string, error) {
	url := fmt.Sprintf("%s/v1/games/%s/mods/%d/files/%d/download_link.json",
		c.baseURL, gameDomain, modID, fileID)
	return c.resolveLinks(ctx, url, modID, fileID)
}

// ResolveDownloadKeyed resolves download URIs using the key and expiry from
// an nxm:// link, which works for non-premium accounts for a single file.
func (c *Client) ResolveDownloadKeyed(ctx context.Context, gameDomain string, modID, fileID int64, key, expires string) ([]string, error) {
	url := fmt.Sprintf("%s/v1/games/%s/mods/%d/files/%d/download_link.json?key=%s&expires=%s",
		c.baseURL, gameDomain, modID, fileID, key, expires)
	return c.resolveLinks(ctx, url, modID, fileID)
}

func (c *Client) resolveLinks(ctx context.Context, url string, modID, fileID int64) ([]string, error) {

	var links []DownloadLink
	var status int
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		status, err = c.getJSON(ctx, url, &links)
		if err == nil && status == http.StatusOK {
			break
		}
		if status == http.StatusForbidden {
			return nil, nil
		}
		if err != nil && !isTransient(err) {
			return nil, fmt.Errorf("resolving download link: %w", err)
		}
		if attempt == maxRetries {
			if err == nil {
				err = fmt.Errorf("status %d", status)
			}
			return nil, fmt.Errorf("resolving download link for mod %d file %d: %w", modID, fileID, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryPause):
		}
	}

	uris := make([]string, 0, len(links))
	for _, l := range links {
		if l.URI != "" {
			uris = append(uris, l.URI)
		}
	}
	return uris, nil
}

// getJSON performs a rate-limited authenticated GET and decodes the JSON
// body on 200. The status code is returned for all non-transport failures.
func (c *Client) getJSON(ctx context.Context, url string, result interface{}) (int, error) {
	if err := c.waitForRateLimit(ctx); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	if len(body) == 0 {
		return resp.StatusCode, errEmptyBody
	}
	if err := json.Unmarshal(body, result); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, nil
}

var errEmptyBody = errors.New("empty response body")

// isTransient reports whether an error warrants a retry: timeouts,
// connection resets, DNS failures and empty response bodies.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, errEmptyBody) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return false
}

// EncodeURLSpaces percent-encodes spaces in the path portion of a CDN URL.
// Nexus CDN links can carry literal spaces from the upstream filename; the
// query string is preserved untouched.
func EncodeURLSpaces(raw string) string {
	path := raw
	query := ""
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		path, query = raw[:i], raw[i:]
	}
	return strings.ReplaceAll(path, " ", "%20") + query
}
