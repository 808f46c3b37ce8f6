// Package identity resolves external user identifiers into full profiles by
// calling the identity service with an OAuth2 client-credentials token.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"provisioner/internal/platform/config"
	"provisioner/internal/sentinel"

	"golang.org/x/sync/singleflight"
)

// Client fetches user profiles from the identity service. Tokens are cached
// in memory until near expiry; correctness never depends on the cache, a
// fresh exchange per event is only slower.
type Client struct {
	cfg           config.AuthServer
	tokenClient   *http.Client
	fetchClient   *http.Client
	refreshBuffer time.Duration

	mu    sync.RWMutex
	token *accessToken

	sf singleflight.Group
}

type accessToken struct {
	value     string
	expiresAt time.Time
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client for both token and profile requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.tokenClient = c
		cl.fetchClient = c
	}
}

// WithRefreshBuffer sets how long before expiry to refresh the token.
func WithRefreshBuffer(d time.Duration) Option {
	return func(cl *Client) { cl.refreshBuffer = d }
}

// New creates an identity service client from configuration. Token and
// profile fetches carry independent timeouts. The user endpoint template
// must contain exactly one %s placeholder for the external identifier; a
// malformed template fails here rather than producing broken URLs per event.
func New(cfg config.AuthServer, opts ...Option) (*Client, error) {
	if strings.Count(cfg.UserEndpointTemplate, "%s") != 1 ||
		strings.Count(cfg.UserEndpointTemplate, "%") != 1 {
		return nil, fmt.Errorf("user endpoint template %q must contain exactly one %%s placeholder", cfg.UserEndpointTemplate)
	}

	c := &Client{
		cfg:           cfg,
		tokenClient:   &http.Client{Timeout: cfg.TokenTimeout},
		fetchClient:   &http.Client{Timeout: cfg.FetchTimeout},
		refreshBuffer: 30 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Resolve fetches the profile for an external identifier. It returns a
// sentinel.ErrNotFound wrap on 404 (user absent, not a failure),
// sentinel.ErrAuth when the token exchange fails, and sentinel.ErrUpstream
// for any other identity service failure.
func (c *Client) Resolve(ctx context.Context, externalID string) (*Profile, error) {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(c.cfg.APIBaseURL, "/") +
		fmt.Sprintf(c.cfg.UserEndpointTemplate, url.PathEscape(externalID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.fetchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch profile for %q: %v: %w", externalID, err, sentinel.ErrUpstream)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read profile response for %q: %v: %w", externalID, err, sentinel.ErrUpstream)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("user %q: %w", externalID, sentinel.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("identity service returned %d for %q: %s: %w",
			resp.StatusCode, externalID, truncate(body, 256), sentinel.ErrUpstream)
	}

	var payload profilePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode profile for %q: %v: %w", externalID, err, sentinel.ErrUpstream)
	}

	return payload.toProfile(externalID), nil
}

// bearerToken returns a valid cached token, or exchanges a new one.
// singleflight prevents a thundering herd of concurrent exchanges.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.token != nil && time.Now().Before(c.token.expiresAt.Add(-c.refreshBuffer)) {
		defer c.mu.RUnlock()
		return c.token.value, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("token", func() (any, error) {
		return c.exchangeToken(ctx)
	})
	if err != nil {
		return "", err
	}

	token := result.(*accessToken)
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	return token.value, nil
}

// tokenResponse is the raw JSON response from the token endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// exchangeToken performs the client-credentials grant.
func (c *Client) exchangeToken(ctx context.Context) (*accessToken, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" || c.cfg.TokenEndpoint == "" {
		return nil, fmt.Errorf("client id, secret, or token endpoint not configured: %w", sentinel.ErrAuth)
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}
	if c.cfg.Scopes != "" {
		form.Set("scope", c.cfg.Scopes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.tokenClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %v: %w", err, sentinel.ErrAuth)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %v: %w", err, sentinel.ErrAuth)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d: %s: %w",
			resp.StatusCode, truncate(body, 256), sentinel.ErrAuth)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode token response: %v: %w", err, sentinel.ErrAuth)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("empty access_token in response: %w", sentinel.ErrAuth)
	}

	return &accessToken{
		value:     tr.AccessToken,
		expiresAt: time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
