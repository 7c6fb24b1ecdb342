package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHTTPTimeout bounds token endpoint requests. The provider's contract
// specifies no timeout, but an unbounded hang would block the boot sequence
// indefinitely.
const DefaultHTTPTimeout = 10 * time.Second

// Client talks to the provider's token endpoint for both the
// authorization_code and refresh_token grants. All failures are normalized
// into the AuthError taxonomy at this boundary.
type Client struct {
	tokenEndpoint string
	clientID      string
	redirectURI   string
	httpClient    *http.Client
}

// ClientOption configures the token exchange client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a token exchange client for the given endpoint,
// public client id, and redirect URI.
func NewClient(tokenEndpoint, clientID, redirectURI string, opts ...ClientOption) *Client {
	c := &Client{
		tokenEndpoint: tokenEndpoint,
		clientID:      clientID,
		redirectURI:   redirectURI,
		httpClient:    &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExchangeCode exchanges an authorization code for tokens using the PKCE
// verifier generated at login time.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c.redirectURI},
		"client_id":     {c.clientID},
		"code_verifier": {verifier},
	}
	return c.doTokenRequest(ctx, data, KindTokenExchangeFailed)
}

// Refresh obtains a new access token using a refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.clientID},
	}
	return c.doTokenRequest(ctx, data, KindRefreshFailed)
}

// AuthorizationURL constructs the authorization endpoint URL the browser is
// redirected to at login.
func (c *Client) AuthorizationURL(authEndpoint, scope string, handshake *Handshake) (string, error) {
	authURL, err := url.Parse(authEndpoint)
	if err != nil {
		return "", NewAuthError(KindTokenExchangeFailed, "invalid authorization endpoint", err)
	}

	query := authURL.Query()
	query.Set("response_type", "code")
	query.Set("client_id", c.clientID)
	query.Set("scope", scope)
	query.Set("state", handshake.State)
	query.Set("code_challenge_method", "S256")
	query.Set("code_challenge", handshake.Challenge())
	query.Set("redirect_uri", c.redirectURI)
	authURL.RawQuery = query.Encode()

	return authURL.String(), nil
}

// RedirectURI returns the configured redirect URI.
func (c *Client) RedirectURI() string {
	return c.redirectURI
}

// doTokenRequest performs a form-encoded POST against the token endpoint and
// converts the relative expires_in into an absolute expiry at receipt time.
// Non-2xx responses are classified with rejectKind; anything below the HTTP
// layer is a network error; caller cancellation propagates as the context
// error so callers can decide whether to retry.
func (c *Client) doTokenRequest(ctx context.Context, data url.Values, rejectKind ErrorKind) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, NewAuthError(rejectKind, "failed to create token request", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewAuthError(KindNetworkError, "token request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewAuthError(KindNetworkError, "failed to read token response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewAuthError(rejectKind, "", &providerError{
			status: resp.StatusCode,
			body:   string(body),
		})
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, NewAuthError(rejectKind, "failed to parse token response", err)
	}

	return tokenResp.ToToken(time.Now()), nil
}

// providerError carries the provider's rejection as diagnostic detail.
// Provider error bodies are sometimes JSON and sometimes plain text; they are
// kept opaque here and never parsed past this boundary.
type providerError struct {
	status int
	body   string
}

func (e *providerError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("provider returned status %d", e.status)
	}
	return e.body
}
