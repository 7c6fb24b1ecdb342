package spotify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"songbattle/pkg/oauth"
)

// DefaultHTTPTimeout bounds resource API requests.
const DefaultHTTPTimeout = 10 * time.Second

// Image is a provider-hosted image reference. Dimensions may be null.
type Image struct {
	URL    string `json:"url"`
	Height *int   `json:"height"`
	Width  *int   `json:"width"`
}

// Profile is the authenticated user's identity as returned by the resource
// API. Read-only; refreshed whenever a new token record is applied.
type Profile struct {
	ID          string  `json:"id"`
	Country     string  `json:"country"`
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email"`
	Images      []Image `json:"images"`
}

// Client fetches identity data from the resource API using bearer
// credentials.
type Client struct {
	profileEndpoint string
	timeout         time.Duration
}

// NewClient creates a resource API client for the given profile endpoint.
func NewClient(profileEndpoint string) *Client {
	return &Client{
		profileEndpoint: profileEndpoint,
		timeout:         DefaultHTTPTimeout,
	}
}

// FetchProfile fetches the authenticated user's profile with the given
// access token. Any failure, HTTP-level included, is classified as a network
// error: the provider does not usefully distinguish a bad token from a bad
// profile request at this call site, and a profile failure right after a
// token was obtained means the account is unusable either way.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})
	httpClient := oauth2.NewClient(ctx, src)
	httpClient.Timeout = c.timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileEndpoint, nil)
	if err != nil {
		return nil, oauth.NewAuthError(oauth.KindNetworkError, "failed to create profile request", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, oauth.NewAuthError(oauth.KindNetworkError, "failed to fetch profile", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, oauth.NewAuthError(oauth.KindNetworkError, "failed to read profile response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, oauth.NewAuthError(oauth.KindNetworkError, "failed to fetch profile", &statusError{
			status: resp.StatusCode,
			body:   string(body),
		})
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, oauth.NewAuthError(oauth.KindNetworkError, "failed to parse profile response", err)
	}

	return &profile, nil
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return http.StatusText(e.status)
	}
	return e.body
}
