package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenHandler(t *testing.T, wantGrant string, resp TokenResponse) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, wantGrant, r.FormValue("grant_type"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}
}

func TestExchangeCode(t *testing.T) {
	server := httptest.NewServer(tokenHandler(t, "authorization_code", TokenResponse{
		AccessToken:  "access-123",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		RefreshToken: "refresh-456",
		Scope:        "user-read-private",
	}))
	defer server.Close()

	client := NewClient(server.URL, "client-id", "http://127.0.0.1:8888/callback")

	before := time.Now()
	token, err := client.ExchangeCode(context.Background(), "code-abc", "verifier-xyz")
	require.NoError(t, err)

	assert.Equal(t, "access-123", token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, "refresh-456", token.RefreshToken)
	assert.Equal(t, "user-read-private", token.Scope)

	// expires_in=3600 must land within a small epsilon of now + 1h.
	want := before.Add(time.Hour)
	assert.WithinDuration(t, want, token.ExpiresAt, 5*time.Second)
}

func TestExchangeCode_SendsPKCEParams(t *testing.T) {
	var form map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{
			"code":          r.FormValue("code"),
			"redirect_uri":  r.FormValue("redirect_uri"),
			"client_id":     r.FormValue("client_id"),
			"code_verifier": r.FormValue("code_verifier"),
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(TokenResponse{AccessToken: "a", TokenType: "Bearer", ExpiresIn: 60}))
	}))
	defer server.Close()

	client := NewClient(server.URL, "client-id", "http://127.0.0.1:8888/callback")
	_, err := client.ExchangeCode(context.Background(), "code-abc", "verifier-xyz")
	require.NoError(t, err)

	assert.Equal(t, "code-abc", form["code"])
	assert.Equal(t, "http://127.0.0.1:8888/callback", form["redirect_uri"])
	assert.Equal(t, "client-id", form["client_id"])
	assert.Equal(t, "verifier-xyz", form["code_verifier"])
}

func TestExchangeCode_ProviderRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, "client-id", "http://127.0.0.1:8888/callback")
	_, err := client.ExchangeCode(context.Background(), "bad-code", "verifier")

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, KindTokenExchangeFailed, authErr.Kind)
	assert.Contains(t, authErr.Error(), "invalid_grant")
}

func TestRefresh_ProviderRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "revoked", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, "client-id", "http://127.0.0.1:8888/callback")
	_, err := client.Refresh(context.Background(), "stale-refresh")

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, KindRefreshFailed, authErr.Kind)
}

func TestRefresh_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused

	client := NewClient(server.URL, "client-id", "http://127.0.0.1:8888/callback")
	_, err := client.Refresh(context.Background(), "refresh")

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, KindNetworkError, authErr.Kind)
}

func TestRefresh_CancellationIsDistinguishable(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client disconnect and cancel r.Context().
		require.NoError(t, r.ParseForm())
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(server.URL, "client-id", "http://127.0.0.1:8888/callback")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := client.Refresh(ctx, "refresh")
	require.Error(t, err)

	// Cancellation must not be folded into the network_error kind.
	assert.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
	var authErr *AuthError
	assert.False(t, errors.As(err, &authErr))
}

func TestAuthorizationURL(t *testing.T) {
	client := NewClient("https://accounts.spotify.com/api/token", "client-id", "http://127.0.0.1:8888/callback")

	handshake, err := NewHandshake(client.RedirectURI())
	require.NoError(t, err)

	rawURL, err := client.AuthorizationURL("https://accounts.spotify.com/authorize", "user-read-private user-read-email", handshake)
	require.NoError(t, err)

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)

	query := parsed.Query()
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, "client-id", query.Get("client_id"))
	assert.Equal(t, "user-read-private user-read-email", query.Get("scope"))
	assert.Equal(t, handshake.State, query.Get("state"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))
	assert.Equal(t, handshake.Challenge(), query.Get("code_challenge"))
	assert.Equal(t, "http://127.0.0.1:8888/callback", query.Get("redirect_uri"))
}

func TestTokenResponse_ToToken_Monotonic(t *testing.T) {
	resp := TokenResponse{AccessToken: "a", TokenType: "Bearer", ExpiresIn: 3600}

	first := resp.ToToken(time.Now())
	second := resp.ToToken(time.Now())

	assert.False(t, second.ExpiresAt.Before(first.ExpiresAt),
		"re-converting the same response later must not move expiry backwards")
}

func TestToken_JSONRoundTrip(t *testing.T) {
	token := &Token{
		AccessToken:  "access",
		TokenType:    "Bearer",
		ExpiresAt:    time.UnixMilli(1700000000000),
		RefreshToken: "refresh",
		Scope:        "user-read-private",
	}

	data, err := json.Marshal(token)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"expiresAt":1700000000000`)

	var decoded Token
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, token.AccessToken, decoded.AccessToken)
	assert.True(t, token.ExpiresAt.Equal(decoded.ExpiresAt))
	assert.Equal(t, token.RefreshToken, decoded.RefreshToken)
}
