package oauth

import (
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpiryBuffer is the margin applied when checking token expiry.
// A token inside this window is treated as expired so it can be refreshed
// before requests start failing.
const DefaultExpiryBuffer = 60 * time.Second

// HandshakeTTL is how long a PKCE handshake stays valid. A handshake older
// than this is treated as lost to prevent stale-state replay.
const HandshakeTTL = 10 * time.Minute

// TokenResponse is the provider's raw token endpoint response, shared by the
// authorization_code and refresh_token grants. ExpiresIn is a relative
// "seconds remaining" value and must be converted to an absolute timestamp
// immediately upon receipt.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ToToken converts the raw response into a stored Token, resolving the
// relative expires_in against now. Conversion must happen at receipt time,
// not lazily, to avoid drift.
func (r *TokenResponse) ToToken(now time.Time) *Token {
	return &Token{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		ExpiresAt:    now.Add(time.Duration(r.ExpiresIn) * time.Second),
		RefreshToken: r.RefreshToken,
		Scope:        r.Scope,
	}
}

// Token is the durable bearer-credential bundle held after a successful
// grant. It is replaced wholesale on every refresh, never patched in place,
// because a refresh response's refresh token may be absent and must fall
// back to the prior one. The stored wire form is tokenJSON.
type Token struct {
	// AccessToken is the opaque bearer credential.
	AccessToken string

	// TokenType is typically "Bearer".
	TokenType string

	// ExpiresAt is the absolute expiry timestamp, never a relative duration.
	ExpiresAt time.Time

	// RefreshToken is used to obtain new access tokens (optional; absent for
	// non-renewable grants).
	RefreshToken string

	// Scope is the space-delimited granted-permission string.
	Scope string
}

// tokenJSON is the stored wire form of Token. Expiry is serialized as epoch
// milliseconds to stay compatible with records written by the web client.
type tokenJSON struct {
	AccessToken  string `json:"accessToken"`
	TokenType    string `json:"tokenType"`
	ExpiresAt    int64  `json:"expiresAt"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Scope        string `json:"scope"`
}

// MarshalJSON implements json.Marshaler.
func (t *Token) MarshalJSON() ([]byte, error) {
	return json.Marshal(tokenJSON{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		ExpiresAt:    t.ExpiresAt.UnixMilli(),
		RefreshToken: t.RefreshToken,
		Scope:        t.Scope,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Token) UnmarshalJSON(data []byte) error {
	var raw tokenJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.AccessToken = raw.AccessToken
	t.TokenType = raw.TokenType
	t.ExpiresAt = time.UnixMilli(raw.ExpiresAt)
	t.RefreshToken = raw.RefreshToken
	t.Scope = raw.Scope
	return nil
}

// Expired reports whether the token has expired or will expire within the
// given buffer.
func (t *Token) Expired(buffer time.Duration) bool {
	return !t.ExpiresAt.After(time.Now().Add(buffer))
}

// ToOAuth2Token converts the stored token to an oauth2.Token for use with
// API clients built on golang.org/x/oauth2 transports.
func (t *Token) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}

// Handshake is the ephemeral PKCE record created at login and consumed
// exactly once when the redirect callback is processed. It lives in
// session-scoped storage so it survives the authorization redirect round
// trip but not the end of the session.
type Handshake struct {
	// CodeVerifier is the locally-held PKCE secret.
	CodeVerifier string `json:"codeVerifier"`

	// State is the anti-CSRF nonce echoed back by the authorization server.
	State string `json:"state"`

	// RedirectURI is the redirect target this handshake was created for.
	RedirectURI string `json:"redirectUri"`

	// CreatedAt is when the handshake was generated.
	CreatedAt time.Time `json:"createdAt"`
}

// NewHandshake generates a fresh handshake for one login attempt.
func NewHandshake(redirectURI string) (*Handshake, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return nil, err
	}
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}
	return &Handshake{
		CodeVerifier: verifier,
		State:        state,
		RedirectURI:  redirectURI,
		CreatedAt:    time.Now(),
	}, nil
}

// Challenge returns the S256 code challenge for this handshake's verifier.
func (h *Handshake) Challenge() string {
	return DeriveChallenge(h.CodeVerifier)
}
