package session

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"songbattle/internal/spotify"
	"songbattle/pkg/logging"
	"songbattle/pkg/oauth"
)

// Status is the mutually-exclusive session state.
type Status string

const (
	// StatusUnauthenticated means no usable credentials exist.
	StatusUnauthenticated Status = "unauthenticated"

	// StatusAuthenticating means a login, callback exchange, or refresh is in
	// progress.
	StatusAuthenticating Status = "authenticating"

	// StatusAuthenticated means a valid token and a fetched profile are held.
	StatusAuthenticated Status = "authenticated"

	// StatusError means the last authentication attempt failed; the session
	// error carries the classified failure.
	StatusError Status = "error"
)

// Snapshot is the read-only session value exposed to consumers. Status is
// never StatusAuthenticated with a nil User: a token is only applied after
// its profile fetch succeeds.
type Snapshot struct {
	Status Status
	Token  *oauth.Token
	User   *spotify.Profile
	Err    *oauth.AuthError
}

// TokenStore is the durable credential slot.
type TokenStore interface {
	Load() *oauth.Token
	Save(token *oauth.Token) error
	Clear() error
}

// HandshakeStore is the ephemeral PKCE handshake slot.
type HandshakeStore interface {
	Load() *oauth.Handshake
	Save(handshake *oauth.Handshake) error
	Clear() error
}

// TokenExchanger talks to the provider's token endpoint.
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, code, verifier string) (*oauth.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth.Token, error)
	AuthorizationURL(authEndpoint, scope string, handshake *oauth.Handshake) (string, error)
	RedirectURI() string
}

// ProfileFetcher fetches the authenticated user's identity.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, accessToken string) (*spotify.Profile, error)
}

// ConnectivityProbe reports whether the device currently has network
// connectivity. A refresh that fails while offline is deferred instead of
// surfaced, so the probe decides which failure path a transport error takes.
type ConnectivityProbe interface {
	Online() bool
}

// Config wires a Session's collaborators. All fields except Browser and
// Connectivity are required; a nil Browser discards redirects and a nil
// Connectivity probe reports always-online.
type Config struct {
	Tokens       TokenStore
	Handshakes   HandshakeStore
	Exchanger    TokenExchanger
	Profiles     ProfileFetcher
	Browser      Browser
	Connectivity ConnectivityProbe

	// AuthEndpoint is the provider's authorization URL.
	AuthEndpoint string

	// Scope is the permission set requested at login.
	Scope string

	// ExpiryBuffer is the margin applied when checking token expiry.
	// Defaults to oauth.DefaultExpiryBuffer.
	ExpiryBuffer time.Duration
}

// Session is the authentication lifecycle state machine. It owns the
// credential slots and exposes a single reactive Snapshot plus login, logout,
// and refresh actions.
//
// The boot sequence (Initialize) runs exactly once per Session. At most one
// refresh is in flight at a time; concurrent RefreshTokens calls are no-ops.
// Every state-mutating continuation checks a generation counter so that
// operations superseded by logout, a new login, or Close cannot write stale
// state.
type Session struct {
	cfg Config

	mu   sync.Mutex
	snap Snapshot
	subs []chan Snapshot

	bootOnce   sync.Once
	refreshing atomic.Bool
	generation atomic.Uint64
	closed     bool
}

// New creates a Session in the unauthenticated state. Call Initialize to run
// the boot sequence.
func New(cfg Config) *Session {
	if cfg.Browser == nil {
		cfg.Browser = noopBrowser{}
	}
	if cfg.Connectivity == nil {
		cfg.Connectivity = alwaysOnline{}
	}
	if cfg.ExpiryBuffer <= 0 {
		cfg.ExpiryBuffer = oauth.DefaultExpiryBuffer
	}
	return &Session{
		cfg:  cfg,
		snap: Snapshot{Status: StatusUnauthenticated},
	}
}

// Snapshot returns the current session value.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe returns a channel that carries the current snapshot and every
// subsequent change. The channel holds only the latest value: a slow consumer
// sees the newest state, not an ordered history. It is closed by Close.
func (s *Session) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch
	}
	ch <- s.snap
	s.subs = append(s.subs, ch)
	return ch
}

// Initialize runs the boot sequence exactly once, even if called again.
// currentURL is the location the application was loaded under; if its path
// matches the configured redirect URI the boot enters callback handling,
// otherwise it recovers the persisted session.
func (s *Session) Initialize(ctx context.Context, currentURL string) {
	s.bootOnce.Do(func() {
		s.boot(ctx, currentURL)
	})
}

// boot decides the entry path: callback handling, token recovery, refresh,
// or a clean unauthenticated start.
func (s *Session) boot(ctx context.Context, currentURL string) {
	gen := s.generation.Load()

	if query, ok := s.callbackQuery(currentURL); ok {
		logging.Debug("Auth", "Booting under callback URL")
		s.setSnapshot(gen, Snapshot{Status: StatusAuthenticating})
		s.handleCallback(ctx, gen, query)
		return
	}

	token := s.cfg.Tokens.Load()
	if token == nil {
		logging.Debug("Auth", "No stored tokens, starting unauthenticated")
		s.clearSlots()
		s.setSnapshot(gen, Snapshot{Status: StatusUnauthenticated})
		return
	}

	if !token.Expired(s.cfg.ExpiryBuffer) {
		logging.Debug("Auth", "Recovering stored session")
		s.setSnapshot(gen, Snapshot{Status: StatusAuthenticating})
		s.applyToken(ctx, gen, token, false)
		return
	}

	if token.RefreshToken == "" {
		logging.Debug("Auth", "Stored tokens expired with no refresh token, clearing")
		s.clearSlots()
		s.setSnapshot(gen, Snapshot{Status: StatusUnauthenticated})
		return
	}

	// The expired record stays in the snapshot so a deferred refresh (e.g.
	// offline at boot) can still be retried by the scheduler.
	logging.Debug("Auth", "Stored tokens expired, refreshing")
	s.setSnapshot(gen, Snapshot{Status: StatusAuthenticating, Token: token})
	if s.refreshing.CompareAndSwap(false, true) {
		defer s.refreshing.Store(false)
		s.refresh(ctx, gen, token)
	}
}

// callbackQuery reports whether currentURL is the OAuth redirect target and
// returns its query parameters if so.
func (s *Session) callbackQuery(currentURL string) (url.Values, bool) {
	current, err := url.Parse(currentURL)
	if err != nil {
		return nil, false
	}
	redirect, err := url.Parse(s.cfg.Exchanger.RedirectURI())
	if err != nil {
		return nil, false
	}
	if current.Path != redirect.Path {
		return nil, false
	}
	return current.Query(), true
}

// Login starts a fresh authorization attempt: it generates a PKCE handshake,
// persists it, and sends the browser to the authorization URL. The URL is
// returned so callers can present it if the browser could not be opened.
// Any in-flight operation from a previous attempt is superseded.
func (s *Session) Login(ctx context.Context) (string, error) {
	gen := s.generation.Add(1)

	handshake, err := oauth.NewHandshake(s.cfg.Exchanger.RedirectURI())
	if err != nil {
		return "", err
	}
	if err := s.cfg.Handshakes.Save(handshake); err != nil {
		return "", err
	}

	authURL, err := s.cfg.Exchanger.AuthorizationURL(s.cfg.AuthEndpoint, s.cfg.Scope, handshake)
	if err != nil {
		return "", err
	}

	s.setSnapshot(gen, Snapshot{Status: StatusAuthenticating})

	if err := s.cfg.Browser.OpenAuthorization(authURL); err != nil {
		logging.Warn("Auth", "Failed to open browser: %v", err)
	}
	return authURL, nil
}

// Logout drops the session: both credential slots are cleared and any
// in-flight operation is superseded.
func (s *Session) Logout() {
	gen := s.generation.Add(1)
	s.clearSlots()
	s.setSnapshot(gen, Snapshot{Status: StatusUnauthenticated})
}

// RefreshTokens refreshes the current credentials. A call while another
// refresh is in flight is a no-op, so the timer trigger, the event trigger,
// and manual invocation never race to persist conflicting records. A call
// without a refreshable token is also a no-op.
func (s *Session) RefreshTokens(ctx context.Context) {
	if !s.refreshing.CompareAndSwap(false, true) {
		logging.Debug("Auth", "Refresh already in flight, skipping")
		return
	}
	defer s.refreshing.Store(false)

	gen := s.generation.Load()

	s.mu.Lock()
	token := s.snap.Token
	status := s.snap.Status
	s.mu.Unlock()

	if token == nil || token.RefreshToken == "" {
		return
	}
	if status != StatusAuthenticated {
		s.setSnapshot(gen, Snapshot{Status: StatusAuthenticating, Token: token})
	}
	s.refresh(ctx, gen, token)
}

// HandleCallback processes the authorization redirect's query parameters.
// It is the external entry point for redirects delivered out of band (e.g.,
// by a local callback server after Login).
func (s *Session) HandleCallback(ctx context.Context, query url.Values) {
	gen := s.generation.Load()
	s.setSnapshot(gen, Snapshot{Status: StatusAuthenticating})
	s.handleCallback(ctx, gen, query)
}

// handleCallback runs the callback protocol: provider error check, handshake
// presence, code presence, anti-CSRF state comparison, code exchange. The
// handshake is consumed exactly once: whatever the outcome, the slot is empty
// afterward. The visible location is rewritten to drop the OAuth query
// parameters in every path.
func (s *Session) handleCallback(ctx context.Context, gen uint64, query url.Values) {
	defer s.cfg.Browser.RewriteLocation(s.strippedRedirectURI())

	if providerErr := query.Get("error"); providerErr != "" {
		s.clearSlots()
		detail := query.Get("error_description")
		if detail == "" {
			detail = providerErr
		}
		logging.Warn("Auth", "Provider reported authorization error: %s", providerErr)
		s.failAuth(gen, oauth.NewAuthError(oauth.KindCallbackError, detail, nil))
		return
	}

	handshake := s.cfg.Handshakes.Load()
	if handshake == nil {
		s.clearSlots()
		s.failAuth(gen, oauth.NewAuthError(oauth.KindTokenExchangeFailed, "login handshake lost", nil))
		return
	}

	code := query.Get("code")
	if code == "" {
		s.clearSlots()
		s.failAuth(gen, oauth.NewAuthError(oauth.KindTokenExchangeFailed, "authorization code missing from callback", nil))
		return
	}

	if query.Get("state") != handshake.State {
		s.clearSlots()
		s.failAuth(gen, oauth.NewAuthError(oauth.KindTokenExchangeFailed, "state parameter mismatch", nil))
		return
	}

	token, err := s.cfg.Exchanger.ExchangeCode(ctx, code, handshake.CodeVerifier)
	if err != nil {
		if oauth.IsCancelled(err) {
			return
		}
		s.clearSlots()
		s.failAuth(gen, oauth.FromError(err, oauth.KindTokenExchangeFailed))
		return
	}

	if err := s.cfg.Handshakes.Clear(); err != nil {
		logging.Warn("Auth", "Failed to clear handshake: %v", err)
	}
	logging.Info("Auth", "Authorization code exchanged")
	s.applyToken(ctx, gen, token, true)
}

// refresh performs one refresh attempt against the token endpoint.
//
// Failure routing: a transport failure while offline leaves the session
// untouched so the background scheduler retries once connectivity returns; a
// transport failure while online surfaces as an error; a provider rejection
// drops the session to unauthenticated because the refresh token is dead and
// only a new login can recover.
func (s *Session) refresh(ctx context.Context, gen uint64, prior *oauth.Token) {
	token, err := s.cfg.Exchanger.Refresh(ctx, prior.RefreshToken)
	if err != nil {
		if oauth.IsCancelled(err) {
			return
		}

		authErr := oauth.FromError(err, oauth.KindRefreshFailed)
		if authErr.Kind == oauth.KindNetworkError && !s.cfg.Connectivity.Online() {
			logging.Debug("Auth", "Refresh failed while offline, deferring")
			return
		}
		if gen != s.generation.Load() {
			return
		}

		if err := s.cfg.Tokens.Clear(); err != nil {
			logging.Warn("Auth", "Failed to clear stored tokens: %v", err)
		}
		if authErr.Kind == oauth.KindRefreshFailed {
			logging.Info("Auth", "Refresh token rejected, dropping session")
			s.setSnapshot(gen, Snapshot{Status: StatusUnauthenticated})
		} else {
			logging.Warn("Auth", "Refresh failed: %v", authErr)
			s.failAuth(gen, authErr)
		}
		return
	}

	// The provider may omit the refresh token from a refresh response; the
	// prior one stays valid and must carry over.
	if token.RefreshToken == "" {
		token.RefreshToken = prior.RefreshToken
	}
	logging.Debug("Auth", "Tokens refreshed, expiry %s", token.ExpiresAt.Format(time.RFC3339))
	s.applyToken(ctx, gen, token, true)
}

// applyToken persists the record (when persist is set), fetches the profile
// it grants access to, and settles into authenticated. The profile fetch is
// part of the same logical operation: consumers never observe authenticated
// with a nil user. A profile failure after a token was just applied means the
// account is unusable, so it is a hard error and the slot is cleared.
func (s *Session) applyToken(ctx context.Context, gen uint64, token *oauth.Token, persist bool) {
	if gen != s.generation.Load() {
		return
	}
	if persist {
		if err := s.cfg.Tokens.Save(token); err != nil {
			logging.Warn("Auth", "Failed to persist tokens: %v", err)
		}
	}

	profile, err := s.cfg.Profiles.FetchProfile(ctx, token.AccessToken)
	if err != nil {
		if oauth.IsCancelled(err) {
			return
		}
		if clearErr := s.cfg.Tokens.Clear(); clearErr != nil {
			logging.Warn("Auth", "Failed to clear stored tokens: %v", clearErr)
		}
		s.failAuth(gen, oauth.FromError(err, oauth.KindNetworkError))
		return
	}

	logging.Info("Auth", "Authenticated as %s", profile.ID)
	s.setSnapshot(gen, Snapshot{
		Status: StatusAuthenticated,
		Token:  token,
		User:   profile,
	})
}

// Close tears the session down: in-flight operations are superseded and all
// subscriber channels are closed. The credential slots are left intact so the
// session can be recovered on the next boot.
func (s *Session) Close() {
	s.generation.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
}

// failAuth settles into the error state with the given classified failure.
func (s *Session) failAuth(gen uint64, authErr *oauth.AuthError) {
	s.setSnapshot(gen, Snapshot{Status: StatusError, Err: authErr})
}

// clearSlots empties both credential slots.
func (s *Session) clearSlots() {
	if err := s.cfg.Tokens.Clear(); err != nil {
		logging.Warn("Auth", "Failed to clear stored tokens: %v", err)
	}
	if err := s.cfg.Handshakes.Clear(); err != nil {
		logging.Warn("Auth", "Failed to clear handshake: %v", err)
	}
}

// strippedRedirectURI is the redirect URI without any query string, used to
// rewrite the visible location after callback handling.
func (s *Session) strippedRedirectURI() string {
	redirect, err := url.Parse(s.cfg.Exchanger.RedirectURI())
	if err != nil {
		return s.cfg.Exchanger.RedirectURI()
	}
	redirect.RawQuery = ""
	redirect.Fragment = ""
	return redirect.String()
}

// setSnapshot replaces the session value and publishes it, unless the
// operation that produced it has been superseded or the session is closed.
func (s *Session) setSnapshot(gen uint64, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.generation.Load() {
		return
	}
	s.snap = snap
	for _, ch := range s.subs {
		// Keep only the latest value per subscriber.
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

type noopBrowser struct{}

func (noopBrowser) OpenAuthorization(string) error { return nil }
func (noopBrowser) RewriteLocation(string)         {}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }
