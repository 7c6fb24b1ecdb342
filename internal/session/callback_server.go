package session

import (
	"context"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"songbattle/pkg/logging"
	"songbattle/pkg/oauth"
)

// CallbackTimeout is how long Wait blocks for the authorization redirect
// before giving up. It matches the handshake's own validity window.
const CallbackTimeout = oauth.HandshakeTTL

const callbackSuccessHTML = `<!DOCTYPE html>
<html><head><title>Song Battle</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h1>Signed in</h1>
<p>You can close this tab and return to Song Battle.</p>
</body></html>`

const callbackErrorHTML = `<!DOCTYPE html>
<html><head><title>Song Battle</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h1>Sign-in failed</h1>
<p>%s</p>
<p>You can close this tab and try again.</p>
</body></html>`

// CallbackServer is a temporary local HTTP server that receives the
// authorization redirect during a CLI login. It accepts exactly one
// callback, hands its query parameters to the caller, and shuts down.
type CallbackServer struct {
	addr     string
	path     string
	server   *http.Server
	listener net.Listener
	resultCh chan url.Values
	errorCh  chan error
	once     sync.Once
}

// NewCallbackServer creates a callback server for the given redirect URI.
// The listen address and route are both derived from the URI so the server
// matches what was registered with the provider.
func NewCallbackServer(redirectURI string) (*CallbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI %s: %w", redirectURI, err)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return &CallbackServer{
		addr:     u.Host,
		path:     path,
		resultCh: make(chan url.Values, 1),
		errorCh:  make(chan error, 1),
	}, nil
}

// Start begins listening for the redirect. The server stops when the context
// is cancelled or after the first callback has been served.
func (s *CallbackServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start callback server on %s: %w", s.addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logging.Debug("Auth", "Callback server listening on %s%s", s.addr, s.path)
	return nil
}

// Wait blocks until the redirect arrives, the context is cancelled, or the
// callback window elapses. It returns the raw query parameters for
// Session.HandleCallback to consume.
func (s *CallbackServer) Wait(ctx context.Context) (url.Values, error) {
	select {
	case query := <-s.resultCh:
		return query, nil
	case err := <-s.errorCh:
		return nil, err
	case <-time.After(CallbackTimeout):
		return nil, fmt.Errorf("timed out waiting for authorization callback")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handleCallback serves the redirect. Only the first request is processed;
// duplicates (browser refresh, prefetch) are rejected.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	var handled bool
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})
	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (s *CallbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		detail := query.Get("error_description")
		if detail == "" {
			detail = providerErr
		}
		fmt.Fprintf(w, callbackErrorHTML, html.EscapeString(detail))
	} else {
		fmt.Fprint(w, callbackSuccessHTML)
	}

	select {
	case s.resultCh <- query:
	default:
	}

	// Give the response time to flush before tearing the server down.
	go func() {
		time.Sleep(time.Second)
		s.Stop()
	}()
}

// Stop gracefully shuts the server down.
func (s *CallbackServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}
