package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songbattle/internal/spotify"
	"songbattle/pkg/oauth"
)

// newSchedulerFixture builds a session with a tiny boot expiry buffer so
// short-lived test tokens survive boot, leaving expiry handling to the
// scheduler under test.
func newSchedulerFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		tokens:     &fakeTokenStore{},
		handshakes: &fakeHandshakeStore{},
		exchanger:  &fakeExchanger{},
		profiles:   &fakeProfiles{profile: &spotify.Profile{ID: "user-1"}},
		browser:    &fakeBrowser{},
		probe:      &fakeProbe{online: true},
	}
	f.session = New(Config{
		Tokens:       f.tokens,
		Handshakes:   f.handshakes,
		Exchanger:    f.exchanger,
		Profiles:     f.profiles,
		Browser:      f.browser,
		Connectivity: f.probe,
		AuthEndpoint: "https://accounts.example.com/authorize",
		Scope:        "user-read-private",
		ExpiryBuffer: time.Millisecond,
	})
	t.Cleanup(f.session.Close)
	return f
}

func runScheduler(t *testing.T, s *Scheduler) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestScheduler_TimerTriggersRefresh(t *testing.T) {
	f := newSchedulerFixture(t)
	f.tokens.token = &oauth.Token{
		AccessToken:  "access-1",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(300 * time.Millisecond),
		RefreshToken: "refresh-1",
	}
	f.exchanger.mu.Lock()
	f.exchanger.refreshResult = validToken()
	f.exchanger.mu.Unlock()

	f.session.Initialize(context.Background(), "http://127.0.0.1:8888/")
	require.Equal(t, StatusAuthenticated, f.session.Snapshot().Status)

	runScheduler(t, NewScheduler(f.session, 200*time.Millisecond))

	require.Eventually(t, func() bool {
		_, refreshes := f.exchanger.counts()
		return refreshes >= 1
	}, 2*time.Second, 10*time.Millisecond, "timer must fire inside the expiry buffer")
}

func TestScheduler_SignalRefreshesExpiringToken(t *testing.T) {
	f := newSchedulerFixture(t)
	// Valid at boot (1ms buffer) but inside the scheduler's buffer.
	f.tokens.token = &oauth.Token{
		AccessToken:  "access-1",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(30 * time.Second),
		RefreshToken: "refresh-1",
	}
	f.exchanger.mu.Lock()
	f.exchanger.refreshResult = validToken()
	f.exchanger.mu.Unlock()

	f.session.Initialize(context.Background(), "http://127.0.0.1:8888/")
	require.Equal(t, StatusAuthenticated, f.session.Snapshot().Status)

	scheduler := NewScheduler(f.session, time.Minute)
	runScheduler(t, scheduler)

	scheduler.Notify(SignalNetworkRestored)

	require.Eventually(t, func() bool {
		_, refreshes := f.exchanger.counts()
		return refreshes >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_SignalIgnoresFreshToken(t *testing.T) {
	f := newSchedulerFixture(t)
	f.tokens.token = validToken() // expires in an hour

	f.session.Initialize(context.Background(), "http://127.0.0.1:8888/")
	require.Equal(t, StatusAuthenticated, f.session.Snapshot().Status)

	scheduler := NewScheduler(f.session, time.Minute)
	runScheduler(t, scheduler)

	scheduler.Notify(SignalFocused)
	scheduler.Notify(SignalVisible)

	time.Sleep(100 * time.Millisecond)
	_, refreshes := f.exchanger.counts()
	assert.Zero(t, refreshes, "a token outside the buffer is not refreshed")
}

func TestScheduler_NotifyNeverBlocks(t *testing.T) {
	f := newSchedulerFixture(t)
	scheduler := NewScheduler(f.session, time.Minute)

	// No Run loop draining; the channel fills and further signals drop.
	for i := 0; i < 100; i++ {
		scheduler.Notify(SignalNetworkRestored)
	}
}
