package session

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"songbattle/pkg/logging"
	"songbattle/pkg/oauth"
)

// Signal is an external wake-up for the scheduler. Timers are unreliable in a
// suspended process, and a refresh skipped while offline must be retried, so
// these signals trigger an immediate expiry check.
type Signal string

const (
	// SignalNetworkRestored means connectivity came back.
	SignalNetworkRestored Signal = "network_restored"

	// SignalFocused means the application window regained focus.
	SignalFocused Signal = "focused"

	// SignalVisible means the application became visible again.
	SignalVisible Signal = "visible"
)

// Scheduler proactively refreshes the session's credentials. It combines a
// one-shot timer armed at expiry-minus-buffer with event-driven checks, both
// funnelling into Session.RefreshTokens, which is idempotent, so the two
// triggers need no coordination between them.
type Scheduler struct {
	session *Session
	buffer  time.Duration
	signals chan Signal
}

// NewScheduler creates a scheduler for the given session. buffer is how long
// before expiry a refresh is triggered; zero means oauth.DefaultExpiryBuffer.
func NewScheduler(session *Session, buffer time.Duration) *Scheduler {
	if buffer <= 0 {
		buffer = oauth.DefaultExpiryBuffer
	}
	return &Scheduler{
		session: session,
		buffer:  buffer,
		signals: make(chan Signal, 8),
	}
}

// Notify delivers an external signal. It never blocks; when the scheduler is
// behind, excess signals are dropped, which is safe because every signal
// triggers the same idempotent check.
func (s *Scheduler) Notify(sig Signal) {
	select {
	case s.signals <- sig:
	default:
	}
}

// Run drives both triggers until the context is cancelled or the session's
// subscription closes.
func (s *Scheduler) Run(ctx context.Context) error {
	updates := s.session.Subscribe()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.timerLoop(ctx, updates)
	})
	g.Go(func() error {
		return s.signalLoop(ctx)
	})
	return g.Wait()
}

// timerLoop arms a one-shot timer at expiresAt − now − buffer for every new
// token record, cancelling and rearming whenever the token changes.
func (s *Scheduler) timerLoop(ctx context.Context, updates <-chan Snapshot) error {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	disarm := func() {
		if armed && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		armed = false
	}
	defer disarm()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			disarm()
			if snap.Token == nil || snap.Token.RefreshToken == "" {
				continue
			}
			delay := time.Until(snap.Token.ExpiresAt) - s.buffer
			if delay < 0 {
				delay = 0
			}
			logging.Debug("Scheduler", "Refresh timer armed for %s", delay.Round(time.Second))
			timer.Reset(delay)
			armed = true

		case <-timer.C:
			armed = false
			logging.Debug("Scheduler", "Refresh timer fired")
			s.session.RefreshTokens(ctx)
		}
	}
}

// signalLoop refreshes immediately on external signals when the current token
// is inside the expiry buffer.
func (s *Scheduler) signalLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case sig := <-s.signals:
			snap := s.session.Snapshot()
			if snap.Token == nil || snap.Token.RefreshToken == "" {
				continue
			}
			if !snap.Token.Expired(s.buffer) {
				continue
			}
			logging.Debug("Scheduler", "Signal %s with expiring token, refreshing", sig)
			s.session.RefreshTokens(ctx)
		}
	}
}
