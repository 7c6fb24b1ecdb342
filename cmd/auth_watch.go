package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"songbattle/internal/session"
)

// authWatchCmd represents the auth watch command.
var authWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the session's tokens fresh",
	Long: `Keep the stored Spotify tokens refreshed in the background.

This command stays running and refreshes the access token shortly before
it expires, so other processes sharing the token store always find a
valid one. Stop it with Ctrl-C.`,
	RunE: runAuthWatch,
}

func init() {
	authCmd.AddCommand(authWatchCmd)
}

// clockCheckInterval is how often the watch loop samples the wall clock to
// detect suspend/resume gaps.
const clockCheckInterval = 30 * time.Second

func runAuthWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := newAuthEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	snap := env.boot(ctx)
	if snap.Token == nil || snap.Token.RefreshToken == "" {
		return errNotAuthenticated
	}

	scheduler := session.NewScheduler(env.session, env.cfg.Spotify.ExpiryBuffer)

	// A machine that slept through its refresh timer needs a nudge; a large
	// wall-clock jump between ticks is the resume signal.
	go watchClockJumps(ctx, scheduler)

	authPrint("Watching session for %s. Press Ctrl-C to stop.\n", displayName(snap))

	err = scheduler.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	authPrint("Stopped.\n")
	return nil
}

// watchClockJumps notifies the scheduler when the wall clock advances far
// beyond the tick interval, which indicates the process was suspended and
// its timers may have been missed.
func watchClockJumps(ctx context.Context, scheduler *session.Scheduler) {
	ticker := time.NewTicker(clockCheckInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Sub(last) > 2*clockCheckInterval {
				scheduler.Notify(session.SignalVisible)
			}
			last = now
		}
	}
}
