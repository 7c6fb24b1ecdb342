package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"songbattle/internal/session"
)

// authLoginCmd represents the auth login command.
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to Spotify",
	Long: `Sign in to Spotify using the browser-based authorization flow.

This command opens your browser at Spotify's consent page, waits for the
redirect on a local callback server, exchanges the authorization code for
tokens, and stores them on this device.

Examples:
  songbattle auth login          # Sign in (no-op if already signed in)
  songbattle auth login --force  # Discard the current session and sign in again`,
	RunE: runAuthLogin,
}

var loginForce bool

func init() {
	authLoginCmd.Flags().BoolVar(&loginForce, "force", false, "sign in again even if a valid session exists")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	env, err := newAuthEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	snap := env.boot(ctx)
	if snap.Status == session.StatusAuthenticated && !loginForce {
		authPrint("Already signed in as %s. Use --force to sign in again.\n", displayName(snap))
		return nil
	}
	if loginForce {
		env.session.Logout()
	}

	server, err := session.NewCallbackServer(env.cfg.Spotify.RedirectURI)
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer server.Stop()

	authURL, err := env.session.Login(ctx)
	if err != nil {
		return err
	}

	authPrint("Opening your browser to sign in to Spotify.\n")
	authPrint("If it does not open, visit:\n\n  %s\n\n", authURL)

	var s *spinner.Spinner
	if !authQuiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Waiting for authorization in your browser..."
		s.Start()
	}

	query, err := server.Wait(ctx)
	if s != nil {
		s.Stop()
	}
	if err != nil {
		return fmt.Errorf("authorization was not completed: %w", err)
	}

	env.session.HandleCallback(ctx, query)

	snap = env.session.Snapshot()
	if snap.Status != session.StatusAuthenticated {
		if snap.Err != nil {
			return snap.Err
		}
		return fmt.Errorf("sign-in did not complete (state: %s)", snap.Status)
	}

	authPrint("Signed in as %s.\n", displayName(snap))
	return nil
}

// displayName returns the best human-readable name for the session's user.
func displayName(snap session.Snapshot) string {
	if snap.User == nil {
		return "unknown"
	}
	if snap.User.DisplayName != "" {
		return snap.User.DisplayName
	}
	return snap.User.ID
}
