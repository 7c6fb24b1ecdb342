package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"songbattle/pkg/oauth"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

// rootCmd represents the base command for the songbattle application.
var rootCmd = &cobra.Command{
	Use:   "songbattle",
	Short: "Sign in to Spotify for Song Battle",
	Long: `songbattle manages the Spotify session used by the Song Battle game:
it signs you in via the OAuth authorization-code flow with PKCE, keeps the
resulting tokens refreshed, and stores them on this device for reuse.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "songbattle version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type,
// giving scripts a way to distinguish "log in first" from a failed flow.
func getExitCode(err error) int {
	if errors.Is(err, errNotAuthenticated) {
		return ExitCodeAuthRequired
	}

	var authErr *oauth.AuthError
	if errors.As(err, &authErr) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}
