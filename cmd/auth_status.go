package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"songbattle/internal/session"
)

// authStatusCmd represents the auth status command.
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Long: `Show the current Spotify session status.

This command displays whether you are signed in, who the session belongs
to, when the access token expires, and whether it can be refreshed.`,
	RunE: runAuthStatus,
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	env, err := newAuthEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	snap := env.boot(cmd.Context())

	fmt.Println("Spotify Session")
	switch snap.Status {
	case session.StatusAuthenticated:
		fmt.Printf("  Status:   %s\n", text.FgGreen.Sprint("Signed in"))
		fmt.Printf("  Account:  %s\n", displayName(snap))
		fmt.Printf("  Expires:  %s\n", formatExpiry(snap.Token.ExpiresAt))
		if snap.Token.RefreshToken != "" {
			fmt.Printf("  Refresh:  %s\n", text.FgGreen.Sprint("Available"))
		} else {
			fmt.Printf("  Refresh:  %s\n", text.FgYellow.Sprint("Not available (sign in again on expiry)"))
		}
		if snap.Token.Scope != "" {
			fmt.Printf("  Scope:    %s\n", snap.Token.Scope)
		}

	case session.StatusError:
		fmt.Printf("  Status:   %s\n", text.FgRed.Sprint("Error"))
		if snap.Err != nil {
			fmt.Printf("            %s\n", snap.Err.Error())
		}
		fmt.Printf("            Run: songbattle auth login\n")

	default:
		fmt.Printf("  Status:   %s\n", text.FgYellow.Sprint("Not signed in"))
		fmt.Printf("            Run: songbattle auth login\n")
	}

	return nil
}

// formatExpiry renders an expiry timestamp with its direction relative to
// now, e.g. "2026-08-31 12:00:00 (in 53m)".
func formatExpiry(expiresAt time.Time) string {
	remaining := time.Until(expiresAt).Round(time.Second)
	stamp := expiresAt.Local().Format("2006-01-02 15:04:05")
	if remaining >= 0 {
		return fmt.Sprintf("%s (in %s)", stamp, remaining)
	}
	return fmt.Sprintf("%s (%s ago)", stamp, -remaining)
}
