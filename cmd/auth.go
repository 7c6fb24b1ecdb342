package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"songbattle/internal/config"
	"songbattle/internal/credstore"
	"songbattle/internal/session"
	"songbattle/internal/spotify"
	"songbattle/pkg/logging"
	"songbattle/pkg/oauth"
)

var (
	authConfigPath string
	authQuiet      bool
)

// errNotAuthenticated signals that a command needs a signed-in session.
var errNotAuthenticated = errors.New("not authenticated. Run: songbattle auth login")

// authCmd represents the auth command group.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Spotify session",
	Long: `Manage the Spotify session used by Song Battle.

The auth command group provides subcommands to log in via the browser,
check session status, refresh tokens, and log out.

Examples:
  songbattle auth login     # Sign in via the browser
  songbattle auth status    # Show session status
  songbattle auth whoami    # Show the signed-in identity
  songbattle auth refresh   # Force a token refresh
  songbattle auth logout    # Clear stored tokens`,
}

// authLogoutCmd represents the auth logout command.
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear stored tokens",
	Long: `Clear the stored Spotify tokens and any pending login handshake.

You will need to sign in again on the next use.`,
	RunE: runAuthLogout,
}

// authRefreshCmd represents the auth refresh command.
var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force a token refresh",
	Long: `Force a refresh of the stored Spotify tokens.

Useful when the access token was invalidated before its recorded expiry.`,
	RunE: runAuthRefresh,
}

// authWhoamiCmd represents the auth whoami command.
var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in identity",
	RunE:  runAuthWhoami,
}

// authPrint prints output only if the --quiet flag is not set.
func authPrint(format string, args ...interface{}) {
	if !authQuiet {
		fmt.Printf(format, args...)
	}
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRefreshCmd)
	authCmd.AddCommand(authWhoamiCmd)

	authCmd.PersistentFlags().StringVar(&authConfigPath, "config", "", "config file (default is $HOME/.config/songbattle/config.yaml)")
	authCmd.PersistentFlags().BoolVarP(&authQuiet, "quiet", "q", false, "suppress progress output")
}

// authEnv bundles the configured session and the stores backing it for the
// lifetime of one command.
type authEnv struct {
	cfg        *config.Config
	tokens     *credstore.TokenStore
	handshakes *credstore.HandshakeStore
	session    *session.Session
}

// newAuthEnv loads configuration, opens the credential stores, and
// constructs the session.
func newAuthEnv() (*authEnv, error) {
	cfg, err := config.Load(authConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Init(logging.ParseLevel(cfg.LogLevel), os.Stderr)

	if err := os.MkdirAll(cfg.StorageDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	tokens, err := credstore.OpenTokenStore(cfg.TokenDBPath())
	if err != nil {
		return nil, err
	}
	handshakes := credstore.NewHandshakeStore()

	sess := session.New(session.Config{
		Tokens:     tokens,
		Handshakes: handshakes,
		Exchanger: oauth.NewClient(
			cfg.Spotify.TokenEndpoint,
			cfg.Spotify.ClientID,
			cfg.Spotify.RedirectURI,
		),
		Profiles:     spotify.NewClient(cfg.Spotify.ProfileEndpoint),
		Browser:      session.SystemBrowser{},
		Connectivity: session.DialProbe{},
		AuthEndpoint: cfg.Spotify.AuthEndpoint,
		Scope:        cfg.Spotify.Scope,
		ExpiryBuffer: cfg.Spotify.ExpiryBuffer,
	})

	return &authEnv{
		cfg:        cfg,
		tokens:     tokens,
		handshakes: handshakes,
		session:    sess,
	}, nil
}

// boot runs the session's boot sequence under a normal (non-callback)
// location.
func (e *authEnv) boot(ctx context.Context) session.Snapshot {
	e.session.Initialize(ctx, "/")
	return e.session.Snapshot()
}

func (e *authEnv) Close() {
	e.session.Close()
	e.handshakes.Close()
	if err := e.tokens.Close(); err != nil {
		logging.Warn("Auth", "Failed to close token store: %v", err)
	}
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	env, err := newAuthEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	env.session.Logout()
	authPrint("Logged out. Stored tokens cleared.\n")
	return nil
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
	env, err := newAuthEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	snap := env.boot(cmd.Context())
	if snap.Token == nil || snap.Token.RefreshToken == "" {
		return errNotAuthenticated
	}

	env.session.RefreshTokens(cmd.Context())

	snap = env.session.Snapshot()
	switch snap.Status {
	case session.StatusAuthenticated:
		authPrint("Tokens refreshed. New expiry: %s\n", formatExpiry(snap.Token.ExpiresAt))
		return nil
	case session.StatusUnauthenticated:
		return errNotAuthenticated
	default:
		if snap.Err != nil {
			return snap.Err
		}
		return fmt.Errorf("refresh did not complete (state: %s)", snap.Status)
	}
}

func runAuthWhoami(cmd *cobra.Command, args []string) error {
	env, err := newAuthEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	snap := env.boot(cmd.Context())
	if snap.Status != session.StatusAuthenticated {
		return errNotAuthenticated
	}

	printProfile(snap.User)
	return nil
}

// printProfile prints the signed-in identity.
func printProfile(user *spotify.Profile) {
	name := user.DisplayName
	if name == "" {
		name = user.ID
	}
	fmt.Printf("%s\n", name)
	fmt.Printf("  ID:      %s\n", user.ID)
	if user.Email != "" {
		fmt.Printf("  Email:   %s\n", user.Email)
	}
	if user.Country != "" {
		fmt.Printf("  Country: %s\n", user.Country)
	}
}
