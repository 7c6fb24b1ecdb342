package session

import (
	"fmt"
	"os/exec"
	"runtime"

	"songbattle/pkg/logging"
)

// Browser models the two redirect-driven control transfers of the
// authorization flow: sending the user to the provider's consent page, and
// rewriting the visible location after the callback so the OAuth query
// parameters do not linger (or re-trigger handling on reload).
type Browser interface {
	// OpenAuthorization sends the user to the authorization URL.
	OpenAuthorization(url string) error

	// RewriteLocation replaces the visible location without re-triggering
	// navigation. Must be idempotent.
	RewriteLocation(url string)
}

// SystemBrowser opens URLs in the user's default browser. Supported on
// Linux, macOS, and Windows.
type SystemBrowser struct{}

// OpenAuthorization implements Browser. The browser process is started in
// the background; its completion is not awaited.
func (SystemBrowser) OpenAuthorization(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}

// RewriteLocation implements Browser. Outside an actual browser there is no
// address bar to rewrite; the clean location is only logged.
func (SystemBrowser) RewriteLocation(url string) {
	logging.Debug("Auth", "Callback consumed, location is %s", url)
}
