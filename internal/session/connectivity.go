package session

import (
	"net"
	"time"
)

// DialProbe reports connectivity by attempting a short TCP dial to a
// well-known endpoint. It is only consulted after a refresh has already
// failed, so the extra round trip is rare.
type DialProbe struct {
	// Target is the host:port to dial. Empty means the provider's
	// authorization host on 443.
	Target string

	// Timeout bounds the dial. Zero means 3 seconds.
	Timeout time.Duration
}

// Online implements ConnectivityProbe.
func (p DialProbe) Online() bool {
	target := p.Target
	if target == "" {
		target = "accounts.spotify.com:443"
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	conn, err := net.DialTimeout("tcp", target, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
