package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// verifierLength is the length of the PKCE code verifier. 64 characters
	// from a 62-symbol alphabet provide well over the 256 bits of entropy
	// recommended for the verifier.
	verifierLength = 64

	// stateLength is the length of the OAuth state parameter. The state is an
	// anti-CSRF nonce rather than a secret, so a shorter value suffices.
	stateLength = 16

	// randomAlphabet is the alphabet used for verifier and state generation.
	randomAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// GenerateVerifier generates a new PKCE code verifier: 64 characters drawn
// uniformly from the alphanumeric alphabet using a cryptographically secure
// source. Predictability here defeats the protocol's anti-interception
// guarantee, so math/rand is never acceptable.
func GenerateVerifier() (string, error) {
	return randomString(verifierLength)
}

// GenerateState generates a random state parameter for OAuth.
// The state links the authorization response back to the original request
// and prevents CSRF.
func GenerateState() (string, error) {
	return randomString(stateLength)
}

// DeriveChallenge computes the S256 code challenge for a verifier:
// base64url(SHA-256(verifier)) with padding stripped. Deterministic and pure.
func DeriveChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// randomString produces n characters drawn uniformly from randomAlphabet.
// Rejection sampling avoids the modulo bias a plain `byte % 62` would carry.
func randomString(n int) (string, error) {
	// Largest multiple of len(randomAlphabet) that fits in a byte.
	limit := byte(256 - 256%len(randomAlphabet))

	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, randomAlphabet[int(b)%len(randomAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
