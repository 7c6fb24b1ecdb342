package credstore

import (
	"github.com/jellydator/ttlcache/v3"

	"songbattle/pkg/oauth"
)

// handshakeKey is the ephemeral slot key, matching the session-storage key
// used by the web client.
const handshakeKey = "spotify:pkce:state"

// HandshakeStore is the ephemeral credential slot holding the PKCE handshake
// for the current login attempt. It is scoped to the process (the Go
// equivalent of session storage) and entries expire after oauth.HandshakeTTL
// to prevent stale-state replay.
type HandshakeStore struct {
	cache *ttlcache.Cache[string, *oauth.Handshake]
}

// NewHandshakeStore creates an empty handshake store.
func NewHandshakeStore() *HandshakeStore {
	cache := ttlcache.New[string, *oauth.Handshake](
		ttlcache.WithTTL[string, *oauth.Handshake](oauth.HandshakeTTL),
		ttlcache.WithDisableTouchOnHit[string, *oauth.Handshake](),
	)
	go cache.Start()
	return &HandshakeStore{cache: cache}
}

// Load returns the stored handshake, or nil if none exists or it has
// expired.
func (s *HandshakeStore) Load() *oauth.Handshake {
	item := s.cache.Get(handshakeKey)
	if item == nil {
		return nil
	}
	return item.Value()
}

// Save overwrites the ephemeral slot. A previous handshake from an abandoned
// login attempt is replaced wholesale.
func (s *HandshakeStore) Save(handshake *oauth.Handshake) error {
	s.cache.Set(handshakeKey, handshake, ttlcache.DefaultTTL)
	return nil
}

// Clear removes the ephemeral slot.
func (s *HandshakeStore) Clear() error {
	s.cache.Delete(handshakeKey)
	return nil
}

// Close stops the expiry loop.
func (s *HandshakeStore) Close() error {
	s.cache.Stop()
	return nil
}
