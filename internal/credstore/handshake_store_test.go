package credstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songbattle/pkg/oauth"
)

func TestHandshakeStore_RoundTrip(t *testing.T) {
	store := NewHandshakeStore()
	defer store.Close()

	handshake, err := oauth.NewHandshake("http://127.0.0.1:8888/callback")
	require.NoError(t, err)

	require.NoError(t, store.Save(handshake))

	loaded := store.Load()
	require.NotNil(t, loaded)
	assert.Equal(t, handshake.CodeVerifier, loaded.CodeVerifier)
	assert.Equal(t, handshake.State, loaded.State)
}

func TestHandshakeStore_LoadMissing(t *testing.T) {
	store := NewHandshakeStore()
	defer store.Close()

	assert.Nil(t, store.Load())
}

func TestHandshakeStore_Clear(t *testing.T) {
	store := NewHandshakeStore()
	defer store.Close()

	handshake, err := oauth.NewHandshake("http://127.0.0.1:8888/callback")
	require.NoError(t, err)
	require.NoError(t, store.Save(handshake))

	require.NoError(t, store.Clear())
	assert.Nil(t, store.Load())
}

func TestHandshakeStore_ReplacesPreviousAttempt(t *testing.T) {
	store := NewHandshakeStore()
	defer store.Close()

	first, err := oauth.NewHandshake("http://127.0.0.1:8888/callback")
	require.NoError(t, err)
	require.NoError(t, store.Save(first))

	second, err := oauth.NewHandshake("http://127.0.0.1:8888/callback")
	require.NoError(t, err)
	require.NoError(t, store.Save(second))

	loaded := store.Load()
	require.NotNil(t, loaded)
	assert.Equal(t, second.State, loaded.State)
}

func TestHandshakeStore_ExpiredHandshakeIsAbsent(t *testing.T) {
	store := NewHandshakeStore()
	defer store.Close()

	handshake, err := oauth.NewHandshake("http://127.0.0.1:8888/callback")
	require.NoError(t, err)
	handshake.CreatedAt = time.Now().Add(-oauth.HandshakeTTL)

	// Insert with an already-elapsed TTL.
	store.cache.Set(handshakeKey, handshake, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	assert.Nil(t, store.Load())
}
