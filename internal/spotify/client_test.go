package spotify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songbattle/pkg/oauth"
)

func TestFetchProfile(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "user-1",
			"country": "DE",
			"display_name": "Test Listener",
			"email": "listener@example.com",
			"images": [{"url": "https://img.example.com/a.png", "height": 64, "width": 64}]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	profile, err := client.FetchProfile(context.Background(), "access-123")
	require.NoError(t, err)

	assert.Equal(t, "Bearer access-123", gotAuth)
	assert.Equal(t, "user-1", profile.ID)
	assert.Equal(t, "Test Listener", profile.DisplayName)
	assert.Equal(t, "listener@example.com", profile.Email)
	require.Len(t, profile.Images, 1)
	assert.Equal(t, "https://img.example.com/a.png", profile.Images[0].URL)
}

func TestFetchProfile_HTTPFailureIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.FetchProfile(context.Background(), "stale")

	var authErr *oauth.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, oauth.KindNetworkError, authErr.Kind)
}

func TestFetchProfile_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL)
	_, err := client.FetchProfile(context.Background(), "access")

	var authErr *oauth.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, oauth.KindNetworkError, authErr.Kind)
}
