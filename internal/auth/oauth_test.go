package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/coachlink/internal/auth"
)

// newFakeTokenServer returns an httptest server that issues a client-credentials token.
func newFakeTokenServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fake-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newErrorTokenServer returns an httptest server that returns an OAuth2 error.
func newErrorTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_client",
			"error_description": "client authentication failed",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOAuth_Token(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newFakeTokenServer(t, &hits)

	src := auth.NewOAuth(auth.OAuthConfig{
		TokenURL:     srv.URL + "/token",
		ClientID:     "client",
		ClientSecret: "secret",
		Scopes:       []string{"chat"},
	}, srv.Client())

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fake-access-token", tok)

	again, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tok, again)
	assert.Equal(t, int32(1), hits.Load(), "token is cached until expiry")
}

func TestOAuth_TokenEndpointError(t *testing.T) {
	t.Parallel()

	srv := newErrorTokenServer(t)

	src := auth.NewOAuth(auth.OAuthConfig{
		TokenURL:     srv.URL + "/token",
		ClientID:     "client",
		ClientSecret: "wrong",
	}, nil)

	_, err := src.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.OAuth.Token")
}
