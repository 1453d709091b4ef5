package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestParseAccessToken(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]interface{}
		want   string
	}{
		{"name", map[string]interface{}{"sub": "u1", "name": "Alice", "email": "a@example.com"}, "Alice"},
		{"username", map[string]interface{}{"sub": "u1", "preferred_username": "alice"}, "alice"},
		{"email", map[string]interface{}{"sub": "u1", "email": "a@example.com"}, "a@example.com"},
		{"subject", map[string]interface{}{"sub": "u1"}, "u1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateMockJWT(tt.claims, "secret")
			require.NoError(t, err)

			claims, err := ParseAccessToken(token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, claims.DisplayName())
			assert.Equal(t, "u1", claims.Subject)
		})
	}

	_, err := ParseAccessToken("not.a.jwt")
	assert.Error(t, err)
}

func TestTokenCache(t *testing.T) {
	cache := TokenCache{Path: filepath.Join(t.TempDir(), "nested", "token.json")}

	token, err := cache.Load()
	assert.NoError(t, err)
	assert.Nil(t, token)

	want := &oauth2.Token{AccessToken: "abc", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour).Round(time.Second)}
	require.NoError(t, cache.Save(want))

	info, err := os.Stat(cache.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.True(t, want.Expiry.Equal(got.Expiry))
	assert.True(t, got.Valid())

	require.NoError(t, os.WriteFile(cache.Path, []byte("{"), 0600))
	_, err = cache.Load()
	assert.ErrorContains(t, err, "invalid token cache")

	require.NoError(t, os.WriteFile(cache.Path, nil, 0600))
	token, err = cache.Load()
	assert.NoError(t, err)
	assert.Nil(t, token)
}
