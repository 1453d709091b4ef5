package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateState(t *testing.T) {
	a, err := generateState()
	require.NoError(t, err)
	b, err := generateState()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestBuildOAuth2Config(t *testing.T) {
	cfg := ClientConfig{
		AuthDomain: "https://auth.example.com",
		ClientID:   "test-client-id",
		Scope:      "openid",
	}
	redirectURL := "http://localhost:1234/callback"
	ocfg := buildOAuth2Config(cfg, redirectURL)

	assert.Equal(t, cfg.ClientID, ocfg.ClientID)
	assert.Equal(t, redirectURL, ocfg.RedirectURL)
	assert.Equal(t, []string{"openid"}, ocfg.Scopes)
	assert.Equal(t, "https://auth.example.com/application/o/authorize/", ocfg.Endpoint.AuthURL)
	assert.Equal(t, "https://auth.example.com/application/o/token/", ocfg.Endpoint.TokenURL)
	assert.Equal(t, "https://auth.example.com/application/o/device/", ocfg.Endpoint.DeviceAuthURL)
}

func TestBuildAuthURL(t *testing.T) {
	ocfg := buildOAuth2Config(ClientConfig{
		AuthDomain: "https://auth.example.com",
		ClientID:   "test-client-id",
		Scope:      "openid",
	}, "http://localhost:1234/callback")

	raw := buildAuthURL(ocfg, "teststate", "testverifier")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "teststate", q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.NotEqual(t, "testverifier", q.Get("code_challenge"))
}

func TestCallbackHandler(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCode   string
	}{
		{"valid", "state=s1&code=abc", http.StatusOK, "abc"},
		{"wrong state", "state=other&code=abc", http.StatusBadRequest, ""},
		{"provider error", "state=s1&error=access_denied", http.StatusBadRequest, ""},
		{"missing code", "state=s1", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codeCh := make(chan string, 1)
			rec := httptest.NewRecorder()
			callbackHandler("s1", codeCh).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			select {
			case got := <-codeCh:
				assert.Equal(t, tt.wantCode, got)
			default:
				assert.Empty(t, tt.wantCode)
			}
		})
	}
}

func TestPKCEAuthenticate(t *testing.T) {
	verifiers := make(chan string, 1)
	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		select {
		case verifiers <- r.PostForm.Get("code_verifier"):
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "pkce-token", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer authServer.Close()

	// Plays the browser: follows the authorization URL straight to the callback.
	auth := &PKCEAuthenticator{OpenURL: func(raw string) {
		u, err := url.Parse(raw)
		if err != nil {
			return
		}
		q := u.Query()
		go func() {
			resp, err := http.Get(q.Get("redirect_uri") + "?state=" + url.QueryEscape(q.Get("state")) + "&code=the-code")
			if err == nil {
				resp.Body.Close()
			}
		}()
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := auth.Authenticate(ctx, ClientConfig{
		AuthDomain: authServer.URL,
		ClientID:   "test-client-id",
		Scope:      "openid",
	})
	require.NoError(t, err)
	assert.Equal(t, "pkce-token", token.AccessToken)
	assert.NotEmpty(t, <-verifiers)
}

func TestPKCEAuthenticateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	auth := &PKCEAuthenticator{OpenURL: func(string) { cancel() }}

	_, err := auth.Authenticate(ctx, ClientConfig{AuthDomain: "http://127.0.0.1:1", ClientID: "id"})
	assert.ErrorIs(t, err, context.Canceled)
}
