package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Authentik style endpoint paths under AuthDomain.
const (
	authorizePath  = "/application/o/authorize/"
	tokenPath      = "/application/o/token/"
	deviceAuthPath = "/application/o/device/"

	callbackPath = "/callback"
)

// Authenticator obtains an access token for the token service.
// DeviceCodeAuthenticator and PKCEAuthenticator implement this interface
type Authenticator interface {
	Authenticate(ctx context.Context, cfg ClientConfig) (*oauth2.Token, error)
}

// PKCEAuthenticator runs the authorization code flow with PKCE against a
// loopback redirect.
type PKCEAuthenticator struct {
	// OpenURL is called with the authorization URL, it prints it when nil.
	OpenURL func(url string)
}

func (a *PKCEAuthenticator) Authenticate(ctx context.Context, cfg ClientConfig) (*oauth2.Token, error) {
	verifier := oauth2.GenerateVerifier()

	listener, redirectURL, err := startLocalListener()
	if err != nil {
		return nil, err
	}

	oauthCfg := buildOAuth2Config(cfg, redirectURL)
	state, err := generateState()
	if err != nil {
		listener.Close()
		return nil, err
	}

	codeCh := make(chan string, 1)
	server := &http.Server{
		Handler:           callbackHandler(state, codeCh),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer server.Close()

	authURL := buildAuthURL(oauthCfg, state, verifier)
	if a.OpenURL != nil {
		a.OpenURL(authURL)
	} else {
		fmt.Println("To authenticate, visit this URL:")
		fmt.Printf("  %s\n", authURL)
		fmt.Println()
		fmt.Println("Waiting for callback...")
		fmt.Println()
	}

	var code string
	select {
	case code = <-codeCh:
	case err := <-serveErr:
		return nil, fmt.Errorf("callback server failed: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := oauthCfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	fmt.Println("Token acquired successfully")
	return token, nil
}

func startLocalListener() (net.Listener, string, error) {
	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return nil, "", fmt.Errorf("failed to start listener: %w", err)
	}
	redirectURL := "http://" + listener.Addr().String() + callbackPath
	return listener, redirectURL, nil
}

func buildOAuth2Config(cfg ClientConfig, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: redirectURL,
		Scopes:      []string{cfg.Scope},
		Endpoint: oauth2.Endpoint{
			AuthURL:       cfg.AuthDomain + authorizePath,
			TokenURL:      cfg.AuthDomain + tokenPath,
			DeviceAuthURL: cfg.AuthDomain + deviceAuthPath,
		},
	}
}

func buildAuthURL(oauthCfg *oauth2.Config, state, verifier string) string {
	return oauthCfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)
}

// callbackHandler hands the authorization code to codeCh once, for a request
// carrying the expected state.
func callbackHandler(state string, codeCh chan<- string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("state") != state {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if e := query.Get("error"); e != "" {
			http.Error(w, "Authentication failed: "+e, http.StatusBadRequest)
			return
		}

		code := query.Get("code")
		if code == "" {
			http.Error(w, "No code in request", http.StatusBadRequest)
			return
		}

		select {
		case codeCh <- code:
			fmt.Fprintf(w, "Authentication successful. You may now close this tab.")
		default:
			http.Error(w, "Code already received", http.StatusConflict)
		}
	})
	return mux
}

func generateState() (string, error) {
	state := make([]byte, 16)
	if _, err := rand.Read(state); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(state), nil
}

// DeviceCodeAuthenticator implements the Authenticator interface for device code flow.
type DeviceCodeAuthenticator struct{}

func (a *DeviceCodeAuthenticator) Authenticate(ctx context.Context, cfg ClientConfig) (*oauth2.Token, error) {
	oauthCfg := buildOAuth2Config(cfg, "")

	response, err := oauthCfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device authorization failed: %w", err)
	}

	if response.VerificationURIComplete != "" {
		fmt.Printf("To authenticate, visit: %s\n", response.VerificationURIComplete)
	} else {
		fmt.Printf("To authenticate, visit %s and enter the code %s\n", response.VerificationURI, response.UserCode)
	}

	// Poll for the token
	token, err := oauthCfg.DeviceAccessToken(ctx, response)
	if err != nil {
		return nil, fmt.Errorf("failed to request device token: %w", err)
	}
	return token, nil
}
