package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// IdTokenClaims holds the OpenID Connect standard claims the CLI displays.
// https://openid.net/specs/openid-connect-core-1_0.html#StandardClaims
type IdTokenClaims struct {
	jwt.RegisteredClaims
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
}

// DisplayName picks the most readable identifier present in the token.
func (c *IdTokenClaims) DisplayName() string {
	for _, v := range []string{c.Name, c.PreferredUsername, c.Email, c.Subject} {
		if v != "" {
			return v
		}
	}
	return "unknown"
}

// ParseAccessToken decodes the claims of a JWT access token. The signature is
// not checked, the token service does that.
func ParseAccessToken(accessToken string) (*IdTokenClaims, error) {
	var claims IdTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	return &claims, nil
}

// TokenCache persists the OAuth2 token between runs.
type TokenCache struct {
	Path string
}

func (c TokenCache) Save(token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0700); err != nil {
		return err
	}
	return os.WriteFile(c.Path, data, 0600)
}

// Load returns nil without an error when nothing is cached yet.
func (c TokenCache) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(c.Path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid token cache: %w", err)
	}

	return &token, nil
}
