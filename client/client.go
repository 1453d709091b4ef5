package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultMaxTries        = 4
	defaultInitialInterval = 200 * time.Millisecond
)

// TokenClient defines the methods for interacting with the token service.
type TokenClient interface {
	// GetToken requests a new keypair and certificate for the caller.
	GetToken(ctx context.Context) (*TokenBundle, error)
	// ValidateToken asks the service whether a certificate grants the caller access.
	ValidateToken(ctx context.Context, certificate, publicKey string) (*Validation, error)
}

// TokenBundle is a freshly issued keypair and its certificate.
type TokenBundle struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	CertKey    string `json:"cert_key"`
}

// Validation is the service's authorization outcome.
type Validation struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
}

func (v *Validation) Authorized() bool {
	return v.Code == http.StatusOK
}

// StatusError is returned when the service answers with an unexpected status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

type SSHTokenClient struct {
	// Endpoint is the base URL of the token service.
	Endpoint string
	// AccessToken is the token used for authentication.
	AccessToken string
	// Client is the HTTP client used for making requests.
	Client *http.Client
	// MaxTries bounds attempts on transport errors and 5xx responses.
	MaxTries        uint
	InitialInterval time.Duration
}

// NewSSHTokenClient creates a new SSHTokenClient with the specified endpoint and authentication token.
func NewSSHTokenClient(endpoint, accessToken string) *SSHTokenClient {
	return &SSHTokenClient{
		Endpoint:        endpoint,
		AccessToken:     accessToken,
		Client:          &http.Client{Timeout: 60 * time.Second},
		MaxTries:        defaultMaxTries,
		InitialInterval: defaultInitialInterval,
	}
}

func (c *SSHTokenClient) GetToken(ctx context.Context) (*TokenBundle, error) {
	body, err := c.do(ctx, http.MethodGet, "token", nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var bundle TokenBundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if bundle.PrivateKey == "" || bundle.PublicKey == "" || bundle.CertKey == "" {
		return nil, fmt.Errorf("incomplete token response from server")
	}
	return &bundle, nil
}

// ValidateToken returns the decision for both granted (200) and refused (403) access.
func (c *SSHTokenClient) ValidateToken(ctx context.Context, certificate, publicKey string) (*Validation, error) {
	payload, err := json.Marshal(map[string]string{
		"cert_key":   certificate,
		"public_key": publicKey,
	})
	if err != nil {
		return nil, err
	}

	body, err := c.do(ctx, http.MethodPost, "token/signing", payload, http.StatusOK, http.StatusForbidden)
	if err != nil {
		return nil, err
	}

	var v Validation
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("failed to decode validation response: %w", err)
	}
	return &v, nil
}

// CAPublicKey fetches the certificate authority's public key in authorized_keys format.
func (c *SSHTokenClient) CAPublicKey(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "ca.pub", nil, http.StatusOK)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *SSHTokenClient) do(ctx context.Context, method, path string, payload []byte, accept ...int) ([]byte, error) {
	endpoint, err := url.JoinPath(c.Endpoint, path)
	if err != nil {
		return nil, fmt.Errorf("failed to join endpoint path: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		b.InitialInterval = c.InitialInterval
	}
	maxTries := c.MaxTries
	if maxTries == 0 {
		maxTries = 1
	}

	operation := func() ([]byte, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient().Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		for _, code := range accept {
			if resp.StatusCode == code {
				return respBody, nil
			}
		}

		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
		if resp.StatusCode >= 500 {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxTries),
	)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, statusErr
		}
		return nil, err
	}
	return body, nil
}

func (c *SSHTokenClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}
