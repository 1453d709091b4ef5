package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sebastian-mora/sshtoken/internal/certinfo"
	"github.com/sebastian-mora/sshtoken/internal/keygen"
	"github.com/sebastian-mora/sshtoken/internal/keymaterial"
	"github.com/sebastian-mora/sshtoken/internal/logger"
	"github.com/sebastian-mora/sshtoken/internal/metrics"
	"github.com/sebastian-mora/sshtoken/internal/policy"
	"github.com/sebastian-mora/sshtoken/internal/principals"
)

var ErrUnauthorized = errors.New("unauthorized")
var ErrInvalidRequest = errors.New("invalid request")
var ErrInternalServer = errors.New("internal server error")

const (
	MessageSuccess   = "success"
	MessageForbidden = "access denied, verify your certificate or public key"

	// DefaultValidity issues certificates valid from one second ago for twelve weeks.
	DefaultValidity = "-1:+12w"
)

// TokenRequest asks for a freshly generated keypair and certificate.
type TokenRequest struct {
	Token     string // JWT token
	SourceIP  string
	UserAgent string
}

// TokenResponse carries the three key artifacts as text.
type TokenResponse struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	CertKey    string `json:"cert_key"`
}

// ValidationRequest presents a certificate and the public key it should belong to.
type ValidationRequest struct {
	Token     string `json:"-"`
	CertKey   string `json:"cert_key"`
	PublicKey string `json:"public_key"`
}

// ValidationResponse is the authorization outcome. Code is 200 when access is
// granted and 403 otherwise.
type ValidationResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
}

// TokenService issues and validates SSH certificates for bearer token holders.
type TokenService interface {
	IssueToken(ctx context.Context, req *TokenRequest) (*TokenResponse, error)
	ValidateToken(ctx context.Context, req *ValidationRequest) (*ValidationResponse, error)
}

type KeyGenerator interface {
	Generate(ctx context.Context, req keygen.Request) (*keymaterial.KeyPair, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, req policy.Request) policy.Decision
}

// IssuerConfig fixes the certificate parameters that do not come from the caller.
type IssuerConfig struct {
	Identity string
	Domain   string
	Validity string
	// Location is the zone certificate reports are rendered and read in.
	Location *time.Location
}

// TokenHandler implements TokenService
type TokenHandler struct {
	generator       KeyGenerator
	authorizer      Authorizer
	principalMapper principals.PrincipalMapper
	cfg             IssuerConfig
	metrics         *metrics.Metrics
	now             func() time.Time
}

type Option func(*TokenHandler)

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *TokenHandler) {
		h.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *TokenHandler) {
		h.now = now
	}
}

// NewTokenHandler creates a new TokenHandler with the provided dependencies
func NewTokenHandler(g KeyGenerator, a Authorizer, pm principals.PrincipalMapper, cfg IssuerConfig, opts ...Option) *TokenHandler {
	if cfg.Validity == "" {
		cfg.Validity = DefaultValidity
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	h := &TokenHandler{
		generator:       g,
		authorizer:      a,
		principalMapper: pm,
		cfg:             cfg,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// IssueToken maps the caller's claims to principals and returns a new signed keypair.
func (h *TokenHandler) IssueToken(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	ctx, prncpls, err := h.principalsFromToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	kp, err := h.generator.Generate(ctx, keygen.Request{
		Identity:   h.cfg.Identity,
		Domain:     h.cfg.Domain,
		Validity:   h.cfg.Validity,
		Principals: prncpls,
	})
	if err != nil {
		h.metrics.ObserveIssue(metrics.ResultFailure, time.Since(start))
		logger.Error(ctx, "failed to generate signed keypair", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInternalServer, err)
	}
	h.metrics.ObserveIssue(metrics.ResultSuccess, time.Since(start))

	logger.Info(ctx, "issued certificate",
		"principals", prncpls,
		"source_ip", req.SourceIP,
		"user_agent", req.UserAgent,
	)

	return &TokenResponse{
		PublicKey:  string(kp.PublicKey),
		PrivateKey: string(kp.PrivateKey),
		CertKey:    string(kp.Certificate),
	}, nil
}

// ValidateToken decides whether the presented certificate grants access to the
// caller's primary principal. A refusal is a 403 response, not an error.
func (h *TokenHandler) ValidateToken(ctx context.Context, req *ValidationRequest) (*ValidationResponse, error) {
	if req.CertKey == "" || req.PublicKey == "" {
		return nil, fmt.Errorf("%w: the public and certificate keys cannot be empty", ErrInvalidRequest)
	}

	ctx, prncpls, err := h.principalsFromToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	// An uninspectable certificate yields an empty report, which the
	// evaluator rejects as malformed.
	text, err := certinfo.Inspect("", []byte(req.CertKey), h.cfg.Location)
	if err != nil {
		logger.Warn(ctx, "failed to inspect presented certificate", "error", err)
		text = ""
	}

	decision := h.authorizer.Authorize(ctx, policy.Request{
		CertificateText:   text,
		PublicKey:         []byte(req.PublicKey),
		Certificate:       []byte(req.CertKey),
		RequiredPrincipal: prncpls[0],
		Now:               h.now(),
	})
	h.metrics.ObserveDecision(decision.Reason.String())

	logger.Info(ctx, "authorization decision",
		"principal", prncpls[0],
		"authorized", decision.Authorized,
		"reason", decision.Reason.String(),
	)

	if !decision.Authorized {
		return &ValidationResponse{
			Message: MessageForbidden,
			Code:    403,
			Reason:  decision.Reason.String(),
		}, nil
	}

	return &ValidationResponse{
		Message: MessageSuccess,
		Code:    200,
		Reason:  decision.Reason.String(),
	}, nil
}

// principalsFromToken maps the bearer token's claims to principals and adds the
// subject to the returned context for logging.
func (h *TokenHandler) principalsFromToken(ctx context.Context, token string) (context.Context, []string, error) {
	if token == "" {
		return ctx, nil, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}

	claims, err := ParseJWTClaims(token)
	if err != nil {
		return ctx, nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if sub, ok := claims["sub"].(string); ok {
		ctx = context.WithValue(ctx, logger.SubjectKey, sub)
	}

	prncpls, err := h.principalMapper.Map(claims)
	if errors.Is(err, principals.ErrNoPrincipals) {
		logger.Warn(ctx, "token maps to no principals", "error", err)
		return ctx, nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if err != nil {
		logger.Error(ctx, "failed to map principals from JWT claims", "error", err)
		return ctx, nil, fmt.Errorf("%w: %v", ErrInternalServer, err)
	}
	logger.Debug(ctx, "mapped principals from JWT claims", "principals", prncpls)

	return ctx, prncpls, nil
}
