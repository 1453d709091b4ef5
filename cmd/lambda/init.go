package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/sebastian-mora/sshtoken/internal/handler"
	"github.com/sebastian-mora/sshtoken/internal/keygen"
	"github.com/sebastian-mora/sshtoken/internal/policy"
	"github.com/sebastian-mora/sshtoken/internal/principals"
	"github.com/sebastian-mora/sshtoken/internal/signer"
	"github.com/sebastian-mora/sshtoken/internal/verify"
)

// Environment variable names
const (
	envKMSKeyID           = "KMS_KEY_ID"
	envCASecretName       = "CA_SECRET_NAME"
	envCAPassphrase       = "CA_PASSPHRASE"
	envJMESPathExpression = "JMESPATH_EXPRESSION"
	envCertIdentity       = "CERT_IDENTITY"
	envCertDomain         = "CERT_DOMAIN"
	envCertValidity       = "CERT_VALIDITY"
	envKeyComment         = "KEY_COMMENT"
	envVerifyCacheTTL     = "VERIFY_CACHE_TTL"
)

const defaultVerifyCacheTTL = 5 * time.Minute

// lambdaConfig holds configuration loaded from environment
type lambdaConfig struct {
	KmsKeyId           string
	CASecretName       string
	CAPassphrase       string
	JMESPathExpression string
	Identity           string
	Domain             string
	Validity           string
	Comment            string
	VerifyCacheTTL     time.Duration
}

// InitOptions holds optional dependencies for initialization
type InitOptions struct {
	SSHCertificateSigner signer.SSHCertificateSigner
	PrincipalMapper      principals.PrincipalMapper
	Issuer               handler.IssuerConfig
	Comment              string
	VerifyCacheTTL       time.Duration
}

type InitOption func(*InitOptions)

func WithSSHCertificateSigner(signer signer.SSHCertificateSigner) InitOption {
	return func(o *InitOptions) {
		o.SSHCertificateSigner = signer
	}
}

func WithPrincipalMapper(mapper principals.PrincipalMapper) InitOption {
	return func(o *InitOptions) {
		o.PrincipalMapper = mapper
	}
}

func WithIssuer(issuer handler.IssuerConfig) InitOption {
	return func(o *InitOptions) {
		o.Issuer = issuer
	}
}

// loadConfig loads and validates environment configuration
func loadConfig() (*lambdaConfig, error) {
	cfg := &lambdaConfig{
		KmsKeyId:           os.Getenv(envKMSKeyID),
		CASecretName:       os.Getenv(envCASecretName),
		CAPassphrase:       os.Getenv(envCAPassphrase),
		JMESPathExpression: os.Getenv(envJMESPathExpression),
		Identity:           os.Getenv(envCertIdentity),
		Domain:             os.Getenv(envCertDomain),
		Validity:           os.Getenv(envCertValidity),
		Comment:            os.Getenv(envKeyComment),
		VerifyCacheTTL:     defaultVerifyCacheTTL,
	}

	// Validate required fields
	if cfg.KmsKeyId == "" && cfg.CASecretName == "" {
		return nil, fmt.Errorf("missing required env var: %s or %s", envKMSKeyID, envCASecretName)
	}
	if cfg.KmsKeyId != "" && cfg.CASecretName != "" {
		return nil, fmt.Errorf("only one of %s and %s may be set", envKMSKeyID, envCASecretName)
	}
	if cfg.JMESPathExpression == "" {
		return nil, fmt.Errorf("missing required env var: %s", envJMESPathExpression)
	}
	if cfg.Identity == "" {
		return nil, fmt.Errorf("missing required env var: %s", envCertIdentity)
	}
	if cfg.Validity == "" {
		cfg.Validity = handler.DefaultValidity
	}
	if _, err := keygen.ParseValidity(cfg.Validity, time.Now(), time.UTC); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", envCertValidity, err)
	}
	if raw := os.Getenv(envVerifyCacheTTL); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", envVerifyCacheTTL, err)
		}
		cfg.VerifyCacheTTL = ttl
	}

	return cfg, nil
}

// loadDefaultOptions loads all default dependencies from environment and AWS
func loadDefaultOptions(ctx context.Context) (*InitOptions, error) {
	// Load and validate configuration
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	// Create context with timeout for AWS operations
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Load AWS configuration
	awsCfg, err := config.LoadDefaultConfig(initCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var caSigner signer.SSHCertificateSigner
	if cfg.KmsKeyId != "" {
		caSigner, err = signer.NewSSHCertSigner(initCtx, signer.NewAWSKMSClient(kms.NewFromConfig(awsCfg)), cfg.KmsKeyId)
		if err != nil {
			return nil, fmt.Errorf("failed to create KMS SSH CA Signer: %w", err)
		}
	} else {
		caSigner, err = signer.NewSecretsManagerCASigner(initCtx, secretsmanager.NewFromConfig(awsCfg), cfg.CASecretName, cfg.CAPassphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to create Secrets Manager SSH CA Signer: %w", err)
		}
	}

	// Create principal mapper from JMESPath expression
	principalMapper, err := principals.NewJMESPathPrincipalMapper(cfg.JMESPathExpression)
	if err != nil {
		return nil, fmt.Errorf("failed to create principal mapper: %w", err)
	}

	return &InitOptions{
		SSHCertificateSigner: caSigner,
		PrincipalMapper:      principalMapper,
		Issuer: handler.IssuerConfig{
			Identity: cfg.Identity,
			Domain:   cfg.Domain,
			Validity: cfg.Validity,
			Location: time.UTC,
		},
		Comment:        cfg.Comment,
		VerifyCacheTTL: cfg.VerifyCacheTTL,
	}, nil
}

// initialize sets up all dependencies and returns the API Gateway handler
// It supports functional options for dependency injection in tests
func initialize(ctx context.Context, opts ...InitOption) (*APIGatewayHandler, error) {
	var options *InitOptions

	// If no custom options provided, load default options
	if len(opts) == 0 {
		defaultOpts, err := loadDefaultOptions(ctx)
		if err != nil {
			return nil, err
		}
		options = defaultOpts
	} else {
		options = &InitOptions{}
		for _, opt := range opts {
			opt(options)
		}
	}

	// Lambda's /tmp is the only writable scratch space.
	generator := keygen.NewGenerator(options.SSHCertificateSigner)
	generator.Comment = options.Comment
	generator.Location = options.Issuer.Location
	generator.TempDir = os.TempDir()

	var verifier policy.SignatureVerifier = verify.New(options.SSHCertificateSigner.PublicKey())
	if options.VerifyCacheTTL > 0 {
		verifier = verify.NewCached(verify.New(options.SSHCertificateSigner.PublicKey()), options.VerifyCacheTTL)
	}
	evaluator := policy.NewEvaluator(verifier)
	evaluator.Location = options.Issuer.Location

	tokenHandler := handler.NewTokenHandler(generator, evaluator, options.PrincipalMapper, options.Issuer)
	keyHandler := handler.NewCAKeyHandler(options.SSHCertificateSigner)

	return NewAPIGatewayHandler(tokenHandler, keyHandler), nil
}
