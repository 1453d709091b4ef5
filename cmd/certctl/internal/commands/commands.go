package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/sebastian-mora/sshtoken/internal/handler"
	"github.com/sebastian-mora/sshtoken/internal/keygen"
	"github.com/sebastian-mora/sshtoken/internal/signer"
)

var stdout io.Writer = os.Stdout

type Globals struct {
	Debug   bool
	Version string
}

// CAFlags selects the certificate authority. Exactly one source must be set.
type CAFlags struct {
	KeyFile    string `help:"path to a PEM encoded CA private key" env:"CA_KEY_FILE"`
	KMSKeyID   string `help:"AWS KMS key ID of an RSA signing key" name:"kms-key-id" env:"KMS_KEY_ID"`
	SecretName string `help:"AWS Secrets Manager secret holding a PEM CA key" env:"CA_SECRET_NAME"`
	Passphrase string `help:"passphrase of the CA private key" env:"CA_PASSPHRASE"`
}

func (f *CAFlags) validate() error {
	set := 0
	for _, v := range []string{f.KeyFile, f.KMSKeyID, f.SecretName} {
		if v != "" {
			set++
		}
	}
	switch set {
	case 0:
		return errors.New("a certificate authority is required (--ca-key-file, --ca-kms-key-id or --ca-secret-name)")
	case 1:
		return nil
	default:
		return errors.New("only one certificate authority source may be set")
	}
}

// Load opens the selected certificate authority.
func (f *CAFlags) Load(ctx context.Context) (signer.SSHCertificateSigner, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if f.KeyFile != "" {
		return signer.NewSSHCASignerFromFile(f.KeyFile, f.Passphrase)
	}

	awsCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	awsCfg, err := config.LoadDefaultConfig(awsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if f.KMSKeyID != "" {
		s, err := signer.NewSSHCertSigner(awsCtx, signer.NewAWSKMSClient(kms.NewFromConfig(awsCfg)), f.KMSKeyID)
		if err != nil {
			return nil, fmt.Errorf("failed to create KMS SSH CA Signer: %w", err)
		}
		return s, nil
	}

	s, err := signer.NewSecretsManagerCASigner(awsCtx, secretsmanager.NewFromConfig(awsCfg), f.SecretName, f.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secrets Manager SSH CA Signer: %w", err)
	}
	return s, nil
}

// CertFlags are the certificate parameters shared by generate, sign and serve.
type CertFlags struct {
	Identity string `help:"certificate identity, the key ID before the @" required:"" env:"CERT_IDENTITY"`
	Domain   string `help:"domain appended to the key ID" env:"CERT_DOMAIN"`
	Validity string `help:"validity interval in ssh-keygen -V syntax" default:"-1:+12w" env:"CERT_VALIDITY"`
	UTC      bool   `help:"read and print absolute times in UTC instead of local time" name:"utc"`
}

func (f *CertFlags) validate() error {
	if _, err := keygen.ParseValidity(f.Validity, time.Now(), f.location()); err != nil {
		return fmt.Errorf("invalid validity: %w", err)
	}
	return nil
}

func (f *CertFlags) location() *time.Location {
	if f.UTC {
		return time.UTC
	}
	return time.Local
}

func (f *CertFlags) issuer() handler.IssuerConfig {
	return handler.IssuerConfig{
		Identity: f.Identity,
		Domain:   f.Domain,
		Validity: f.Validity,
		Location: f.location(),
	}
}

func configureHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

func newGenerator(ca signer.SSHCertificateSigner, cert CertFlags, comment string) *keygen.Generator {
	g := keygen.NewGenerator(ca)
	g.Comment = comment
	g.Location = cert.location()
	return g
}
