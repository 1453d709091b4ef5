package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sebastian-mora/sshtoken/internal/certinfo"
	"github.com/sebastian-mora/sshtoken/internal/keymaterial"
	"github.com/sebastian-mora/sshtoken/internal/logger"
	"github.com/sebastian-mora/sshtoken/internal/policy"
	"github.com/sebastian-mora/sshtoken/internal/verify"
)

type AuthorizeCmd struct {
	Certificate string `arg:"" help:"certificate to check" type:"existingfile"`
	PublicKey   string `help:"public key the certificate should belong to, defaults to the certificate path with -cert.pub replaced by .pub" type:"path"`
	Principal   string `help:"principal that must be listed in the certificate" required:""`
	TrustedCA   string `help:"file of trusted CA public keys in authorized_keys format" required:"" name:"trusted-ca" type:"existingfile" env:"TRUSTED_USER_CA_KEYS"`
	FailOpen    bool   `help:"accept certificates whose validity cannot be read"`
	UTC         bool   `help:"read validity times in UTC instead of local time" name:"utc"`
}

func (c *AuthorizeCmd) Run(ctx context.Context, globals *Globals) error {
	loc := time.Local
	if c.UTC {
		loc = time.UTC
	}

	caKeys, err := os.ReadFile(c.TrustedCA)
	if err != nil {
		return fmt.Errorf("failed to read trusted CA keys: %w", err)
	}
	authorities, err := verify.ParseAuthorities(caKeys)
	if err != nil {
		return err
	}

	cert, err := os.ReadFile(c.Certificate)
	if err != nil {
		return fmt.Errorf("failed to read certificate: %w", err)
	}
	pubPath := c.PublicKey
	if pubPath == "" {
		pubPath = publicKeyPathFor(c.Certificate)
	}
	pub, err := os.ReadFile(pubPath)
	if err != nil {
		return fmt.Errorf("failed to read public key: %w", err)
	}

	text, err := certinfo.Inspect(c.Certificate, cert, loc)
	if err != nil {
		logger.Warn(ctx, "failed to inspect certificate", "error", err)
		text = ""
	}

	evaluator := policy.NewEvaluator(verify.New(authorities...))
	evaluator.Location = loc
	evaluator.FailOpenOnUnparsableExpiry = c.FailOpen

	decision := evaluator.Authorize(ctx, policy.Request{
		CertificateText:   text,
		PublicKey:         pub,
		Certificate:       cert,
		RequiredPrincipal: c.Principal,
		Now:               time.Now(),
	})

	out, err := json.Marshal(decision)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(out))

	if !decision.Authorized {
		return fmt.Errorf("access denied: %s", decision.Reason)
	}
	return nil
}

func publicKeyPathFor(certPath string) string {
	if base, ok := strings.CutSuffix(certPath, keymaterial.CertificateSuffix); ok {
		return base + keymaterial.PublicKeySuffix
	}
	return certPath + keymaterial.PublicKeySuffix
}
