// Package keygen produces RSA keypairs and has them signed into OpenSSH user
// certificates by a certificate authority.
package keygen

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sebastian-mora/sshtoken/internal/keymaterial"
	"github.com/sebastian-mora/sshtoken/internal/logger"
	"github.com/sebastian-mora/sshtoken/internal/signer"
	"golang.org/x/crypto/ssh"
)

var ErrKeygenFailure = errors.New("keygen failure")

const (
	DefaultKeyBits = 3072
	DefaultTimeout = 30 * time.Second

	keyFileName = "id_rsa"
)

// Request carries the parameters of a single issuance.
type Request struct {
	Passphrase string
	Identity   string
	Domain     string
	Validity   string
	Principals []string
}

// KeyID is the certificate key identifier: the identity, qualified with the
// domain when one is set.
func (r Request) KeyID() string {
	if r.Domain == "" {
		return r.Identity
	}
	return r.Identity + "@" + r.Domain
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Identity) == "" {
		return fmt.Errorf("%w: identity is required", ErrKeygenFailure)
	}
	if len(r.Principals) == 0 {
		return fmt.Errorf("%w: at least one principal is required", ErrKeygenFailure)
	}
	for _, p := range r.Principals {
		if strings.TrimSpace(p) == "" || strings.Contains(p, ",") {
			return fmt.Errorf("%w: invalid principal %q", ErrKeygenFailure, p)
		}
	}
	return nil
}

// SplitPrincipals splits a comma separated principal list, dropping empty entries.
func SplitPrincipals(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Generator issues keypairs signed by CA.
type Generator struct {
	CA signer.SSHCertificateSigner
	// Comment is written to the key files. The identity is used when empty.
	Comment string
	Bits    int
	Timeout time.Duration
	// TempDir is the parent of the per-call scratch directories.
	TempDir  string
	Location *time.Location
	Now      func() time.Time
}

func NewGenerator(ca signer.SSHCertificateSigner) *Generator {
	return &Generator{
		CA:      ca,
		Bits:    DefaultKeyBits,
		Timeout: DefaultTimeout,
	}
}

// Generate creates a fresh keypair, signs it and returns all three artifacts.
// No files outlive the call.
func (g *Generator) Generate(ctx context.Context, req Request) (*keymaterial.KeyPair, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if _, err := ParseValidity(req.Validity, g.now(), g.Location); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeygenFailure, err)
	}

	scratch, err := keymaterial.NewScratch(g.TempDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeygenFailure, err)
	}
	defer func() {
		if err := scratch.Close(); err != nil {
			logger.Warn(ctx, "failed to remove scratch directory", "dir", scratch.Dir(), "error", err)
		}
	}()

	priv, pub, err := g.GenerateKeyPair(ctx, g.comment(req), req.Passphrase)
	if err != nil {
		return nil, err
	}

	basePath := scratch.Path(keyFileName)
	privPath, pubPath, _ := keymaterial.Paths(basePath)
	if err := os.WriteFile(privPath, priv, 0600); err != nil {
		return nil, fmt.Errorf("%w: failed to write private key: %v", ErrKeygenFailure, err)
	}
	if err := os.WriteFile(pubPath, pub, 0644); err != nil {
		return nil, fmt.Errorf("%w: failed to write public key: %v", ErrKeygenFailure, err)
	}

	if err := g.Sign(ctx, privPath, pubPath, req); err != nil {
		return nil, err
	}

	kp, err := keymaterial.Load(basePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeygenFailure, err)
	}

	return kp, nil
}

// GenerateKeyPair returns a new RSA private key as an OpenSSH PEM block,
// encrypted when passphrase is set, and its authorized_keys line.
func (g *Generator) GenerateKeyPair(ctx context.Context, comment, passphrase string) (privPEM, authorizedKey []byte, err error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	key, err := generateRSAKey(ctx, g.bits())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrKeygenFailure, err)
	}
	logger.Debug(ctx, "generated RSA key", "bits", g.bits(), "elapsed", time.Since(start).String())

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(key, comment)
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(key, comment, []byte(passphrase))
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to marshal private key: %v", ErrKeygenFailure, err)
	}

	pub, err := ssh.NewPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrKeygenFailure, err)
	}

	return pem.EncodeToMemory(block), authorizedKeyLine(pub, comment), nil
}

// Sign signs the public key at publicKeyPath and writes the certificate beside it
// as <name>-cert.pub.
func (g *Generator) Sign(ctx context.Context, privateKeyPath, publicKeyPath string, req Request) error {
	if err := req.validate(); err != nil {
		return err
	}
	if g.CA == nil {
		return fmt.Errorf("%w: no certificate authority configured", ErrKeygenFailure)
	}
	if _, err := os.Stat(privateKeyPath); err != nil {
		return fmt.Errorf("%w: private key: %v", ErrKeygenFailure, err)
	}

	pubBytes, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return fmt.Errorf("%w: public key: %v", ErrKeygenFailure, err)
	}
	pub, comment, _, _, err := ssh.ParseAuthorizedKey(pubBytes)
	if err != nil {
		return fmt.Errorf("%w: failed to parse public key: %v", ErrKeygenFailure, err)
	}
	if pub.Type() != ssh.KeyAlgoRSA {
		return fmt.Errorf("%w: unsupported key type %s", ErrKeygenFailure, pub.Type())
	}

	window, err := ParseValidity(req.Validity, g.now(), g.Location)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeygenFailure, err)
	}

	serial, err := randomSerial()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeygenFailure, err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrKeygenFailure, err)
	}

	cert, err := g.CA.CreateSignedCertificate(signer.CertificateTemplate{
		CertType:    ssh.UserCert,
		Key:         pub,
		KeyID:       req.KeyID(),
		Serial:      serial,
		Principals:  req.Principals,
		ValidAfter:  window.After,
		ValidBefore: window.Before,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeygenFailure, err)
	}

	certPath := keymaterial.CertificatePath(publicKeyPath)
	if err := os.WriteFile(certPath, authorizedKeyLine(cert, comment), 0644); err != nil {
		return fmt.Errorf("%w: failed to write certificate: %v", ErrKeygenFailure, err)
	}

	logger.Info(ctx, "signed user certificate",
		"key_id", cert.KeyId,
		"serial", cert.Serial,
		"principals", cert.ValidPrincipals,
		"fingerprint", ssh.FingerprintSHA256(pub),
	)

	return nil
}

// Load reads the artifacts previously written under basePath.
func (g *Generator) Load(basePath string) (*keymaterial.KeyPair, error) {
	return keymaterial.Load(basePath)
}

func (g *Generator) bits() int {
	if g.Bits <= 0 {
		return DefaultKeyBits
	}
	return g.Bits
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Generator) comment(req Request) string {
	if g.Comment != "" {
		return g.Comment
	}
	return req.KeyID()
}

func generateRSAKey(ctx context.Context, bits int) (*rsa.PrivateKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		key *rsa.PrivateKey
		err error
	}
	done := make(chan result, 1)
	go func() {
		key, err := rsa.GenerateKey(rand.Reader, bits)
		done <- result{key, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.key, r.err
	}
}

func randomSerial() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to generate serial: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// authorizedKeyLine is ssh.MarshalAuthorizedKey with the trailing comment ssh-keygen writes.
func authorizedKeyLine(key ssh.PublicKey, comment string) []byte {
	line := ssh.MarshalAuthorizedKey(key)
	if comment == "" {
		return line
	}
	line = line[:len(line)-1]
	return append(append(line, ' '), comment+"\n"...)
}
