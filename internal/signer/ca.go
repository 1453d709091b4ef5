package signer

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

const DefaultCAKeyBits = 4096

// SSHCASigner signs certificates with an in-memory RSA CA key.
type SSHCASigner struct {
	ssh.Signer
}

// NewSSHCASigner wraps an existing ssh.Signer. Only RSA authorities are accepted.
func NewSSHCASigner(s ssh.Signer) (*SSHCASigner, error) {
	if err := requireRSA(s.PublicKey()); err != nil {
		return nil, err
	}
	return &SSHCASigner{Signer: s}, nil
}

// NewSSHCASignerFromPEM parses an OpenSSH or PKCS#1 PEM private key.
func NewSSHCASignerFromPEM(pemBytes []byte, passphrase string) (*SSHCASigner, error) {
	var (
		s   ssh.Signer
		err error
	)
	if passphrase == "" {
		s, err = ssh.ParsePrivateKey(pemBytes)
	} else {
		s, err = ssh.ParsePrivateKeyWithPassphrase(pemBytes, []byte(passphrase))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA private key: %w", err)
	}
	return NewSSHCASigner(s)
}

// NewSSHCASignerFromFile reads the CA private key from disk.
func NewSSHCASignerFromFile(path, passphrase string) (*SSHCASigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA key: %w", err)
	}
	return NewSSHCASignerFromPEM(data, passphrase)
}

// CreateSignedCertificate builds and signs a certificate from tmpl.
func (s *SSHCASigner) CreateSignedCertificate(tmpl CertificateTemplate) (*ssh.Certificate, error) {
	return signCertificate(tmpl, s.Signer)
}

// GenerateCAKey creates a new RSA CA key and returns it as an OpenSSH PEM block
// along with its authorized_keys line.
func GenerateCAKey(bits int, comment string) (privPEM []byte, authorizedKey []byte, err error) {
	if bits == 0 {
		bits = DefaultCAKeyBits
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(key, comment)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal CA key: %w", err)
	}

	pub, err := ssh.NewPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to convert public key to SSH format: %w", err)
	}

	return pem.EncodeToMemory(block), ssh.MarshalAuthorizedKey(pub), nil
}
