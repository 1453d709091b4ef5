package signer

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"
)

var ErrUnsupportedKey = errors.New("certificate authority key must be RSA")

// SSHCertificateSigner is a certificate authority able to issue OpenSSH certificates.
type SSHCertificateSigner interface {
	ssh.Signer
	CreateSignedCertificate(tmpl CertificateTemplate) (*ssh.Certificate, error)
}

// CertificateTemplate describes the certificate to issue. A zero ValidAfter means
// "always" and a zero ValidBefore means "forever".
type CertificateTemplate struct {
	CertType        uint32
	Key             ssh.PublicKey
	KeyID           string
	Serial          uint64
	Principals      []string
	ValidAfter      time.Time
	ValidBefore     time.Time
	CriticalOptions map[string]string
	Extensions      map[string]string
}

// DefaultUserExtensions are the extensions ssh-keygen grants user certificates.
func DefaultUserExtensions() map[string]string {
	return map[string]string{
		"permit-X11-forwarding":   "",
		"permit-agent-forwarding": "",
		"permit-port-forwarding":  "",
		"permit-pty":              "",
		"permit-user-rc":          "",
	}
}

// signCertificate builds the certificate from tmpl and signs it with authority.
func signCertificate(tmpl CertificateTemplate, authority ssh.Signer) (*ssh.Certificate, error) {
	if tmpl.Key == nil {
		return nil, fmt.Errorf("certificate template has no public key")
	}
	if !tmpl.ValidAfter.IsZero() && !tmpl.ValidBefore.IsZero() && tmpl.ValidBefore.Before(tmpl.ValidAfter) {
		return nil, fmt.Errorf("certificate validity ends before it starts")
	}

	extensions := tmpl.Extensions
	if extensions == nil && tmpl.CertType == ssh.UserCert {
		extensions = DefaultUserExtensions()
	}

	cert := &ssh.Certificate{
		Key:             tmpl.Key,
		Serial:          tmpl.Serial,
		KeyId:           tmpl.KeyID,
		CertType:        tmpl.CertType,
		ValidPrincipals: tmpl.Principals,
		ValidAfter:      certTime(tmpl.ValidAfter, 0),
		ValidBefore:     certTime(tmpl.ValidBefore, ssh.CertTimeInfinity),
		Permissions: ssh.Permissions{
			CriticalOptions: tmpl.CriticalOptions,
			Extensions:      extensions,
		},
	}

	// SignCert fills in the nonce and signature key.
	if err := cert.SignCert(rand.Reader, authority); err != nil {
		return nil, fmt.Errorf("failed to sign certificate: %w", err)
	}

	return cert, nil
}

func certTime(t time.Time, zero uint64) uint64 {
	if t.IsZero() {
		return zero
	}
	if t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}

func requireRSA(pub ssh.PublicKey) error {
	if pub.Type() != ssh.KeyAlgoRSA {
		return fmt.Errorf("%w: got %s", ErrUnsupportedKey, pub.Type())
	}
	return nil
}
