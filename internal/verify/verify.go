// Package verify checks that a certificate was signed over a given public key.
// It does not evaluate validity periods or principals.
package verify

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"
)

var (
	// ErrInconclusive is returned when the inputs cannot be parsed.
	ErrInconclusive = errors.New("signature check inconclusive")
	// ErrSignatureInvalid is returned when the certificate does not belong to
	// the public key or its signature does not hold.
	ErrSignatureInvalid = errors.New("certificate signature invalid")
)

// Checker reports why a certificate fails to verify.
type Checker interface {
	Check(publicKey, certificate []byte) error
}

// Verifier checks RSA user certificates. When Authorities is empty the signing
// key embedded in the certificate is trusted.
type Verifier struct {
	Authorities []ssh.PublicKey
}

func New(authorities ...ssh.PublicKey) *Verifier {
	return &Verifier{Authorities: authorities}
}

// ParseAuthorities reads one or more authorized_keys lines.
func ParseAuthorities(data []byte) ([]ssh.PublicKey, error) {
	var keys []ssh.PublicKey
	for len(bytes.TrimSpace(data)) > 0 {
		key, _, _, rest, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse authority key: %w", err)
		}
		keys = append(keys, key)
		data = rest
	}
	return keys, nil
}

// Verify reports whether certificate is a validly signed certificate for
// publicKey. Unparsable input yields false.
func (v *Verifier) Verify(publicKey, certificate []byte) bool {
	return v.Check(publicKey, certificate) == nil
}

// Check verifies certificate against publicKey. Both are authorized_keys lines.
func (v *Verifier) Check(publicKey, certificate []byte) error {
	pub, _, _, _, err := ssh.ParseAuthorizedKey(publicKey)
	if err != nil {
		return fmt.Errorf("%w: public key: %v", ErrInconclusive, err)
	}
	if _, ok := pub.(*ssh.Certificate); ok {
		return fmt.Errorf("%w: public key is a certificate", ErrInconclusive)
	}

	certKey, _, _, _, err := ssh.ParseAuthorizedKey(certificate)
	if err != nil {
		return fmt.Errorf("%w: certificate: %v", ErrInconclusive, err)
	}
	cert, ok := certKey.(*ssh.Certificate)
	if !ok {
		return fmt.Errorf("%w: %s is not a certificate", ErrInconclusive, certKey.Type())
	}

	if cert.CertType != ssh.UserCert {
		return fmt.Errorf("%w: not a user certificate", ErrSignatureInvalid)
	}
	if cert.Key.Type() != ssh.KeyAlgoRSA || pub.Type() != ssh.KeyAlgoRSA {
		return fmt.Errorf("%w: only RSA keys are accepted", ErrSignatureInvalid)
	}
	if !bytes.Equal(cert.Key.Marshal(), pub.Marshal()) {
		return fmt.Errorf("%w: certificate was not issued for this public key", ErrSignatureInvalid)
	}
	if !v.trusted(cert.SignatureKey) {
		return fmt.Errorf("%w: signed by untrusted authority %s", ErrSignatureInvalid, ssh.FingerprintSHA256(cert.SignatureKey))
	}
	if cert.Signature == nil {
		return fmt.Errorf("%w: certificate is unsigned", ErrSignatureInvalid)
	}

	if err := cert.SignatureKey.Verify(signedBytes(cert), cert.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	return nil
}

func (v *Verifier) trusted(key ssh.PublicKey) bool {
	if len(v.Authorities) == 0 {
		return true
	}
	for _, authority := range v.Authorities {
		if bytes.Equal(authority.Marshal(), key.Marshal()) {
			return true
		}
	}
	return false
}

// signedBytes is the certificate encoding without the trailing signature,
// which is what the authority signed.
func signedBytes(cert *ssh.Certificate) []byte {
	unsigned := *cert
	unsigned.Signature = nil
	out := unsigned.Marshal()
	return out[:len(out)-4]
}
