// Package policy decides whether a presented certificate authorizes access.
package policy

import (
	"context"
	"errors"
	"time"

	"github.com/sebastian-mora/sshtoken/internal/certinfo"
	"github.com/sebastian-mora/sshtoken/internal/logger"
)

// Reason explains a Decision.
type Reason int

const (
	ReasonOK Reason = iota
	ReasonExpired
	ReasonSignatureInvalid
	ReasonPrincipalNotAllowed
	ReasonMalformedCertificate
)

var reasonNames = map[Reason]string{
	ReasonOK:                   "ok",
	ReasonExpired:              "expired",
	ReasonSignatureInvalid:     "signature-invalid",
	ReasonPrincipalNotAllowed:  "principal-not-allowed",
	ReasonMalformedCertificate: "malformed-certificate",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Reasons lists every reason in precedence order, lowest first.
func Reasons() []Reason {
	return []Reason{ReasonOK, ReasonPrincipalNotAllowed, ReasonExpired, ReasonSignatureInvalid, ReasonMalformedCertificate}
}

type Decision struct {
	Authorized bool   `json:"authorized"`
	Reason     Reason `json:"reason"`
}

func allow() Decision {
	return Decision{Authorized: true, Reason: ReasonOK}
}

func deny(r Reason) Decision {
	return Decision{Authorized: false, Reason: r}
}

// SignatureVerifier reports whether certificate was validly issued for publicKey.
type SignatureVerifier interface {
	Verify(publicKey, certificate []byte) bool
}

type Request struct {
	// CertificateText is the ssh-keygen -L report for Certificate.
	CertificateText   string
	PublicKey         []byte
	Certificate       []byte
	RequiredPrincipal string
	// Now defaults to the current time.
	Now time.Time
}

type Evaluator struct {
	Verifier SignatureVerifier
	// Location is the zone of timestamps in the report, time.Local when nil.
	Location *time.Location
	// FailOpenOnUnparsableExpiry skips the expiry check when the validity
	// field cannot be read instead of rejecting the certificate.
	FailOpenOnUnparsableExpiry bool
}

func NewEvaluator(verifier SignatureVerifier) *Evaluator {
	return &Evaluator{Verifier: verifier}
}

// Authorize checks the certificate in order of precedence: malformed report,
// signature, expiry, then principal membership.
func (e *Evaluator) Authorize(ctx context.Context, req Request) Decision {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	md, err := certinfo.Parse(req.CertificateText)
	if err != nil {
		logger.Warn(ctx, "certificate report could not be parsed", "error", err)
		return deny(ReasonMalformedCertificate)
	}

	window, err := certinfo.ParseValidity(md.Validity, e.Location)
	checkExpiry := true
	switch {
	case errors.Is(err, certinfo.ErrNoValidity):
		logger.Warn(ctx, "certificate report has no validity field, skipping expiry check", "key_id", md.KeyID)
		checkExpiry = false
	case errors.Is(err, certinfo.ErrUnparsableValidity):
		if !e.FailOpenOnUnparsableExpiry {
			logger.Warn(ctx, "certificate validity could not be parsed", "key_id", md.KeyID, "error", err)
			return deny(ReasonMalformedCertificate)
		}
		logger.Warn(ctx, "certificate validity could not be parsed, skipping expiry check", "key_id", md.KeyID, "error", err)
		checkExpiry = false
	}

	if e.Verifier == nil || !e.Verifier.Verify(req.PublicKey, req.Certificate) {
		return deny(ReasonSignatureInvalid)
	}

	if checkExpiry && window.Expired(now) {
		return deny(ReasonExpired)
	}

	if !md.HasPrincipal(req.RequiredPrincipal) {
		return deny(ReasonPrincipalNotAllowed)
	}

	return allow()
}
