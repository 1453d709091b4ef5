// Package certinfo renders and reads the human readable certificate report
// produced by ssh-keygen -L.
package certinfo

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	// TimeLayout is how ssh-keygen prints validity bounds.
	TimeLayout = "2006-01-02T15:04:05"

	fieldIndent = "        "
	itemIndent  = "                "
	stdinPath   = "(stdin)"
)

// InspectFile reads an authorized_keys format certificate from path and renders its report.
func InspectFile(path string, loc *time.Location) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read certificate: %w", err)
	}
	return Inspect(path, data, loc)
}

// Inspect renders the ssh-keygen -L report for an authorized_keys format
// certificate. Times are printed in loc, time.Local when nil.
func Inspect(path string, certificate []byte, loc *time.Location) (string, error) {
	pub, _, _, _, err := ssh.ParseAuthorizedKey(certificate)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCertificate, err)
	}
	cert, ok := pub.(*ssh.Certificate)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a certificate", ErrMalformedCertificate, pub.Type())
	}
	if loc == nil {
		loc = time.Local
	}
	if path == "" {
		path = stdinPath
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", path)
	fmt.Fprintf(&b, "%sType: %s %s certificate\n", fieldIndent, cert.Type(), certTypeName(cert.CertType))
	fmt.Fprintf(&b, "%sPublic key: %s %s\n", fieldIndent, keyTypeName(cert.Type()), ssh.FingerprintSHA256(cert.Key))
	fmt.Fprintf(&b, "%sSigning CA: %s %s", fieldIndent, keyTypeName(cert.SignatureKey.Type()), ssh.FingerprintSHA256(cert.SignatureKey))
	if cert.Signature != nil {
		fmt.Fprintf(&b, " (using %s)", cert.Signature.Format)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%sKey ID: %q\n", fieldIndent, cert.KeyId)
	fmt.Fprintf(&b, "%sSerial: %d\n", fieldIndent, cert.Serial)
	fmt.Fprintf(&b, "%sValid: %s\n", fieldIndent, formatValidity(cert, loc))

	writeList(&b, "Principals", cert.ValidPrincipals)
	writeList(&b, "Critical Options", formatOptions(cert.CriticalOptions))
	writeList(&b, "Extensions", formatOptions(cert.Extensions))

	return b.String(), nil
}

func writeList(b *strings.Builder, header string, items []string) {
	fmt.Fprintf(b, "%s%s: ", fieldIndent, header)
	if len(items) == 0 {
		b.WriteString("(none)\n")
		return
	}
	b.WriteString("\n")
	for _, item := range items {
		fmt.Fprintf(b, "%s%s\n", itemIndent, item)
	}
}

func formatOptions(opts map[string]string) []string {
	names := make([]string, 0, len(opts))
	for name := range opts {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		if v := opts[name]; v != "" {
			out = append(out, name+" "+v)
			continue
		}
		out = append(out, name)
	}
	return out
}

func formatValidity(cert *ssh.Certificate, loc *time.Location) string {
	after := cert.ValidAfter
	before := cert.ValidBefore
	switch {
	case after == 0 && before == ssh.CertTimeInfinity:
		return "forever"
	case after == 0:
		return "before " + formatCertTime(before, loc)
	case before == ssh.CertTimeInfinity:
		return "after " + formatCertTime(after, loc)
	default:
		return "from " + formatCertTime(after, loc) + " to " + formatCertTime(before, loc)
	}
}

func formatCertTime(t uint64, loc *time.Location) string {
	if t > 1<<63-1 {
		t = 1<<63 - 1
	}
	return time.Unix(int64(t), 0).In(loc).Format(TimeLayout)
}

func certTypeName(t uint32) string {
	switch t {
	case ssh.UserCert:
		return "user"
	case ssh.HostCert:
		return "host"
	default:
		return "unknown"
	}
}

// keyTypeName maps a key algorithm to the short name ssh-keygen prints.
func keyTypeName(algo string) string {
	suffix := ""
	if base, ok := strings.CutSuffix(algo, "-cert-v01@openssh.com"); ok {
		algo = base
		suffix = "-CERT"
	}

	var name string
	switch {
	case algo == ssh.KeyAlgoRSA:
		name = "RSA"
	case algo == ssh.KeyAlgoDSA:
		name = "DSA"
	case algo == ssh.KeyAlgoED25519:
		name = "ED25519"
	case algo == ssh.KeyAlgoSKED25519:
		name = "ED25519-SK"
	case algo == ssh.KeyAlgoSKECDSA256:
		name = "ECDSA-SK"
	case strings.HasPrefix(algo, "ecdsa-sha2-"):
		name = "ECDSA"
	default:
		name = strings.ToUpper(algo)
	}
	return name + suffix
}
