package certinfo_test

import (
	"crypto/rand"
	"crypto/rsa"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebastian-mora/sshtoken/internal/certinfo"
	"github.com/sebastian-mora/sshtoken/internal/signer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func issueCertificate(t *testing.T, tmpl signer.CertificateTemplate) (*ssh.Certificate, []byte) {
	t.Helper()
	caPEM, _, err := signer.GenerateCAKey(2048, "ca")
	require.NoError(t, err)
	ca, err := signer.NewSSHCASignerFromPEM(caPEM, "")
	require.NoError(t, err)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl.Key, err = ssh.NewPublicKey(&key.PublicKey)
	require.NoError(t, err)
	tmpl.CertType = ssh.UserCert

	cert, err := ca.CreateSignedCertificate(tmpl)
	require.NoError(t, err)
	return cert, ssh.MarshalAuthorizedKey(cert)
}

func TestInspect(t *testing.T) {
	after := time.Date(2024, 3, 15, 12, 30, 44, 0, time.UTC)
	before := time.Date(2024, 3, 16, 12, 30, 45, 0, time.UTC)
	cert, line := issueCertificate(t, signer.CertificateTemplate{
		KeyID:           "TESTING@testing.com.au",
		Serial:          7,
		Principals:      []string{"alice", "bob"},
		ValidAfter:      after,
		ValidBefore:     before,
		CriticalOptions: map[string]string{"source-address": "10.0.0.0/8"},
	})

	report, err := certinfo.Inspect("/tmp/id_rsa-cert.pub", line, time.UTC)
	require.NoError(t, err)

	want := strings.Join([]string{
		"/tmp/id_rsa-cert.pub:",
		"        Type: ssh-rsa-cert-v01@openssh.com user certificate",
		"        Public key: RSA-CERT " + ssh.FingerprintSHA256(cert.Key),
		"        Signing CA: RSA " + ssh.FingerprintSHA256(cert.SignatureKey) + " (using " + ssh.KeyAlgoRSASHA256 + ")",
		`        Key ID: "TESTING@testing.com.au"`,
		"        Serial: 7",
		"        Valid: from 2024-03-15T12:30:44 to 2024-03-16T12:30:45",
		"        Principals: ",
		"                alice",
		"                bob",
		"        Critical Options: ",
		"                source-address 10.0.0.0/8",
		"        Extensions: ",
		"                permit-X11-forwarding",
		"                permit-agent-forwarding",
		"                permit-port-forwarding",
		"                permit-pty",
		"                permit-user-rc",
		"",
	}, "\n")
	assert.Equal(t, want, report)
}

func TestInspectParseAgreement(t *testing.T) {
	after := time.Date(2024, 3, 15, 12, 30, 44, 0, time.UTC)
	before := time.Date(2024, 3, 16, 12, 30, 45, 0, time.UTC)
	cert, line := issueCertificate(t, signer.CertificateTemplate{
		KeyID:       "carol",
		Serial:      99,
		Principals:  []string{"carol", "admin"},
		ValidAfter:  after,
		ValidBefore: before,
		Extensions:  map[string]string{"permit-pty": ""},
	})

	path := filepath.Join(t.TempDir(), "id_rsa-cert.pub")
	require.NoError(t, os.WriteFile(path, line, 0644))

	report, err := certinfo.InspectFile(path, time.UTC)
	require.NoError(t, err)

	md, err := certinfo.Parse(report)
	require.NoError(t, err)
	assert.Equal(t, path, md.Path)
	assert.Equal(t, "carol", md.KeyID)
	assert.Equal(t, "99", md.Serial)
	assert.Equal(t, cert.ValidPrincipals, md.Principals)
	assert.Equal(t, []string{"permit-pty"}, md.Extensions)
	assert.Empty(t, md.CriticalOptions)

	w, err := certinfo.ParseValidity(md.Validity, time.UTC)
	require.NoError(t, err)
	assert.True(t, after.Equal(w.NotBefore))
	assert.True(t, before.Equal(w.NotAfter))
}

func TestInspectValidityForms(t *testing.T) {
	at := time.Date(2024, 3, 15, 12, 30, 44, 0, time.UTC)

	tests := []struct {
		name   string
		after  time.Time
		before time.Time
		want   string
	}{
		{"forever", time.Time{}, time.Time{}, "forever"},
		{"after", at, time.Time{}, "after 2024-03-15T12:30:44"},
		{"before", time.Time{}, at, "before 2024-03-15T12:30:44"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, line := issueCertificate(t, signer.CertificateTemplate{
				KeyID:       "x",
				Principals:  []string{"x"},
				ValidAfter:  tt.after,
				ValidBefore: tt.before,
			})
			report, err := certinfo.Inspect("", line, time.UTC)
			require.NoError(t, err)

			md, err := certinfo.Parse(report)
			require.NoError(t, err)
			assert.Equal(t, "(stdin)", md.Path)
			assert.Equal(t, tt.want, md.Validity)
		})
	}
}

func TestInspectRejectsNonCertificates(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pub, err := ssh.NewPublicKey(&key.PublicKey)
	require.NoError(t, err)

	_, err = certinfo.Inspect("id_rsa.pub", ssh.MarshalAuthorizedKey(pub), time.UTC)
	assert.ErrorIs(t, err, certinfo.ErrMalformedCertificate)

	_, err = certinfo.Inspect("junk", []byte("not a key"), time.UTC)
	assert.ErrorIs(t, err, certinfo.ErrMalformedCertificate)
}
