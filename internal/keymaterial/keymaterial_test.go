package keymaterial_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebastian-mora/sshtoken/internal/keymaterial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "id_rsa")

	kp := &keymaterial.KeyPair{
		PrivateKey:  []byte("private"),
		PublicKey:   []byte("ssh-rsa AAAA public\n"),
		Certificate: []byte("ssh-rsa-cert-v01@openssh.com AAAA cert\n"),
	}
	require.NoError(t, kp.Save(base))

	info, err := os.Stat(base)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := keymaterial.Load(base)
	require.NoError(t, err)
	assert.Equal(t, kp, loaded)
}

func TestLoadMissingArtifact(t *testing.T) {
	tests := []struct {
		name    string
		missing string
	}{
		{name: "private key", missing: ""},
		{name: "public key", missing: keymaterial.PublicKeySuffix},
		{name: "certificate", missing: keymaterial.CertificateSuffix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := filepath.Join(t.TempDir(), "key")
			kp := &keymaterial.KeyPair{PrivateKey: []byte("a"), PublicKey: []byte("b"), Certificate: []byte("c")}
			require.NoError(t, kp.Save(base))
			require.NoError(t, os.Remove(base+tt.missing))

			loaded, err := keymaterial.Load(base)
			assert.ErrorIs(t, err, keymaterial.ErrFileNotFound)
			assert.Nil(t, loaded)
		})
	}
}

func TestCertificatePath(t *testing.T) {
	assert.Equal(t, "/tmp/id_rsa-cert.pub", keymaterial.CertificatePath("/tmp/id_rsa.pub"))
	assert.Equal(t, "/tmp/key-cert.pub", keymaterial.CertificatePath("/tmp/key"))
}

func TestScratchCleanup(t *testing.T) {
	scratch, err := keymaterial.NewScratch(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(scratch.Path("key"), []byte("secret"), 0600))
	assert.DirExists(t, scratch.Dir())

	require.NoError(t, scratch.Close())
	assert.NoDirExists(t, scratch.Dir())
	assert.NoError(t, scratch.Close())
}
