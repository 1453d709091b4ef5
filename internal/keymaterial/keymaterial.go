// Package keymaterial holds the raw bytes of an SSH keypair and its certificate,
// and the scoped scratch directories used while producing them.
package keymaterial

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var ErrFileNotFound = errors.New("key material file not found")

const (
	PublicKeySuffix   = ".pub"
	CertificateSuffix = "-cert.pub"
)

// KeyPair is a private key, its public key and the certificate issued for it,
// each in OpenSSH's native encoding.
type KeyPair struct {
	PrivateKey  []byte
	PublicKey   []byte
	Certificate []byte
}

// Paths returns the private key, public key and certificate paths for a key base path.
func Paths(basePath string) (privateKey, publicKey, certificate string) {
	return basePath, basePath + PublicKeySuffix, basePath + CertificateSuffix
}

// CertificatePath returns where ssh-keygen places the certificate for a public key file.
func CertificatePath(publicKeyPath string) string {
	return strings.TrimSuffix(publicKeyPath, PublicKeySuffix) + CertificateSuffix
}

// Load reads <basePath>, <basePath>.pub and <basePath>-cert.pub.
func Load(basePath string) (*KeyPair, error) {
	privPath, pubPath, certPath := Paths(basePath)

	priv, err := readFile(privPath)
	if err != nil {
		return nil, err
	}
	pub, err := readFile(pubPath)
	if err != nil {
		return nil, err
	}
	cert, err := readFile(certPath)
	if err != nil {
		return nil, err
	}

	return &KeyPair{
		PrivateKey:  priv,
		PublicKey:   pub,
		Certificate: cert,
	}, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// Save writes the three artifacts next to basePath using ssh-keygen's file names
// and permissions.
func (k *KeyPair) Save(basePath string) error {
	privPath, pubPath, certPath := Paths(basePath)

	if err := os.MkdirAll(filepath.Dir(basePath), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	files := []struct {
		path string
		data []byte
		mode os.FileMode
	}{
		{privPath, k.PrivateKey, 0600},
		{pubPath, k.PublicKey, 0644},
		{certPath, k.Certificate, 0644},
	}

	for _, f := range files {
		if err := os.WriteFile(f.path, f.data, f.mode); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.path, err)
		}
	}

	return nil
}

// Scratch is a uniquely named temporary directory owned by a single operation.
type Scratch struct {
	dir string
}

// NewScratch creates a scratch directory under parent (os.TempDir() when empty).
func NewScratch(parent string) (*Scratch, error) {
	dir, err := os.MkdirTemp(parent, "sshtoken-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

func (s *Scratch) Dir() string {
	return s.dir
}

// Path joins name onto the scratch directory.
func (s *Scratch) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Close removes the scratch directory and everything in it. It is safe to call
// more than once.
func (s *Scratch) Close() error {
	return os.RemoveAll(s.dir)
}
