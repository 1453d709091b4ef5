package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/sebastian-mora/sshtoken/internal/keygen"
	"github.com/sebastian-mora/sshtoken/internal/keymaterial"
)

type GenerateCmd struct {
	CA         CAFlags   `embed:"" prefix:"ca-"`
	Cert       CertFlags `embed:""`
	Principals []string  `help:"comma separated principals to sign into the certificate" required:""`
	Out        string    `help:"base path of the key files: <out>, <out>.pub and <out>-cert.pub" default:"id_rsa" type:"path"`
	Passphrase string    `help:"encrypt the private key with this passphrase" env:"KEY_PASSPHRASE"`
	Comment    string    `help:"comment stored in the key files, the key ID when empty"`
	Bits       int       `help:"RSA key size" default:"3072"`
}

func (c *GenerateCmd) Run(ctx context.Context, globals *Globals) error {
	if err := c.Cert.validate(); err != nil {
		return err
	}
	ca, err := c.CA.Load(ctx)
	if err != nil {
		return err
	}

	g := newGenerator(ca, c.Cert, c.Comment)
	g.Bits = c.Bits

	kp, err := g.Generate(ctx, keygen.Request{
		Passphrase: c.Passphrase,
		Identity:   c.Cert.Identity,
		Domain:     c.Cert.Domain,
		Validity:   c.Cert.Validity,
		Principals: c.Principals,
	})
	if err != nil {
		return err
	}
	if err := kp.Save(c.Out); err != nil {
		return err
	}

	priv, pub, cert := keymaterial.Paths(c.Out)
	fmt.Fprintf(stdout, "Private key: %s\n", priv)
	fmt.Fprintf(stdout, "Public key:  %s\n", pub)
	fmt.Fprintf(stdout, "Certificate: %s\n", cert)
	return nil
}

type SignCmd struct {
	CA         CAFlags   `embed:"" prefix:"ca-"`
	Cert       CertFlags `embed:""`
	Principals []string  `help:"comma separated principals to sign into the certificate" required:""`
	PublicKey  string    `arg:"" help:"public key to sign, the certificate is written beside it as <name>-cert.pub" type:"existingfile"`
	PrivateKey string    `help:"matching private key, defaults to the public key path without .pub" type:"path"`
}

func (c *SignCmd) Run(ctx context.Context, globals *Globals) error {
	if err := c.Cert.validate(); err != nil {
		return err
	}
	ca, err := c.CA.Load(ctx)
	if err != nil {
		return err
	}

	privateKey := c.PrivateKey
	if privateKey == "" {
		privateKey = strings.TrimSuffix(c.PublicKey, keymaterial.PublicKeySuffix)
	}

	g := newGenerator(ca, c.Cert, "")
	if err := g.Sign(ctx, privateKey, c.PublicKey, keygen.Request{
		Identity:   c.Cert.Identity,
		Domain:     c.Cert.Domain,
		Validity:   c.Cert.Validity,
		Principals: c.Principals,
	}); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Certificate: %s\n", keymaterial.CertificatePath(c.PublicKey))
	return nil
}
