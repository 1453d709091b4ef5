package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sebastian-mora/sshtoken/internal/keymaterial"
	"github.com/sebastian-mora/sshtoken/internal/signer"
)

type CACmd struct {
	Out     string `help:"path of the CA private key, the public key is written to <out>.pub" default:"ca" type:"path"`
	Bits    int    `help:"RSA key size" default:"4096"`
	Comment string `help:"comment stored in the key" default:"sshtoken-ca"`
	Force   bool   `help:"overwrite existing files"`
}

func (c *CACmd) Run(ctx context.Context, globals *Globals) error {
	pubPath := c.Out + keymaterial.PublicKeySuffix
	if !c.Force {
		for _, p := range []string{c.Out, pubPath} {
			if _, err := os.Stat(p); !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%s already exists, use --force to overwrite", p)
			}
		}
	}

	priv, pub, err := signer.GenerateCAKey(c.Bits, c.Comment)
	if err != nil {
		return err
	}

	if err := os.WriteFile(c.Out, priv, 0600); err != nil {
		return fmt.Errorf("failed to write CA key: %w", err)
	}
	if err := os.WriteFile(pubPath, pub, 0644); err != nil {
		return fmt.Errorf("failed to write CA public key: %w", err)
	}

	fmt.Fprintf(stdout, "CA key written to %s\n", c.Out)
	fmt.Fprintf(stdout, "CA public key written to %s\n", pubPath)
	fmt.Fprintf(stdout, "Trust it with: TrustedUserCAKeys %s\n", pubPath)
	return nil
}
