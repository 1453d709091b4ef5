package handler

import (
	"context"

	"golang.org/x/crypto/ssh"
)

// Keyhandler serves the certificate authority's public key.
type Keyhandler interface {
	PublicKey(context.Context) (string, error)
}

// CAKeyHandler returns the public key of a signer in authorized_keys format.
type CAKeyHandler struct {
	signer ssh.Signer
}

func NewCAKeyHandler(s ssh.Signer) *CAKeyHandler {
	return &CAKeyHandler{signer: s}
}

func (k *CAKeyHandler) PublicKey(ctx context.Context) (string, error) {
	return string(ssh.MarshalAuthorizedKey(k.signer.PublicKey())), nil
}
