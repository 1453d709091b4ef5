package signer

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"golang.org/x/crypto/ssh"
)

const defaultKMSTimeout = 10 * time.Second

type AwsKMSApi interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

type AWSKMSClient struct {
	client *kms.Client
}

func NewAWSKMSClient(client *kms.Client) *AWSKMSClient {
	return &AWSKMSClient{client: client}
}

func (a *AWSKMSClient) Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error) {
	return a.client.Sign(ctx, params, optFns...)
}

func (a *AWSKMSClient) GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	return a.client.GetPublicKey(ctx, params, optFns...)
}

// SSHCertSigner signs certificates with an RSA key held in AWS KMS. It implements ssh.Signer.
type SSHCertSigner struct {
	kmsClient AwsKMSApi
	keyID     string
	publicKey ssh.PublicKey
	timeout   time.Duration
}

func NewSSHCertSigner(ctx context.Context, kmsClient AwsKMSApi, keyID string) (*SSHCertSigner, error) {
	pubKeyResp, err := kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: &keyID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get KMS public key: %w", err)
	}

	pub, err := x509.ParsePKIXPublicKey(pubKeyResp.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPubKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: KMS key is %T", ErrUnsupportedKey, pub)
	}

	sshPubKey, err := ssh.NewPublicKey(rsaPubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to convert public key to SSH format: %w", err)
	}

	return &SSHCertSigner{
		kmsClient: kmsClient,
		keyID:     keyID,
		publicKey: sshPubKey,
		timeout:   defaultKMSTimeout,
	}, nil
}

// Sign hashes data with SHA-256 and has KMS sign the digest.
func (s *SSHCertSigner) Sign(_ io.Reader, data []byte) (*ssh.Signature, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	digest := sha256.Sum256(data)
	signResp, err := s.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            &s.keyID,
		Message:          digest[:],
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecRsassaPkcs1V15Sha256,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign with KMS: %w", err)
	}

	return &ssh.Signature{
		Format: ssh.KeyAlgoRSASHA256,
		Blob:   signResp.Signature,
	}, nil
}

func (s *SSHCertSigner) PublicKey() ssh.PublicKey {
	return s.publicKey
}

// CreateSignedCertificate builds and signs a certificate from tmpl using the KMS key.
func (s *SSHCertSigner) CreateSignedCertificate(tmpl CertificateTemplate) (*ssh.Certificate, error) {
	return signCertificate(tmpl, s)
}
