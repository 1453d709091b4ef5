package signer_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/sebastian-mora/sshtoken/internal/signer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// MockKMSClient answers KMS calls with the configured functions and keeps the
// last Sign request for inspection.
type MockKMSClient struct {
	SignFunc         func(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	GetPublicKeyFunc func(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)

	LastSign *kms.SignInput
}

var errNotConfigured = errors.New("mock KMS call not configured")

func NewMockKMSClient() *MockKMSClient {
	return &MockKMSClient{}
}

func (m *MockKMSClient) WithSign(fn func(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)) *MockKMSClient {
	m.SignFunc = fn
	return m
}

func (m *MockKMSClient) WithGetPublicKey(fn func(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)) *MockKMSClient {
	m.GetPublicKeyFunc = fn
	return m
}

func (m *MockKMSClient) Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error) {
	m.LastSign = params
	if m.SignFunc == nil {
		return nil, errNotConfigured
	}
	return m.SignFunc(ctx, params, optFns...)
}

func (m *MockKMSClient) GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	if m.GetPublicKeyFunc == nil {
		return nil, errNotConfigured
	}
	return m.GetPublicKeyFunc(ctx, params, optFns...)
}

func TestKMSSignerSignsDigest(t *testing.T) {
	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	kmsClient := kmsBackedByKey(t, caKey)

	s, err := signer.NewSSHCertSigner(context.TODO(), kmsClient, "alias/ssh-ca")
	require.NoError(t, err)

	data := []byte("certificate body")
	sig, err := s.Sign(rand.Reader, data)
	require.NoError(t, err)

	require.NotNil(t, kmsClient.LastSign)
	digest := sha256.Sum256(data)
	assert.Equal(t, "alias/ssh-ca", *kmsClient.LastSign.KeyId)
	assert.Equal(t, digest[:], kmsClient.LastSign.Message)
	assert.Equal(t, types.MessageTypeDigest, kmsClient.LastSign.MessageType)
	assert.Equal(t, types.SigningAlgorithmSpecRsassaPkcs1V15Sha256, kmsClient.LastSign.SigningAlgorithm)

	assert.Equal(t, ssh.KeyAlgoRSASHA256, sig.Format)
	assert.NoError(t, s.PublicKey().Verify(data, sig))
}

func TestKMSSignerUnconfiguredClient(t *testing.T) {
	_, err := signer.NewSSHCertSigner(context.TODO(), NewMockKMSClient(), "id-123")
	assert.ErrorIs(t, err, errNotConfigured)
}
