package signer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type SecretsManagerApi interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// GetSecretString fetches the string value of a secret.
func GetSecretString(ctx context.Context, client SecretsManagerApi, secretName string) (string, error) {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to retrieve secret %s: %w", secretName, err)
	}

	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no SecretString", secretName)
	}

	return *out.SecretString, nil
}

// NewSecretsManagerCASigner loads a PEM encoded CA private key stored as a secret string.
func NewSecretsManagerCASigner(ctx context.Context, client SecretsManagerApi, secretName, passphrase string) (*SSHCASigner, error) {
	secret, err := GetSecretString(ctx, client, secretName)
	if err != nil {
		return nil, err
	}
	return NewSSHCASignerFromPEM([]byte(secret), passphrase)
}
