package main

import (
	"testing"
	"time"

	"github.com/sebastian-mora/sshtoken/internal/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name      string
		setupEnv  map[string]string
		expectErr string
		expectCfg *lambdaConfig
	}{
		{
			name: "kms config",
			setupEnv: map[string]string{
				envKMSKeyID:           "test-key-id",
				envJMESPathExpression: "email",
				envCertIdentity:       "COESRA",
				envCertDomain:         "coesra.com.au",
			},
			expectCfg: &lambdaConfig{
				KmsKeyId:           "test-key-id",
				JMESPathExpression: "email",
				Identity:           "COESRA",
				Domain:             "coesra.com.au",
				Validity:           handler.DefaultValidity,
				VerifyCacheTTL:     defaultVerifyCacheTTL,
			},
		},
		{
			name: "secrets manager config",
			setupEnv: map[string]string{
				envCASecretName:       "ssh-ca",
				envCAPassphrase:       "hunter2",
				envJMESPathExpression: "sub",
				envCertIdentity:       "COESRA",
				envCertValidity:       "+1d",
				envKeyComment:         "COESRA",
				envVerifyCacheTTL:     "0s",
			},
			expectCfg: &lambdaConfig{
				CASecretName:       "ssh-ca",
				CAPassphrase:       "hunter2",
				JMESPathExpression: "sub",
				Identity:           "COESRA",
				Validity:           "+1d",
				Comment:            "COESRA",
				VerifyCacheTTL:     0,
			},
		},
		{
			name: "missing CA",
			setupEnv: map[string]string{
				envJMESPathExpression: "email",
				envCertIdentity:       "COESRA",
			},
			expectErr: "missing required env var: KMS_KEY_ID or CA_SECRET_NAME",
		},
		{
			name: "both CAs",
			setupEnv: map[string]string{
				envKMSKeyID:           "k",
				envCASecretName:       "s",
				envJMESPathExpression: "email",
				envCertIdentity:       "COESRA",
			},
			expectErr: "only one of KMS_KEY_ID and CA_SECRET_NAME may be set",
		},
		{
			name: "missing expression",
			setupEnv: map[string]string{
				envKMSKeyID:     "k",
				envCertIdentity: "COESRA",
			},
			expectErr: "missing required env var: JMESPATH_EXPRESSION",
		},
		{
			name: "missing identity",
			setupEnv: map[string]string{
				envKMSKeyID:           "k",
				envJMESPathExpression: "email",
			},
			expectErr: "missing required env var: CERT_IDENTITY",
		},
		{
			name: "invalid validity",
			setupEnv: map[string]string{
				envKMSKeyID:           "k",
				envJMESPathExpression: "email",
				envCertIdentity:       "COESRA",
				envCertValidity:       "+12 weeks",
			},
			expectErr: "invalid CERT_VALIDITY",
		},
		{
			name: "invalid cache ttl",
			setupEnv: map[string]string{
				envKMSKeyID:           "k",
				envJMESPathExpression: "email",
				envCertIdentity:       "COESRA",
				envVerifyCacheTTL:     "soon",
			},
			expectErr: "invalid VERIFY_CACHE_TTL",
		},
	}

	allVars := []string{
		envKMSKeyID, envCASecretName, envCAPassphrase, envJMESPathExpression,
		envCertIdentity, envCertDomain, envCertValidity, envKeyComment, envVerifyCacheTTL,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range allVars {
				t.Setenv(k, "")
			}
			for k, v := range tt.setupEnv {
				t.Setenv(k, v)
			}

			cfg, err := loadConfig()
			if tt.expectErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectCfg, cfg)
		})
	}
}

func TestDefaultVerifyCacheTTL(t *testing.T) {
	assert.Equal(t, 5*time.Minute, defaultVerifyCacheTTL)
}
