package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type ClientConfig struct {
	AuthDomain           string
	ClientID             string
	Endpoint             string
	Scope                string
	KeyOutputPath        string
	KeyName              string
	AuthenticationMethod string // "device_code" or "pkce"
	// CheckAccess asks the service to confirm the new certificate after saving it.
	CheckAccess bool
}

func configDir() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "sshtoken")
}

func createConfigDir() error {
	dir := configDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	return nil
}

func loadConfig(file string) ClientConfig {

	// if the config file exists in the config directory, load it
	if _, err := os.Stat(file); err == nil {
		godotenv.Load(file)
	}

	return ClientConfig{
		AuthDomain:           getEnv("AUTH_DOMAIN", ""),
		ClientID:             getEnv("CLIENT_ID", ""),
		Endpoint:             getEnv("SSHTOKEN_ENDPOINT", ""),
		Scope:                getEnv("SCOPE", "openid email profile"),
		KeyOutputPath:        getEnv("KEY_OUTPUT_PATH", filepath.Join(os.Getenv("HOME"), ".ssh")),
		KeyName:              getEnv("KEY_NAME", "sshtoken"),
		AuthenticationMethod: getAuthenticationMethod(),
	}
}

// Helper function to get environment variables with a default value
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getAuthenticationMethod() string {
	method := getEnv("AUTHENTICATION_METHOD", "pkce")

	if method != "device_code" && method != "pkce" {
		fmt.Printf("Invalid AUTHENTICATION_METHOD: %s. Defaulting to 'pkce'.\n", method)
		method = "pkce"
	}

	return method
}
