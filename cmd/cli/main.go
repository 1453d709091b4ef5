package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sebastian-mora/sshtoken/client"
	"github.com/sebastian-mora/sshtoken/internal/keymaterial"
)

var (
	verboseFlag       bool
	authDomainFlag    string
	clientIDFlag      string
	endpointFlag      string
	configPathFlag    string
	keyOutputPathFlag string
	keyNameFlag       string
	deviceCodeFlag    bool
	checkFlag         bool
)

func initFlags() {
	flag.StringVar(&authDomainFlag, "auth-url", "", "URL to the authentication server")
	flag.StringVar(&clientIDFlag, "client-id", "", "Client ID for the authentication server")
	flag.StringVar(&endpointFlag, "endpoint", "", "Token service endpoint")
	flag.BoolVar(&verboseFlag, "verbose", false, "Enable verbose output")
	flag.StringVar(&configPathFlag, "config", filepath.Join(configDir(), "config"), "Path to the configuration file")
	flag.StringVar(&keyOutputPathFlag, "key-output-path", filepath.Join(os.Getenv("HOME"), ".ssh"), "Path to save the generated keys")
	flag.StringVar(&keyNameFlag, "key-name", "", "File name of the saved private key")
	flag.BoolVar(&deviceCodeFlag, "device-code", false, "Use device code flow for authentication")
	flag.BoolVar(&checkFlag, "check", false, "Ask the service to confirm the new certificate grants access")
	flag.Parse()
}

func loadClientConfig() (ClientConfig, error) {
	cfg := loadConfig(configPathFlag)

	// Override with CLI flags if provided
	if authDomainFlag != "" {
		cfg.AuthDomain = authDomainFlag
	}
	if clientIDFlag != "" {
		cfg.ClientID = clientIDFlag
	}
	if endpointFlag != "" {
		cfg.Endpoint = endpointFlag
	}
	if keyOutputPathFlag != "" {
		cfg.KeyOutputPath = keyOutputPathFlag
	}
	if keyNameFlag != "" {
		cfg.KeyName = keyNameFlag
	}

	if cfg.AuthDomain == "" || cfg.ClientID == "" || cfg.Endpoint == "" {
		return cfg, fmt.Errorf("missing required config values (auth-url, client-id, endpoint)")
	}

	if deviceCodeFlag {
		cfg.AuthenticationMethod = "device_code"
	}
	cfg.CheckAccess = checkFlag

	return cfg, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\n[ERROR] ")
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	fmt.Fprintf(os.Stderr, "\n")
	os.Exit(1)
}

func getAuthenticator(cfg ClientConfig) Authenticator {
	if cfg.AuthenticationMethod == "device_code" {
		return &DeviceCodeAuthenticator{}
	}
	return &PKCEAuthenticator{}
}

func run(cfg ClientConfig) error {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("SSH Token")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cache := TokenCache{Path: filepath.Join(filepath.Dir(configPathFlag), "token.json")}
	token, err := cache.Load()
	if err != nil {
		fmt.Printf("Ignoring cached token: %v\n", err)
	}

	if token == nil || !token.Valid() {
		token, err = getAuthenticator(cfg).Authenticate(ctx, cfg)
		if err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}

		// Save the token for future use
		if err := cache.Save(token); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}
	}

	if claims, err := ParseAccessToken(token.AccessToken); err == nil {
		fmt.Printf("User authenticated: %s\n", claims.DisplayName())
		fmt.Println()
	}

	tokenClient := client.NewSSHTokenClient(cfg.Endpoint, token.AccessToken)

	fmt.Println("Requesting a signed key pair...")
	bundle, err := tokenClient.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	fmt.Println("Certificate issued successfully")

	basePath := filepath.Join(cfg.KeyOutputPath, keyName(cfg))
	kp := &keymaterial.KeyPair{
		PrivateKey:  []byte(bundle.PrivateKey),
		PublicKey:   []byte(bundle.PublicKey),
		Certificate: []byte(bundle.CertKey),
	}
	if err := kp.Save(basePath); err != nil {
		return fmt.Errorf("failed to save key pair: %w", err)
	}

	privPath, pubPath, certPath := keymaterial.Paths(basePath)
	fmt.Println("SSH keys saved to:")
	fmt.Printf("  %s\n", pubPath)
	fmt.Printf("  %s\n", privPath)
	fmt.Printf("  %s\n", certPath)
	fmt.Println()

	if cfg.CheckAccess {
		if err := checkAccess(ctx, tokenClient, bundle); err != nil {
			return err
		}
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Done! You can now use your SSH certificate to authenticate.")
	fmt.Println(strings.Repeat("=", 60))

	return nil
}

func checkAccess(ctx context.Context, c client.TokenClient, bundle *client.TokenBundle) error {
	fmt.Println("Checking certificate with the token service...")
	v, err := c.ValidateToken(ctx, bundle.CertKey, bundle.PublicKey)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if !v.Authorized() {
		return fmt.Errorf("certificate refused: %s (%s)", v.Message, v.Reason)
	}
	fmt.Println("Certificate accepted")
	fmt.Println()
	return nil
}

func keyName(cfg ClientConfig) string {
	if cfg.KeyName == "" {
		return "sshtoken"
	}
	return cfg.KeyName
}

func main() {
	initFlags()

	if err := createConfigDir(); err != nil {
		fatalf("failed to create config directory: %v", err)
	}

	cfg, err := loadClientConfig()
	if err != nil {
		fatalf("%v", err)
	}

	if verboseFlag {
		fmt.Printf("Using configuration: %+v\n", cfg)
	}

	if err := run(cfg); err != nil {
		fatalf("%v", err)
	}
}
