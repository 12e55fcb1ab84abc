package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dgellow/auth-bridge/internal"
	"github.com/dgellow/auth-bridge/internal/config"
	"github.com/dgellow/auth-bridge/internal/credential"
	"github.com/dgellow/auth-bridge/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": "v0.0.1-DEV_EDITION_EXPECT_CHANGES",
		"addr":    ":8080",
		"baseURL": "https://auth.yourcompany.com",
		"issuer":  "https://auth.yourcompany.com",
		"github": map[string]any{
			"clientId":     map[string]string{"$env": "GITHUB_CLIENT_ID"},
			"clientSecret": map[string]string{"$env": "GITHUB_CLIENT_SECRET"},
			"redirectUri":  "https://auth.yourcompany.com/github/callback",
		},
		"stateSecret":     map[string]string{"$env": "STATE_SECRET"},
		"signingKey":      map[string]string{"$env": "PRIVATE_JWT_KEY"},
		"publicKeys":      []any{},
		"allowedOrigins":  []string{"https://app.yourcompany.com"},
		"defaultExpire":   "1h",
		"upstreamTimeout": "30s",
		"logLevel":        "info",
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			if err.Path != "" {
				fmt.Printf("  - %s: %s\n", err.Path, err.Message)
			} else {
				fmt.Printf("  - %s\n", err.Message)
			}
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			if warn.Path != "" {
				fmt.Printf("  - %s: %s\n", warn.Path, warn.Message)
			} else {
				fmt.Printf("  - %s\n", warn.Message)
			}
		}
	}

	fmt.Println()
	switch {
	case len(result.Errors) == 0 && len(result.Warnings) == 0:
		fmt.Println("Result: PASS")
	case len(result.Errors) == 0:
		fmt.Println("Result: FAIL (warnings present)")
	default:
		fmt.Println("Result: FAIL")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

// loadConfig reads the config file when one is given and the environment
// otherwise.
func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}

// verifyCredential checks a credential against the configured key set and
// prints its claims.
func verifyCredential(cfg config.Config, token, audience string) error {
	signingKey, err := credential.LoadSigningKey(string(cfg.SigningKey))
	if err != nil {
		return err
	}
	keys, err := credential.NewKeySet(cfg.PublicKeys, signingKey)
	if err != nil {
		return err
	}

	claims, err := credential.Verify(token, keys, audience, cfg.Issuer, time.Now())
	if err != nil {
		return fmt.Errorf("credential rejected: %w", err)
	}

	data, err := json.MarshalIndent(claims, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file (environment variables are used when omitted)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	genKey := flag.Bool("genkey", false, "print a new private P-256 signing key as JWK and exit")
	verify := flag.String("verify", "", "verify a credential against the configured keys and print its claims")
	audience := flag.String("audience", "", "expected audience for -verify")
	flag.Parse()

	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}
	if *genKey {
		jwk, err := credential.GenerateKey()
		if err != nil {
			log.LogError("Failed to generate key: %v", err)
			os.Exit(1)
		}
		fmt.Println(jwk)
		return
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	cfg, err := loadConfig(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}
	if err := log.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.LogError("Invalid logging configuration: %v", err)
		os.Exit(1)
	}

	if *verify != "" {
		if err := verifyCredential(cfg, *verify, *audience); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	log.LogInfoWithFields("main", "Starting auth-bridge", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	ctx := context.Background()
	bridge, err := internal.NewBridge(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create auth bridge: %v", err)
		os.Exit(1)
	}

	if err := bridge.Run(ctx); err != nil {
		log.LogError("Server stopped with error: %v", err)
		os.Exit(1)
	}
}
