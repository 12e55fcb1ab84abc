package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dgellow/auth-bridge/internal/urlutil"
)

// secretFields must be given as {"$env": "VAR"} references in config files
var secretFields = []string{"stateSecret", "signingKey"}

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, "v0.0.1-DEV_EDITION") {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig rejects inline secrets before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	check := func(name string, value any, exists bool) error {
		if !exists {
			return nil
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s must use environment variable reference for security", name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", name)
			}
		}
		return nil
	}

	for _, name := range secretFields {
		value, exists := rawConfig[name]
		if err := check(name, value, exists); err != nil {
			return err
		}
	}

	if github, ok := rawConfig["github"].(map[string]any); ok {
		value, exists := github["clientSecret"]
		if err := check("github.clientSecret", value, exists); err != nil {
			return err
		}
	}
	return nil
}

func applyDefaults(config *Config) {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Issuer == "" {
		config.Issuer = config.BaseURL
	}
	if config.Issuer == "" {
		config.Issuer = DefaultIssuer
	}
	if config.GitHub.RedirectURI == "" && config.BaseURL != "" {
		if redirect, err := urlutil.JoinPath(config.BaseURL, CallbackPath); err == nil {
			config.GitHub.RedirectURI = redirect
		}
	}
	if config.DefaultExpire == 0 {
		config.DefaultExpire = DefaultExpire
	}
	if config.UpstreamTimeout == 0 {
		config.UpstreamTimeout = DefaultUpstreamTimeout
	}
}
