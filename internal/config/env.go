package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// bridgeEnv holds raw env values for an environment-only deployment.
type bridgeEnv struct {
	Addr               string        `env:"AUTH_BRIDGE_ADDR"       envDefault:":8080"`
	BaseURL            string        `env:"AUTH_BRIDGE_BASE_URL"`
	Issuer             string        `env:"AUTH_BRIDGE_ISSUER"`
	GitHubClientID     string        `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string        `env:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURI  string        `env:"GITHUB_REDIRECT_URI"`
	GitHubAuthorizeURL string        `env:"GITHUB_AUTHORIZE_URL"`
	GitHubTokenURL     string        `env:"GITHUB_TOKEN_URL"`
	GitHubAPIBaseURL   string        `env:"GITHUB_API_BASE_URL"`
	StateSecret        string        `env:"STATE_SECRET"`
	PrivateJWTKey      string        `env:"PRIVATE_JWT_KEY"`
	PublicJWTKeys      string        `env:"PUBLIC_JWT_KEYS"`
	AllowedOrigins     []string      `env:"ALLOWED_ORIGINS"        envSeparator:","`
	DefaultExpire      time.Duration `env:"DEFAULT_JWT_EXPIRE"     envDefault:"1h"`
	UpstreamTimeout    time.Duration `env:"UPSTREAM_TIMEOUT"       envDefault:"30s"`
	LogLevel           string        `env:"LOG_LEVEL"`
	LogFormat          string        `env:"LOG_FORMAT"`
}

// LoadFromEnv builds the configuration from environment variables alone
// and validates it.
func LoadFromEnv() (Config, error) {
	var raw bridgeEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}

	publicKeys, err := splitPublicKeys(raw.PublicJWTKeys)
	if err != nil {
		return Config{}, fmt.Errorf("parsing PUBLIC_JWT_KEYS: %w", err)
	}

	config := Config{
		Addr:    raw.Addr,
		BaseURL: raw.BaseURL,
		Issuer:  raw.Issuer,
		GitHub: GitHubConfig{
			ClientID:     raw.GitHubClientID,
			ClientSecret: Secret(raw.GitHubClientSecret),
			RedirectURI:  raw.GitHubRedirectURI,
			AuthorizeURL: raw.GitHubAuthorizeURL,
			TokenURL:     raw.GitHubTokenURL,
			APIBaseURL:   raw.GitHubAPIBaseURL,
		},
		StateSecret:     Secret(raw.StateSecret),
		SigningKey:      Secret(raw.PrivateJWTKey),
		PublicKeys:      publicKeys,
		AllowedOrigins:  trimCSV(raw.AllowedOrigins),
		DefaultExpire:   raw.DefaultExpire,
		UpstreamTimeout: raw.UpstreamTimeout,
		LogLevel:        raw.LogLevel,
		LogFormat:       raw.LogFormat,
	}

	applyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// splitPublicKeys turns a JSON array of JWK objects into one string per key.
func splitPublicKeys(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(value), &items); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, string(item))
	}
	return keys, nil
}

func trimCSV(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
