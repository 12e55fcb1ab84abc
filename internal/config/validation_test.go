package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validResolvedConfig() Config {
	return Config{
		Addr:   ":8080",
		Issuer: "https://auth.example.com",
		GitHub: GitHubConfig{
			ClientID:     "client-123",
			ClientSecret: "gh-secret",
			RedirectURI:  "https://auth.example.com/github/callback",
		},
		StateSecret:     Secret(strings.Repeat("s", MinStateSecretLength)),
		SigningKey:      Secret(testSigningKey),
		AllowedOrigins:  []string{"https://app.example.com"},
		DefaultExpire:   DefaultExpire,
		UpstreamTimeout: DefaultUpstreamTimeout,
	}
}

func TestValidateConfig(t *testing.T) {
	cfg := validResolvedConfig()
	require.NoError(t, ValidateConfig(&cfg))

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing addr", func(c *Config) { c.Addr = "" }, "addr is required"},
		{"relative issuer", func(c *Config) { c.Issuer = "/auth" }, "issuer must be an absolute URL"},
		{"missing client id", func(c *Config) { c.GitHub.ClientID = "" }, "github.clientId is required"},
		{"missing client secret", func(c *Config) { c.GitHub.ClientSecret = "" }, "github.clientSecret is required"},
		{"missing redirect", func(c *Config) { c.GitHub.RedirectURI = "" }, "github.redirectUri is required"},
		{"bad token url", func(c *Config) { c.GitHub.TokenURL = "token" }, "github.tokenUrl must be an absolute URL"},
		{"short state secret", func(c *Config) { c.StateSecret = "short" }, "stateSecret must be at least"},
		{"missing signing key", func(c *Config) { c.SigningKey = "" }, "signingKey is required"},
		{"no origins", func(c *Config) { c.AllowedOrigins = nil }, "allowedOrigins must list"},
		{"origin with path", func(c *Config) { c.AllowedOrigins = []string{"https://app.example.com/app"} }, "allowedOrigins[0]"},
		{"zero expire", func(c *Config) { c.DefaultExpire = 0 }, "defaultExpire must be positive"},
		{"negative timeout", func(c *Config) { c.UpstreamTimeout = -1 }, "upstreamTimeout must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validResolvedConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(&cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateConfig_CanonicalizesOrigins(t *testing.T) {
	cfg := validResolvedConfig()
	cfg.AllowedOrigins = []string{"HTTPS://App.Example.com:443/", "https://other.example.com:8443"}
	require.NoError(t, ValidateConfig(&cfg))
	assert.Equal(t, []string{"https://app.example.com", "https://other.example.com:8443"}, cfg.AllowedOrigins)
}

func TestValidateFile(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		result, err := ValidateFile(writeConfig(t, validConfig))
		require.NoError(t, err)
		assert.True(t, result.IsValid(), "errors: %v", result.Errors)
		assert.Empty(t, result.Warnings)
	})

	t.Run("invalid json", func(t *testing.T) {
		result, err := ValidateFile(writeConfig(t, `{"version":`))
		require.NoError(t, err)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0].Message, "invalid JSON")
	})

	t.Run("inline secrets and missing sections", func(t *testing.T) {
		result, err := ValidateFile(writeConfig(t, `{
			"version": "v2",
			"stateSecret": "plain",
			"signingKey": "${SIGNING_KEY}",
			"allowedOrigins": ["https://app.example.com/path", "http://localhost:3000"],
			"defaultExpire": "-1h"
		}`))
		require.NoError(t, err)
		assert.False(t, result.IsValid())

		paths := map[string]string{}
		for _, e := range result.Errors {
			paths[e.Path] = e.Message
		}
		assert.Contains(t, paths["version"], "unsupported version")
		assert.Contains(t, paths["stateSecret"], "must use environment variable reference")
		assert.Contains(t, paths["signingKey"], "bash-style syntax")
		assert.Contains(t, paths["github"], "github section is required")
		assert.Contains(t, paths["allowedOrigins[0]"], "must not contain a path")
		assert.Contains(t, paths["defaultExpire"], "invalid defaultExpire")

		var warned []string
		for _, w := range result.Warnings {
			warned = append(warned, w.Path)
		}
		assert.Contains(t, warned, "signingKey")
		assert.Contains(t, warned, "allowedOrigins[1]")
	})

	t.Run("redirect uri required without base url", func(t *testing.T) {
		result, err := ValidateFile(writeConfig(t, `{
			"version": "v0.0.1-DEV_EDITION",
			"github": {"clientId": "id", "clientSecret": {"$env": "X"}},
			"stateSecret": {"$env": "Y"},
			"signingKey": {"$env": "Z"},
			"allowedOrigins": ["https://app.example.com"]
		}`))
		require.NoError(t, err)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "github.redirectUri", result.Errors[0].Path)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ValidateFile("/nonexistent/config.json")
		assert.Error(t, err)
	})
}
