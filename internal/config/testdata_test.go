package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSigningKey = `{"kty":"EC","crv":"P-256","x":"x","y":"y","d":"d"}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("TEST_GITHUB_CLIENT_SECRET", "gh-secret")
	t.Setenv("TEST_STATE_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("TEST_SIGNING_KEY", testSigningKey)
}

const validConfig = `{
  "version": "v0.0.1-DEV_EDITION",
  "addr": ":9090",
  "baseURL": "https://auth.example.com/",
  "github": {
    "clientId": "client-123",
    "clientSecret": {"$env": "TEST_GITHUB_CLIENT_SECRET"}
  },
  "stateSecret": {"$env": "TEST_STATE_SECRET"},
  "signingKey": {"$env": "TEST_SIGNING_KEY"},
  "publicKeys": [{"kty":"EC","crv":"P-256","x":"old-x","y":"old-y","kid":"old"}],
  "allowedOrigins": ["https://App.Example.com:443"],
  "defaultExpire": "2h",
  "logLevel": "debug"
}`
