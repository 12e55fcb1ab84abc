package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const (
	DefaultAddr            = ":8080"
	DefaultExpire          = time.Hour
	DefaultUpstreamTimeout = 30 * time.Second
	DefaultIssuer          = "https://auth.example.com"
	CallbackPath           = "/github/callback"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// GitHubConfig holds the OAuth App registration. The URL overrides are only
// needed for GitHub Enterprise or tests.
type GitHubConfig struct {
	ClientID     string `json:"clientId"`
	ClientSecret Secret `json:"clientSecret"`
	RedirectURI  string `json:"redirectUri"`
	AuthorizeURL string `json:"authorizeUrl,omitempty"`
	TokenURL     string `json:"tokenUrl,omitempty"`
	APIBaseURL   string `json:"apiBaseUrl,omitempty"`
}

// Config represents the config structure with resolved values
type Config struct {
	Addr string `json:"addr"`
	// BaseURL is the public URL of the bridge. It supplies the issuer and
	// the GitHub redirect URI when those are not set explicitly.
	BaseURL string `json:"baseURL,omitempty"`
	Issuer  string `json:"issuer"`

	GitHub GitHubConfig `json:"github"`

	// StateSecret keys the HMAC over the login state.
	StateSecret Secret `json:"stateSecret"`
	// SigningKey is the private EC JWK used to sign credentials.
	SigningKey Secret `json:"signingKey"`
	// PublicKeys are previously published public JWKs. Entries are only
	// ever appended so credentials signed by retired keys still verify.
	PublicKeys []string `json:"publicKeys,omitempty"`

	AllowedOrigins []string `json:"allowedOrigins"`

	DefaultExpire   time.Duration `json:"defaultExpire"`
	UpstreamTimeout time.Duration `json:"upstreamTimeout"`

	LogLevel  string `json:"logLevel,omitempty"`
	LogFormat string `json:"logFormat,omitempty"`
}

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference resolved immediately.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	// Try plain string first
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}

	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

// ParseConfigValueSlice parses a slice that may contain references
func ParseConfigValueSlice(raw []json.RawMessage) ([]string, error) {
	values := make([]string, len(raw))
	for i, item := range raw {
		parsed, err := ParseConfigValue(item)
		if err != nil {
			return nil, fmt.Errorf("parsing item %d: %w", i, err)
		}
		values[i] = parsed
	}
	return values, nil
}
