package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/dgellow/auth-bridge/internal/envutil"
	"github.com/dgellow/auth-bridge/internal/urlutil"
)

// MinStateSecretLength is the minimum HMAC key length for the login state
const MinStateSecretLength = 32

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

// ValidateConfig checks a resolved configuration and rewrites the allowed
// origins into canonical form so they compare equal to state origins.
func ValidateConfig(config *Config) error {
	if config.Addr == "" {
		return fmt.Errorf("addr is required")
	}

	if err := validateAbsoluteURL("issuer", config.Issuer); err != nil {
		return err
	}

	if config.GitHub.ClientID == "" {
		return fmt.Errorf("github.clientId is required")
	}
	if config.GitHub.ClientSecret == "" {
		return fmt.Errorf("github.clientSecret is required")
	}
	if err := validateAbsoluteURL("github.redirectUri", config.GitHub.RedirectURI); err != nil {
		return err
	}
	for name, value := range map[string]string{
		"github.authorizeUrl": config.GitHub.AuthorizeURL,
		"github.tokenUrl":     config.GitHub.TokenURL,
		"github.apiBaseUrl":   config.GitHub.APIBaseURL,
	} {
		if value == "" {
			continue
		}
		if err := validateAbsoluteURL(name, value); err != nil {
			return err
		}
	}

	if len(config.StateSecret) < MinStateSecretLength {
		return fmt.Errorf("stateSecret must be at least %d characters", MinStateSecretLength)
	}
	if config.SigningKey == "" {
		return fmt.Errorf("signingKey is required")
	}

	if len(config.AllowedOrigins) == 0 {
		return fmt.Errorf("allowedOrigins must list at least one origin")
	}
	origins := make([]string, 0, len(config.AllowedOrigins))
	for i, raw := range config.AllowedOrigins {
		origin, err := urlutil.CanonicalOrigin(raw)
		if err != nil {
			return fmt.Errorf("allowedOrigins[%d]: %w", i, err)
		}
		u, _ := url.Parse(origin)
		if !envutil.AllowsScheme(u.Scheme, u.Hostname()) {
			return fmt.Errorf("allowedOrigins[%d]: %s must use https", i, raw)
		}
		origins = append(origins, origin)
	}
	config.AllowedOrigins = origins

	if config.DefaultExpire <= 0 {
		return fmt.Errorf("defaultExpire must be positive")
	}
	if config.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstreamTimeout must be positive")
	}

	return nil
}

func validateAbsoluteURL(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(value)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", name, value)
	}
	return nil
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Message: fmt.Sprintf("invalid JSON: %v", err),
		})
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "version",
			Message: "version field is required. Hint: Add \"version\": \"v0.0.1-DEV_EDITION\"",
		})
	} else if !strings.HasPrefix(version, "v0.0.1-DEV_EDITION") {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "version",
			Message: fmt.Sprintf("unsupported version '%s' - use 'v0.0.1-DEV_EDITION' or 'v0.0.1-DEV_EDITION-<variant>'", version),
		})
	}

	for _, name := range secretFields {
		value, exists := rawConfig[name]
		if !exists {
			result.Errors = append(result.Errors, ValidationError{
				Path:    name,
				Message: fmt.Sprintf("%s is required", name),
			})
			continue
		}
		if verr := validateEnvVarReference(value, name, name); verr != nil {
			result.Errors = append(result.Errors, *verr)
		}
	}

	validateGitHubStructure(rawConfig, result)
	validateOriginsStructure(rawConfig, result)
	validateDurations(rawConfig, result)

	return result, nil
}

func validateGitHubStructure(rawConfig map[string]any, result *ValidationResult) {
	github, ok := rawConfig["github"].(map[string]any)
	if !ok {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "github",
			Message: "github section is required with clientId, clientSecret and redirectUri",
		})
		return
	}

	if _, ok := github["clientId"]; !ok {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "github.clientId",
			Message: "clientId is required",
		})
	}

	secret, ok := github["clientSecret"]
	if !ok {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "github.clientSecret",
			Message: "clientSecret is required",
		})
	} else if verr := validateEnvVarReference(secret, "clientSecret", "github.clientSecret"); verr != nil {
		result.Errors = append(result.Errors, *verr)
	}

	if _, ok := github["redirectUri"]; !ok {
		if _, hasBase := rawConfig["baseURL"]; !hasBase {
			result.Errors = append(result.Errors, ValidationError{
				Path:    "github.redirectUri",
				Message: "redirectUri is required unless baseURL is set",
			})
		}
	}
}

func validateOriginsStructure(rawConfig map[string]any, result *ValidationResult) {
	origins, ok := rawConfig["allowedOrigins"].([]any)
	if !ok || len(origins) == 0 {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "allowedOrigins",
			Message: "allowedOrigins must be a non-empty array of origins",
		})
		return
	}

	for i, item := range origins {
		path := fmt.Sprintf("allowedOrigins[%d]", i)
		s, isString := item.(string)
		if !isString {
			// env references are resolved at load time
			continue
		}
		origin, err := urlutil.CanonicalOrigin(s)
		if err != nil {
			result.Errors = append(result.Errors, ValidationError{Path: path, Message: err.Error()})
			continue
		}
		if strings.HasPrefix(origin, "http://") {
			result.Warnings = append(result.Warnings, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("'%s' uses http and is only accepted for localhost in development", s),
			})
		}
	}
}

func validateDurations(rawConfig map[string]any, result *ValidationResult) {
	for _, name := range []string{"defaultExpire", "upstreamTimeout"} {
		value, exists := rawConfig[name]
		if !exists {
			continue
		}
		s, ok := value.(string)
		if !ok {
			result.Errors = append(result.Errors, ValidationError{
				Path:    name,
				Message: fmt.Sprintf("%s must be a duration string like \"1h\" or \"30s\"", name),
			})
			continue
		}
		if err := parsePositiveDuration(s); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Path:    name,
				Message: fmt.Sprintf("invalid %s: %v", name, err),
			})
		}
	}
}

// validateEnvVarReference checks that a secret is given as {"$env": "VAR"}
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", v, matches[1]),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax warns about ${VAR} style references anywhere in the file
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			result.Warnings = append(result.Warnings, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Bash-style variables are not expanded", matches[0], matches[1]),
			})
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, val := range v {
			checkBashStyleSyntax(val, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
