package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// UnmarshalJSON implements custom unmarshaling for GitHubConfig
func (g *GitHubConfig) UnmarshalJSON(data []byte) error {
	type rawGitHub struct {
		ClientID     json.RawMessage `json:"clientId"`
		ClientSecret json.RawMessage `json:"clientSecret"`
		RedirectURI  json.RawMessage `json:"redirectUri"`
		AuthorizeURL string          `json:"authorizeUrl,omitempty"`
		TokenURL     string          `json:"tokenUrl,omitempty"`
		APIBaseURL   string          `json:"apiBaseUrl,omitempty"`
	}

	var raw rawGitHub
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	g.AuthorizeURL = raw.AuthorizeURL
	g.TokenURL = raw.TokenURL
	g.APIBaseURL = raw.APIBaseURL

	if raw.ClientID != nil {
		parsed, err := ParseConfigValue(raw.ClientID)
		if err != nil {
			return fmt.Errorf("parsing clientId: %w", err)
		}
		g.ClientID = parsed
	}

	if raw.ClientSecret != nil {
		parsed, err := ParseConfigValue(raw.ClientSecret)
		if err != nil {
			return fmt.Errorf("parsing clientSecret: %w", err)
		}
		g.ClientSecret = Secret(parsed)
	}

	if raw.RedirectURI != nil {
		parsed, err := ParseConfigValue(raw.RedirectURI)
		if err != nil {
			return fmt.Errorf("parsing redirectUri: %w", err)
		}
		g.RedirectURI = parsed
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for Config
func (c *Config) UnmarshalJSON(data []byte) error {
	type rawConfig struct {
		Addr            string            `json:"addr"`
		BaseURL         json.RawMessage   `json:"baseURL"`
		Issuer          json.RawMessage   `json:"issuer"`
		GitHub          GitHubConfig      `json:"github"`
		StateSecret     json.RawMessage   `json:"stateSecret"`
		SigningKey      json.RawMessage   `json:"signingKey"`
		PublicKeys      []json.RawMessage `json:"publicKeys"`
		AllowedOrigins  []json.RawMessage `json:"allowedOrigins"`
		DefaultExpire   string            `json:"defaultExpire"`
		UpstreamTimeout string            `json:"upstreamTimeout"`
		LogLevel        string            `json:"logLevel"`
		LogFormat       string            `json:"logFormat"`
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Addr = raw.Addr
	c.GitHub = raw.GitHub
	c.LogLevel = raw.LogLevel
	c.LogFormat = raw.LogFormat

	if raw.BaseURL != nil {
		parsed, err := ParseConfigValue(raw.BaseURL)
		if err != nil {
			return fmt.Errorf("parsing baseURL: %w", err)
		}
		c.BaseURL = parsed
	}

	if raw.Issuer != nil {
		parsed, err := ParseConfigValue(raw.Issuer)
		if err != nil {
			return fmt.Errorf("parsing issuer: %w", err)
		}
		c.Issuer = parsed
	}

	if raw.StateSecret != nil {
		parsed, err := ParseConfigValue(raw.StateSecret)
		if err != nil {
			return fmt.Errorf("parsing stateSecret: %w", err)
		}
		c.StateSecret = Secret(parsed)
	}

	if raw.SigningKey != nil {
		parsed, err := ParseConfigValue(raw.SigningKey)
		if err != nil {
			return fmt.Errorf("parsing signingKey: %w", err)
		}
		c.SigningKey = Secret(parsed)
	}

	// Published keys may be inline JWK objects or references to a JWK string
	for i, item := range raw.PublicKeys {
		var obj map[string]any
		if err := json.Unmarshal(item, &obj); err == nil {
			if _, isRef := obj["$env"]; !isRef {
				c.PublicKeys = append(c.PublicKeys, string(item))
				continue
			}
		}
		parsed, err := ParseConfigValue(item)
		if err != nil {
			return fmt.Errorf("parsing publicKeys[%d]: %w", i, err)
		}
		c.PublicKeys = append(c.PublicKeys, parsed)
	}

	if len(raw.AllowedOrigins) > 0 {
		origins, err := ParseConfigValueSlice(raw.AllowedOrigins)
		if err != nil {
			return fmt.Errorf("parsing allowedOrigins: %w", err)
		}
		c.AllowedOrigins = origins
	}

	if raw.DefaultExpire != "" {
		d, err := time.ParseDuration(raw.DefaultExpire)
		if err != nil {
			return fmt.Errorf("parsing defaultExpire: %w", err)
		}
		c.DefaultExpire = d
	}

	if raw.UpstreamTimeout != "" {
		d, err := time.ParseDuration(raw.UpstreamTimeout)
		if err != nil {
			return fmt.Errorf("parsing upstreamTimeout: %w", err)
		}
		c.UpstreamTimeout = d
	}

	return nil
}

func parsePositiveDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	return nil
}
