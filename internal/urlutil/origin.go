package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// Origin renders the scheme://host[:port] of u in canonical form: lowercase
// scheme and host, default ports dropped, IPv6 hosts bracketed.
func Origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return scheme + "://" + host + ":" + port
	}
	return scheme + "://" + host
}

// CanonicalOrigin parses raw as a bare origin and returns its canonical
// form. Paths other than "/", queries, fragments and userinfo are rejected.
func CanonicalOrigin(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return "", fmt.Errorf("origin %q must be an absolute URL", raw)
	}
	if u.User != nil {
		return "", fmt.Errorf("origin %q must not contain credentials", raw)
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" || u.ForceQuery {
		return "", fmt.Errorf("origin %q must not contain a path, query or fragment", raw)
	}
	return Origin(u), nil
}
