package envutil

import (
	"os"
	"strings"
)

// IsDev checks if we're running in development mode
// where security requirements can be relaxed for testing
func IsDev() bool {
	env := strings.ToLower(os.Getenv("AUTH_BRIDGE_ENV"))
	return env == "development" || env == "dev"
}

// IsLoopbackHost reports whether host (without port) names the local machine.
func IsLoopbackHost(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// AllowsScheme reports whether an origin with the given scheme and host may
// receive credentials. Plain http is only accepted for loopback hosts in
// development mode.
func AllowsScheme(scheme, host string) bool {
	switch strings.ToLower(scheme) {
	case "https":
		return true
	case "http":
		return IsDev() && IsLoopbackHost(host)
	}
	return false
}
