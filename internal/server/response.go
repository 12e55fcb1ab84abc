package server

import (
	"net/url"

	"github.com/dgellow/auth-bridge/internal/authstate"
	"github.com/dgellow/auth-bridge/internal/autherr"
	"github.com/dgellow/auth-bridge/internal/urlutil"
)

// Query parameters added to redirects back to the origin application.
const (
	CredentialParam = "auth"
	ErrorParam      = "auth_error"
	TargetParam     = "target"
)

const (
	genericFailure = "Authentication failed"
	signingFailure = "Failed to issue credential"
)

// successRedirect is origin+successPath with the credential attached.
// Query parameters already on the success path are kept.
func successRedirect(state authstate.AuthState, credential string) (string, error) {
	return urlutil.WithQuery(state.SuccessURL(), url.Values{
		CredentialParam: {credential},
	})
}

// errorRedirect is origin+errorPath carrying the message and the success
// URL so the origin can offer a retry.
func errorRedirect(state authstate.AuthState, message string) (string, error) {
	return urlutil.WithQuery(state.ErrorURL(), url.Values{
		ErrorParam:  {message},
		TargetParam: {state.SuccessURL()},
	})
}

// redirectMessage picks the text passed to the origin for a failure after
// the origin was verified. Signing details never leave the bridge.
func redirectMessage(err error) string {
	e, ok := autherr.As(err)
	if !ok {
		return genericFailure
	}
	switch e.Kind {
	case autherr.KindSigning:
		return signingFailure
	case autherr.KindUpstream:
		if e.Message != "" {
			return e.Message
		}
	}
	return genericFailure
}
