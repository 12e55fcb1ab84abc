// Package autherr defines the error kinds produced along the login pipeline.
// Components return *Error values; only the HTTP layer turns them into
// responses.
package autherr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	// KindValidation covers malformed or missing request parameters.
	KindValidation Kind = "validation"
	// KindStateVerification covers bad signatures, expired state and
	// disallowed origins. Callers must not reveal which check failed.
	KindStateVerification Kind = "state_verification"
	// KindUpstream covers failures reported by the GitHub API.
	KindUpstream Kind = "upstream"
	// KindSigning covers local signing key problems.
	KindSigning Kind = "signing"
)

type Error struct {
	Kind    Kind
	Status  int    // upstream HTTP status for KindUpstream
	Message string // safe to show to the origin application
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func StateVerification(message string, err error) *Error {
	return &Error{Kind: KindStateVerification, Message: message, Err: err}
}

func Upstream(status int, message string, err error) *Error {
	return &Error{Kind: KindUpstream, Status: status, Message: message, Err: err}
}

func Signing(message string, err error) *Error {
	return &Error{Kind: KindSigning, Message: message, Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// HTTPStatus is the status used when the error is answered directly rather
// than redirected to the origin.
func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindStateVerification:
		return http.StatusForbidden
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
