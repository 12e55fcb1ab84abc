package authstate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dgellow/auth-bridge/internal/crypto"
)

// Encode serializes s and seals it with an HMAC under secret. The result is
// "<base64url(json)>.<base64url(hmac)>" and is deterministic for identical
// input.
func Encode(s AuthState, secret []byte) (string, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}

	signed, err := crypto.Seal(payload, secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

// Decode verifies signed and returns the state it carries. Any failure,
// whether a bad signature, bad encoding or bad JSON, yields the zero state
// and an error wrapping ErrInvalidState.
func Decode(signed string, secret []byte) (AuthState, error) {
	payload, err := crypto.Open(signed, secret)
	if err != nil {
		return AuthState{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	var s AuthState
	if err := dec.Decode(&s); err != nil {
		return AuthState{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if dec.More() {
		return AuthState{}, fmt.Errorf("%w: trailing data", ErrInvalidState)
	}
	return s, nil
}
