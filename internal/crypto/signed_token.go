package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyKey         = errors.New("signing key is empty")
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid signature")
)

// encoding rejects non-canonical input so that two different strings can
// never decode to the same bytes.
var encoding = base64.RawURLEncoding.Strict()

// SignData returns the base64url HMAC-SHA256 of data under key
func SignData(data, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return encoding.EncodeToString(mac.Sum(nil))
}

// ValidateSignedData checks signature against data in constant time
func ValidateSignedData(data []byte, signature string, key []byte) bool {
	got, err := encoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hmac.Equal(got, mac.Sum(nil))
}

// Seal returns "<base64url(payload)>.<base64url(hmac)>".
func Seal(payload, key []byte) (string, error) {
	if len(key) == 0 {
		return "", ErrEmptyKey
	}
	return encoding.EncodeToString(payload) + "." + SignData(payload, key), nil
}

// Open verifies a token produced by Seal and returns its payload. The payload
// is only returned once the signature has been checked.
func Open(token string, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	payloadPart, signature, ok := strings.Cut(token, ".")
	if !ok || payloadPart == "" || signature == "" {
		return nil, ErrMalformedToken
	}

	payload, err := encoding.DecodeString(payloadPart)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if !ValidateSignedData(payload, signature, key) {
		return nil, ErrInvalidSignature
	}
	return payload, nil
}
