package credential

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/dgellow/auth-bridge/internal/autherr"
	"github.com/go-jose/go-jose/v4"
)

// Algorithm is the JWS algorithm of every credential the bridge signs.
const Algorithm = "ES256"

// SigningKey is the active private key. It is loaded once at startup and
// never modified.
type SigningKey struct {
	KID        string
	PrivateKey *ecdsa.PrivateKey
}

// PublicJWK returns the public half of the key as a JWK.
func (k *SigningKey) PublicJWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       &k.PrivateKey.PublicKey,
		KeyID:     k.KID,
		Algorithm: Algorithm,
		Use:       "sig",
	}
}

// LoadSigningKey parses a private EC P-256 key in JWK form. When the JWK has
// no kid, the RFC 7638 thumbprint is used.
func LoadSigningKey(jwkJSON string) (*SigningKey, error) {
	var jwk jose.JSONWebKey
	if err := json.Unmarshal([]byte(strings.TrimSpace(jwkJSON)), &jwk); err != nil {
		return nil, autherr.Signing("Invalid signing key", fmt.Errorf("parsing JWK: %w", err))
	}

	priv, ok := jwk.Key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, autherr.Signing("Invalid signing key", fmt.Errorf("expected EC private key, got %T", jwk.Key))
	}
	if priv.Curve != elliptic.P256() {
		return nil, autherr.Signing("Invalid signing key", fmt.Errorf("expected curve P-256, got %s", priv.Curve.Params().Name))
	}
	if jwk.Algorithm != "" && jwk.Algorithm != Algorithm {
		return nil, autherr.Signing("Invalid signing key", fmt.Errorf("key algorithm %s is not %s", jwk.Algorithm, Algorithm))
	}

	kid := jwk.KeyID
	if kid == "" {
		var err error
		kid, err = thumbprint(&priv.PublicKey)
		if err != nil {
			return nil, autherr.Signing("Invalid signing key", fmt.Errorf("computing thumbprint: %w", err))
		}
	}

	return &SigningKey{KID: kid, PrivateKey: priv}, nil
}

// GenerateKey returns a fresh private P-256 key as JWK JSON with a
// thumbprint kid.
func GenerateKey() (string, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generating ECDSA key: %w", err)
	}

	kid, err := thumbprint(&priv.PublicKey)
	if err != nil {
		return "", fmt.Errorf("computing thumbprint: %w", err)
	}

	data, err := json.Marshal(jose.JSONWebKey{
		Key:       priv,
		KeyID:     kid,
		Algorithm: Algorithm,
		Use:       "sig",
	})
	if err != nil {
		return "", fmt.Errorf("marshaling JWK: %w", err)
	}
	return string(data), nil
}

func thumbprint(key *ecdsa.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: key}
	kid, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(kid), nil
}

// KeySet is the published set of verification keys. Keys are never
// removed, so credentials signed by a retired key keep verifying until they
// expire.
type KeySet struct {
	keys []jose.JSONWebKey
}

// NewKeySet builds the key set from previously published public JWKs and
// the active signer. The signer's public key is added unless a key with the
// same kid is already published. Private material is stripped.
func NewKeySet(published []string, signer *SigningKey) (*KeySet, error) {
	ks := &KeySet{}

	for i, raw := range published {
		var jwk jose.JSONWebKey
		if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &jwk); err != nil {
			return nil, fmt.Errorf("parsing public key %d: %w", i, err)
		}
		pub := jwk.Public()
		if !pub.Valid() {
			return nil, fmt.Errorf("public key %d is not a valid key", i)
		}
		if _, ok := pub.Key.(*ecdsa.PublicKey); !ok {
			return nil, fmt.Errorf("public key %d: expected EC key, got %T", i, pub.Key)
		}
		if pub.KeyID == "" {
			kid, err := thumbprint(pub.Key.(*ecdsa.PublicKey))
			if err != nil {
				return nil, fmt.Errorf("public key %d: computing thumbprint: %w", i, err)
			}
			pub.KeyID = kid
		}
		if _, exists := ks.lookup(pub.KeyID); exists {
			return nil, fmt.Errorf("public key %d: duplicate kid %q", i, pub.KeyID)
		}
		if pub.Algorithm == "" {
			pub.Algorithm = Algorithm
		}
		if pub.Use == "" {
			pub.Use = "sig"
		}
		ks.keys = append(ks.keys, pub)
	}

	if signer != nil {
		if _, exists := ks.lookup(signer.KID); !exists {
			ks.keys = append(ks.keys, signer.PublicJWK())
		}
	}

	return ks, nil
}

// JWKS returns the key set in its published form.
func (ks *KeySet) JWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{Keys: slices.Clone(ks.keys)}
}

// Key returns the public key published under kid.
func (ks *KeySet) Key(kid string) (*ecdsa.PublicKey, bool) {
	jwk, ok := ks.lookup(kid)
	if !ok {
		return nil, false
	}
	pub, ok := jwk.Key.(*ecdsa.PublicKey)
	return pub, ok
}

func (ks *KeySet) lookup(kid string) (jose.JSONWebKey, bool) {
	for _, k := range ks.keys {
		if k.KeyID == kid {
			return k, true
		}
	}
	return jose.JSONWebKey{}, false
}
