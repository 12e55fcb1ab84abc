package credential

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/dgellow/auth-bridge/internal/autherr"
	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGenerate(t *testing.T) *SigningKey {
	t.Helper()
	jwk, err := GenerateKey()
	require.NoError(t, err)
	key, err := LoadSigningKey(jwk)
	require.NoError(t, err)
	return key
}

func publicJSON(t *testing.T, key *SigningKey) string {
	t.Helper()
	data, err := json.Marshal(key.PublicJWK())
	require.NoError(t, err)
	return string(data)
}

func TestGenerateAndLoadSigningKey(t *testing.T) {
	jwkJSON, err := GenerateKey()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(jwkJSON), &raw))
	assert.Equal(t, "EC", raw["kty"])
	assert.Equal(t, "P-256", raw["crv"])
	assert.Equal(t, "ES256", raw["alg"])
	assert.NotEmpty(t, raw["d"])

	key, err := LoadSigningKey(jwkJSON)
	require.NoError(t, err)
	assert.Equal(t, raw["kid"], key.KID)

	want, err := thumbprint(&key.PrivateKey.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, want, key.KID)
}

func TestLoadSigningKey_ThumbprintKID(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	data, err := json.Marshal(jose.JSONWebKey{Key: priv})
	require.NoError(t, err)

	key, err := LoadSigningKey(string(data))
	require.NoError(t, err)

	want, err := thumbprint(&priv.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, want, key.KID)
}

func TestLoadSigningKey_Rejects(t *testing.T) {
	pub := mustGenerate(t)
	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	p384JSON, err := json.Marshal(jose.JSONWebKey{Key: p384})
	require.NoError(t, err)

	tests := map[string]string{
		"not json":      "not-json",
		"empty":         "",
		"public only":   publicJSON(t, pub),
		"wrong curve":   string(p384JSON),
		"symmetric key": `{"kty":"oct","k":"c2VjcmV0"}`,
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadSigningKey(input)
			require.Error(t, err)
			assert.True(t, autherr.IsKind(err, autherr.KindSigning))
		})
	}
}

func TestNewKeySet(t *testing.T) {
	retired := mustGenerate(t)
	active := mustGenerate(t)

	ks, err := NewKeySet([]string{publicJSON(t, retired)}, active)
	require.NoError(t, err)

	jwks := ks.JWKS()
	require.Len(t, jwks.Keys, 2)
	assert.Equal(t, retired.KID, jwks.Keys[0].KeyID)
	assert.Equal(t, active.KID, jwks.Keys[1].KeyID)
	for _, k := range jwks.Keys {
		assert.True(t, k.IsPublic())
		assert.Equal(t, "ES256", k.Algorithm)
		assert.Equal(t, "sig", k.Use)
	}

	data, err := json.Marshal(jwks)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"d"`)

	pub, ok := ks.Key(retired.KID)
	require.True(t, ok)
	assert.True(t, pub.Equal(&retired.PrivateKey.PublicKey))

	_, ok = ks.Key("unknown")
	assert.False(t, ok)
}

func TestNewKeySet_ActiveAlreadyPublished(t *testing.T) {
	active := mustGenerate(t)

	ks, err := NewKeySet([]string{publicJSON(t, active)}, active)
	require.NoError(t, err)
	assert.Len(t, ks.JWKS().Keys, 1)
}

func TestNewKeySet_StripsPrivateMaterial(t *testing.T) {
	jwkJSON, err := GenerateKey()
	require.NoError(t, err)

	ks, err := NewKeySet([]string{jwkJSON}, nil)
	require.NoError(t, err)
	require.Len(t, ks.JWKS().Keys, 1)
	assert.True(t, ks.JWKS().Keys[0].IsPublic())
}

func TestNewKeySet_Rejects(t *testing.T) {
	a := mustGenerate(t)

	_, err := NewKeySet([]string{"not-json"}, nil)
	assert.Error(t, err)

	_, err = NewKeySet([]string{`{"kty":"oct","k":"c2VjcmV0"}`}, nil)
	assert.Error(t, err)

	_, err = NewKeySet([]string{publicJSON(t, a), publicJSON(t, a)}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate kid")
}
