package jwtx

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJWK_PEM_RSA(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwk := NewRSAJWK("test-key-id", "sig", "RS256", &privateKey.PublicKey)

	pemStr, err := jwk.PEM()
	require.NoError(t, err)
	require.NotEmpty(t, pemStr)

	require.True(t, strings.HasPrefix(pemStr, "-----BEGIN PUBLIC KEY-----"))
	require.True(t, strings.HasSuffix(strings.TrimSpace(pemStr), "-----END PUBLIC KEY-----"))

	// Parse the PEM back to verify it's valid
	block, _ := pem.Decode([]byte(pemStr))
	require.NotNil(t, block, "PEM block should be valid")
	require.Equal(t, "PUBLIC KEY", block.Type)

	parsedKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)

	rsaPubKey, ok := parsedKey.(*rsa.PublicKey)
	require.True(t, ok, "Parsed key should be an RSA public key")

	require.Equal(t, privateKey.PublicKey.N, rsaPubKey.N)
	require.Equal(t, privateKey.PublicKey.E, rsaPubKey.E)
}

func TestJWK_PEM_UnsupportedKeyType(t *testing.T) {
	jwk := JWK{
		Kty: "UNSUPPORTED",
		Kid: "test-key",
	}

	_, err := jwk.PEM()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported kty")
}

func TestJWK_PEM_InvalidBase64(t *testing.T) {
	jwk := JWK{
		Kty: "RSA",
		Kid: "test-key",
		N:   "!!!invalid-base64!!!",
		E:   "AQAB",
	}

	_, err := jwk.PEM()
	require.Error(t, err)
}

func TestKeySet_RejectsNonRSA(t *testing.T) {
	ks := NewKeySet()
	err := ks.AddJWK(JWK{Kty: "OKP", Kid: "ed-key"})
	require.Error(t, err)
}
