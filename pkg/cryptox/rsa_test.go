package cryptox_test

import (
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/csis-platform/iam/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestGenerateRSAKey(t *testing.T) {
	pemBytes, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)
	require.NotEmpty(t, pemBytes)

	// Verify it's valid PEM
	block, _ := pem.Decode(pemBytes)
	require.NotNil(t, block)
	require.Equal(t, "RSA PRIVATE KEY", block.Type)

	// Verify it's a valid RSA key
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	require.NoError(t, err)
	require.NotNil(t, key)
	require.Equal(t, 2048, key.N.BitLen())
}

func TestGenerateRSAKeyRejectsTooSmall(t *testing.T) {
	_, err := cryptox.GenerateRSAKey(1024)
	require.Error(t, err)
	require.Contains(t, err.Error(), "at least 2048 bits")
}

func TestParseRSAPrivateKeyRoundTrip(t *testing.T) {
	pemBytes, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)

	key, err := cryptox.ParseRSAPrivateKey(pemBytes)
	require.NoError(t, err)
	require.Equal(t, 2048, key.N.BitLen())
}

func TestParseRSAPrivateKeyRejectsGarbage(t *testing.T) {
	_, err := cryptox.ParseRSAPrivateKey([]byte("not a pem block"))
	require.Error(t, err)
}

func TestEncodeRSAPublicKey(t *testing.T) {
	pemBytes, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)

	key, err := cryptox.ParseRSAPrivateKey(pemBytes)
	require.NoError(t, err)

	pubPEM, err := cryptox.EncodeRSAPublicKey(&key.PublicKey)
	require.NoError(t, err)

	block, _ := pem.Decode(pubPEM)
	require.NotNil(t, block)
	require.Equal(t, "PUBLIC KEY", block.Type)

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)
	require.NotNil(t, parsed)
}
