package jwtx_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/csis-platform/iam/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestNewEphemeralKeyManager(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Issuer: "test-issuer",
	})
	require.NoError(t, err)
	require.NotNil(t, km.Signer)
	require.NotNil(t, km.Verifier)
	require.NotNil(t, km.KeySet)
	require.True(t, km.IsReady())
	require.NotEmpty(t, km.KID())
	require.Equal(t, "RS256", km.Signer.Alg())
}

func TestNewEphemeralKeyManager_RequiresIssuer(t *testing.T) {
	_, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{})
	require.Error(t, err)
}

func TestKeyManager_SignAndVerifyRoundTrip(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Issuer: "test-issuer",
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	claims := jwtx.NewClaims(
		"user-123",
		"alice@csis.example",
		"Engineering",
		[]string{"csis_user"},
		time.Minute,
		"test-issuer",
		now,
	)

	token, err := km.Signer.Sign(claims)
	require.NoError(t, err)

	parsed, err := km.Verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, claims.Subject, parsed.Subject)
	require.Equal(t, claims.Email, parsed.Email)
	require.ElementsMatch(t, claims.Roles, parsed.Roles)
	require.Equal(t, claims.Department, parsed.Department)
}

func TestLoadOrGenerateKeyManager_PersistsAcrossLoads(t *testing.T) {
	dir := t.TempDir()

	km1, err := jwtx.LoadOrGenerateKeyManager(dir, jwtx.KeyManagerOptions{
		Issuer: "test-issuer",
	})
	require.NoError(t, err)

	// Key material lands on disk
	require.FileExists(t, filepath.Join(dir, "private.pem"))
	require.FileExists(t, filepath.Join(dir, "public.pem"))
	require.FileExists(t, filepath.Join(dir, "keyid.txt"))

	claims := jwtx.NewClaims(
		"user-123", "alice@csis.example", "", nil,
		time.Minute, "test-issuer", time.Now().UTC(),
	)
	token, err := km1.Signer.Sign(claims)
	require.NoError(t, err)

	// A second manager loading from the same directory verifies the token
	km2, err := jwtx.LoadOrGenerateKeyManager(dir, jwtx.KeyManagerOptions{
		Issuer: "test-issuer",
	})
	require.NoError(t, err)
	require.Equal(t, km1.KID(), km2.KID())

	parsed, err := km2.Verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-123", parsed.Subject)
}

func TestLoadOrGenerateKeyManager_KidFile(t *testing.T) {
	dir := t.TempDir()

	km, err := jwtx.LoadOrGenerateKeyManager(dir, jwtx.KeyManagerOptions{
		Issuer: "test-issuer",
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "keyid.txt"))
	require.NoError(t, err)
	require.Contains(t, string(raw), km.KID())
	require.Len(t, km.KID(), 16, "8 random bytes hex-encoded")
}
