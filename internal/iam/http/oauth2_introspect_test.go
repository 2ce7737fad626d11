package http

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntrospectionActiveToken(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.registerActive(t, "introspect@example.com", "correct horse battery")
	ctx := context.Background()

	pair := ts.login(t, "introspect@example.com", "correct horse battery")

	info, err := ts.SDK.Introspect(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.True(t, info.Active)
	require.Equal(t, userID, info.Sub)
	require.Equal(t, "introspect@example.com", info.Email)
	require.Equal(t, testIssuer, info.Iss)
	require.Equal(t, "Bearer", info.TokenType)
	require.NotEmpty(t, info.Jti)
	require.Greater(t, info.Exp, info.Iat)
}

func TestIntrospectionNeverExplainsFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.registerActive(t, "introspect@example.com", "correct horse battery")
	ctx := context.Background()

	// Garbage, empty, and revoked tokens all collapse to the same answer.
	for _, token := range []string{"not-a-jwt", ""} {
		info, err := ts.SDK.Introspect(ctx, token)
		require.NoError(t, err)
		require.False(t, info.Active)
		require.Empty(t, info.Sub)
	}

	pair := ts.login(t, "introspect@example.com", "correct horse battery")
	require.NoError(t, ts.SDK.Logout(ctx, pair.AccessToken, pair.RefreshToken))

	info, err := ts.SDK.Introspect(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.False(t, info.Active)
	require.Empty(t, info.Sub)
}
