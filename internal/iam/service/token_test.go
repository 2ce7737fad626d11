package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/csis-platform/iam/internal/iam/domain"
	"github.com/csis-platform/iam/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestIssuePairClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dept := "platform"

	u, err := f.Auth.Register(ctx, "claims@example.com", "pw pw pw pw", "Claims User", &dept)
	require.NoError(t, err)
	require.NoError(t, f.Auth.VerifyEmail(ctx, f.Mail.lastToken(t)))

	user, err := f.Store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)

	now := time.Now()
	pair, err := f.Tokens.IssuePair(ctx, user, now)
	require.NoError(t, err)
	require.Equal(t, int64(15*60), pair.ExpiresIn)
	require.Equal(t, int64(7*24*60*60), pair.RefreshExpiresIn)

	access, err := f.Tokens.KeyManager.Verifier.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, access.Subject)
	require.Equal(t, "claims@example.com", access.Email)
	require.Equal(t, "platform", access.Department)
	require.Equal(t, testIssuer, access.Issuer)
	require.WithinDuration(t, now.Add(15*time.Minute), access.ExpiresAt.Time, 2*time.Second)

	refresh, err := f.Tokens.KeyManager.Verifier.Verify(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, refresh.Subject)
	require.WithinDuration(t, now.Add(7*24*time.Hour), refresh.ExpiresAt.Time, 2*time.Second)
}

func TestRotateConcurrentUseSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerActive(t, "race@example.com", "race password")

	pair, err := f.Auth.Login(ctx, "race@example.com", "race password", nil)
	require.NoError(t, err)

	const goroutines = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		replayed  int
	)

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, err := f.Tokens.Rotate(ctx, pair.RefreshToken)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInvalidRefresh):
				replayed++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, succeeded, "exactly one rotation may win")
	require.Equal(t, goroutines-1, replayed)
}

func TestRotateRejectsWrongIssuer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerActive(t, "issuer@example.com", "issuer password")

	u, err := f.Store.Users().GetUserByEmail(ctx, "issuer@example.com")
	require.NoError(t, err)

	foreign, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: "https://someone-else"})
	require.NoError(t, err)

	token, err := foreign.Signer.Sign(
		jwtx.NewClaims(u.ID, u.Email, "", nil, time.Hour, "https://someone-else", time.Now()),
	)
	require.NoError(t, err)

	_, err = f.Tokens.Rotate(ctx, token)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRotateRejectsDeactivatedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.registerActive(t, "gone@example.com", "gone password")

	pair, err := f.Auth.Login(ctx, "gone@example.com", "gone password", nil)
	require.NoError(t, err)

	require.NoError(t, f.Store.Users().UpdateStatus(ctx, id, domain.UserStatusDeactivated))

	_, err = f.Tokens.Rotate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestIntrospect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerActive(t, "intro@example.com", "intro password")

	pair, err := f.Auth.Login(ctx, "intro@example.com", "intro password", nil)
	require.NoError(t, err)

	claims, active := f.Tokens.Introspect(ctx, pair.AccessToken)
	require.True(t, active)
	require.Equal(t, "intro@example.com", claims.Email)

	_, active = f.Tokens.Introspect(ctx, "")
	require.False(t, active)

	_, active = f.Tokens.Introspect(ctx, "mangled.token.value")
	require.False(t, active)

	require.NoError(t, f.Tokens.Revoke(ctx, pair.AccessToken))
	_, active = f.Tokens.Introspect(ctx, pair.AccessToken)
	require.False(t, active)
}

func TestRevokeToleratesGarbageAndDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.Tokens.Revoke(ctx, ""))
	require.NoError(t, f.Tokens.Revoke(ctx, "not even close to a jwt"))

	f.registerActive(t, "revoke@example.com", "revoke password")
	pair, err := f.Auth.Login(ctx, "revoke@example.com", "revoke password", nil)
	require.NoError(t, err)

	require.NoError(t, f.Tokens.Revoke(ctx, pair.RefreshToken))
	require.NoError(t, f.Tokens.Revoke(ctx, pair.RefreshToken)) // second time is a no-op
}
