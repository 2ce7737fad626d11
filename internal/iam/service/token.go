package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/csis-platform/iam/internal/iam/domain"
	"github.com/csis-platform/iam/internal/iam/store"
	"github.com/csis-platform/iam/pkg/idx"
	"github.com/csis-platform/iam/pkg/jwtx"
	"github.com/csis-platform/iam/pkg/slogx"
)

// TokenService issues, rotates, and revokes the JWT pair. Access and refresh
// tokens share the same claim shape and signing key; only the lifetime
// differs, so a refresh token is distinguishable only by how it is used.
type TokenService struct {
	KeyManager *jwtx.KeyManager
	Store      store.Store
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// IssuePair signs a fresh access/refresh pair for the user with the roles
// they hold right now.
func (s *TokenService) IssuePair(ctx context.Context, u domain.User, now time.Time) (domain.TokenPair, error) {
	roles, err := s.roleNames(ctx, u.ID, now)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return s.signPair(u, roles, now)
}

func (s *TokenService) signPair(u domain.User, roles []string, now time.Time) (domain.TokenPair, error) {
	department := ""
	if u.Department != nil {
		department = *u.Department
	}

	access, err := s.KeyManager.Signer.Sign(
		jwtx.NewClaims(u.ID, u.Email, department, roles, s.AccessTTL, s.Issuer, now),
	)
	if err != nil {
		return domain.TokenPair{}, err
	}

	refresh, err := s.KeyManager.Signer.Sign(
		jwtx.NewClaims(u.ID, u.Email, department, roles, s.RefreshTTL, s.Issuer, now),
	)
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.AccessTTL / time.Second),
		RefreshExpiresIn: int64(s.RefreshTTL / time.Second),
	}, nil
}

// Rotate implements the refresh_token grant: verify the presented refresh
// token, re-read the user and their roles, sign a new pair, then blacklist
// the old refresh token. Under concurrent use of the same refresh token the
// denylist's unique constraint picks exactly one winner; losers get
// ErrInvalidRefresh and whatever pair they signed is never returned.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	claims, err := s.verify(ctx, refreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}

	u, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidRefresh
		}
		return domain.TokenPair{}, err
	}
	if !u.CanLogin() {
		return domain.TokenPair{}, ErrInvalidRefresh
	}

	// Roles come from the store, not the old token, so revocations and new
	// grants take effect on the next refresh.
	roles, err := s.roleNames(ctx, u.ID, now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	pair, err := s.signPair(u, roles, now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	// Blacklist last. If this insert loses the race the new pair is dropped
	// and the caller is told the token was already spent.
	err = s.Store.RevokedTokens().CreateRevokedToken(ctx, domain.RevokedToken{
		ID:        idx.New().String(),
		Token:     refreshToken,
		ExpiresAt: claims.ExpiresAt.Time,
		CreatedAt: now,
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			l.Info("refresh token replayed during rotation", slog.String("user_id", u.ID))
			return domain.TokenPair{}, ErrInvalidRefresh
		}
		return domain.TokenPair{}, err
	}

	return pair, nil
}

// verify checks signature, issuer, and expiry, then the denylist.
func (s *TokenService) verify(ctx context.Context, token string) (jwtx.Claims, error) {
	claims, err := s.KeyManager.Verifier.Verify(token)
	if err != nil {
		return jwtx.Claims{}, ErrInvalidRefresh
	}

	revoked, err := s.Store.RevokedTokens().IsTokenRevoked(ctx, token)
	if err != nil {
		return jwtx.Claims{}, err
	}
	if revoked {
		return jwtx.Claims{}, ErrInvalidRefresh
	}

	return claims, nil
}

// Revoke blacklists a single token until its natural expiry. The token is
// decoded without signature verification so logout can retire tokens even
// after a key change; garbage that does not parse is simply ignored.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	claims, err := jwtx.Decode(token)
	if err != nil {
		return nil
	}

	expiresAt := time.Now().Add(s.RefreshTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	err = s.Store.RevokedTokens().CreateRevokedToken(ctx, domain.RevokedToken{
		ID:        idx.New().String(),
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil // already on the denylist, fine
	}
	return err
}

// IsRevoked reports whether the token is on the denylist. Satisfies the
// revocation check hook in the authn middleware.
func (s *TokenService) IsRevoked(ctx context.Context, token string) (bool, error) {
	return s.Store.RevokedTokens().IsTokenRevoked(ctx, token)
}

// Introspect implements RFC 7662 semantics: any failure at all collapses to
// inactive rather than an error the caller could probe.
func (s *TokenService) Introspect(ctx context.Context, token string) (jwtx.Claims, bool) {
	if token == "" {
		return jwtx.Claims{}, false
	}

	claims, err := s.KeyManager.Verifier.Verify(token)
	if err != nil {
		return jwtx.Claims{}, false
	}

	revoked, err := s.Store.RevokedTokens().IsTokenRevoked(ctx, token)
	if err != nil || revoked {
		return jwtx.Claims{}, false
	}

	return claims, true
}

func (s *TokenService) roleNames(ctx context.Context, userID string, now time.Time) ([]string, error) {
	roles, err := s.Store.Roles().ListRolesForUser(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names, nil
}
