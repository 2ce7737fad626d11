package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/csis-platform/iam/internal/iam/domain"
	"github.com/csis-platform/iam/internal/iam/keycloak"
	"github.com/csis-platform/iam/internal/iam/mail"
	"github.com/csis-platform/iam/internal/iam/obs"
	"github.com/csis-platform/iam/internal/iam/store"
	"github.com/csis-platform/iam/pkg/cryptox"
	"github.com/csis-platform/iam/pkg/idx"
	"github.com/csis-platform/iam/pkg/slogx"
)

const (
	// DefaultResetTokenTTL bounds how long a password reset link works.
	DefaultResetTokenTTL = time.Hour

	// DefaultVerifyTokenTTL bounds how long a verification link works.
	DefaultVerifyTokenTTL = 7 * 24 * time.Hour

	// oneTimeTokenBytes is the entropy of reset and verification tokens.
	// Hex encoded, so the token string is twice this length.
	oneTimeTokenBytes = 32
)

// AuthService owns the authentication flows: registration, verification,
// login, refresh, logout, and password reset. Keycloak and Metrics may be
// nil; mirror and counter updates are then skipped.
type AuthService struct {
	Store    store.Store
	Tokens   *TokenService
	Lockout  *LockoutGuard
	Mailer   mail.Sender
	Audit    *AuditService
	Keycloak *keycloak.Client
	Metrics  *obs.Metrics

	// FrontendBaseURL is where verification and reset links point.
	FrontendBaseURL string

	ResetTTL  time.Duration
	VerifyTTL time.Duration
}

func (s *AuthService) resetTTL() time.Duration {
	if s.ResetTTL > 0 {
		return s.ResetTTL
	}
	return DefaultResetTokenTTL
}

func (s *AuthService) verifyTTL() time.Duration {
	if s.VerifyTTL > 0 {
		return s.VerifyTTL
	}
	return DefaultVerifyTokenTTL
}

// Register creates a pending account and emails a verification link. The
// account cannot log in until the link is followed.
func (s *AuthService) Register(ctx context.Context, email, password, displayName string, department *string) (domain.User, error) {
	now := time.Now().UTC()
	email = normalizeEmail(email)

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	u := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(displayName),
		Department:   department,
		Status:       domain.UserStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, err
	}

	if err := s.issueVerification(ctx, u, now); err != nil {
		return domain.User{}, err
	}

	s.Audit.Record(ctx, Entry{
		Action:       domain.AuditUserRegistered,
		ResourceType: "user",
		ResourceID:   u.ID,
	})

	return u, nil
}

// issueVerification invalidates any prior unused verification tokens, mints
// a fresh one, and mails the link.
func (s *AuthService) issueVerification(ctx context.Context, u domain.User, now time.Time) error {
	if err := s.Store.EmailVerificationTokens().DeleteUnusedForUser(ctx, u.ID); err != nil {
		return err
	}

	token, err := cryptox.GenerateHexToken(oneTimeTokenBytes)
	if err != nil {
		return err
	}

	err = s.Store.EmailVerificationTokens().Create(ctx, domain.OneTimeToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		Token:     token,
		ExpiresAt: now.Add(s.verifyTTL()),
		CreatedAt: now,
	})
	if err != nil {
		return err
	}

	s.sendMail(ctx, mail.VerificationMessage(u.Email, u.DisplayName, s.FrontendBaseURL, token))
	return nil
}

// VerifyEmail consumes a verification token and activates the account.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	now := time.Now().UTC()

	t, err := s.Store.EmailVerificationTokens().GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}

	if t.Used {
		return ErrTokenUsed
	}
	if t.Expired(now) {
		// Expired tokens are deleted when observed rather than waiting for
		// housekeeping.
		_ = s.Store.EmailVerificationTokens().Delete(ctx, t.ID)
		return ErrTokenExpired
	}

	u, err := s.Store.Users().GetUserByID(ctx, t.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}

	if err := s.Store.EmailVerificationTokens().MarkUsed(ctx, t.ID); err != nil {
		return err
	}
	// Any other outstanding verification tokens are dead now.
	if err := s.Store.EmailVerificationTokens().DeleteUnusedForUser(ctx, u.ID); err != nil {
		return err
	}

	if u.Status == domain.UserStatusPending {
		if err := s.Store.Users().UpdateStatus(ctx, u.ID, domain.UserStatusActive); err != nil {
			return err
		}
		s.mirrorToKeycloak(ctx, u)
		s.sendMail(ctx, mail.WelcomeMessage(u.Email, u.DisplayName))
	}

	s.Audit.Record(ctx, Entry{
		ActorID:      u.ID,
		Action:       domain.AuditUserVerified,
		ResourceType: "user",
		ResourceID:   u.ID,
	})

	return nil
}

// ResendVerification reissues the verification link. It reports success even
// for unknown or already verified addresses so it cannot be used to probe
// which emails have accounts.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	now := time.Now().UTC()
	email = normalizeEmail(email)

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if u.Status != domain.UserStatusPending {
		return nil
	}

	return s.issueVerification(ctx, u, now)
}

// Login verifies credentials under the lockout guard and issues a token pair.
// Unknown email, wrong password, and a non-active account all come back as
// ErrInvalidCredentials; a lockout in effect comes back as LockedError.
func (s *AuthService) Login(ctx context.Context, email, password string, ip *string) (domain.TokenPair, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)
	email = normalizeEmail(email)

	// Locked addresses are rejected before any credential work.
	if err := s.Lockout.Check(ctx, email, now); err != nil {
		var locked *LockedError
		if errors.As(err, &locked) {
			s.Metrics.LoginResult("locked")
		}
		return domain.TokenPair{}, err
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Unknown addresses still count toward the lockout window so the
			// guard's behavior cannot distinguish them from real accounts.
			return domain.TokenPair{}, s.failLogin(ctx, email, "", ip, now)
		}
		return domain.TokenPair{}, err
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return domain.TokenPair{}, s.failLogin(ctx, email, u.ID, ip, now)
		}
		return domain.TokenPair{}, err
	}

	if !u.CanLogin() {
		// Correct password but unusable account. Not counted as a failure;
		// the caller still just sees invalid credentials.
		s.Metrics.LoginResult("failure")
		return domain.TokenPair{}, ErrInvalidCredentials
	}

	if err := s.Lockout.Reset(ctx, email); err != nil {
		return domain.TokenPair{}, err
	}

	pair, err := s.Tokens.IssuePair(ctx, u, now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.Metrics.LoginResult("success")
	s.Metrics.TokenIssued("password")
	s.Audit.Record(ctx, Entry{
		ActorID:      u.ID,
		Action:       domain.AuditLoginSucceeded,
		ResourceType: "user",
		ResourceID:   u.ID,
		IPAddress:    deref(ip),
	})
	l.Info("login succeeded", slog.String("user_id", u.ID))

	return pair, nil
}

// failLogin records the failure and returns either the generic credential
// error or, if this failure tripped the threshold, the lockout error.
func (s *AuthService) failLogin(ctx context.Context, email, userID string, ip *string, now time.Time) error {
	locked, err := s.Lockout.RecordFailure(ctx, email, ip, now)
	if err != nil {
		return err
	}

	s.Metrics.LoginResult("failure")
	s.Audit.Record(ctx, Entry{
		ActorID:      userID,
		Action:       domain.AuditLoginFailed,
		ResourceType: "user",
		IPAddress:    deref(ip),
		Details:      map[string]any{"email": email},
	})

	if locked != nil {
		s.Metrics.Lockout()
		s.Audit.Record(ctx, Entry{
			ActorID:      userID,
			Action:       domain.AuditLoginLocked,
			ResourceType: "user",
			IPAddress:    deref(ip),
			Details:      map[string]any{"email": email, "locked_until": locked.Until},
		})
		return locked
	}
	return ErrInvalidCredentials
}

// Refresh rotates a refresh token into a fresh pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	pair, err := s.Tokens.Rotate(ctx, refreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.Metrics.TokenIssued("refresh_token")
	s.Audit.Record(ctx, Entry{
		Action:       domain.AuditTokenRefreshed,
		ResourceType: "token",
		Details:      map[string]any{"refresh_fp": cryptox.FingerprintToken(refreshToken)},
	})

	return pair, nil
}

// Logout blacklists whichever of the two tokens were presented. It always
// succeeds: expired, malformed, or already revoked tokens are not an error,
// the caller's session is gone either way.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := s.Tokens.Revoke(ctx, accessToken); err != nil {
		return err
	}
	if err := s.Tokens.Revoke(ctx, refreshToken); err != nil {
		return err
	}

	s.Metrics.TokenRevoked()
	details := map[string]any{}
	if accessToken != "" {
		details["access_fp"] = cryptox.FingerprintToken(accessToken)
	}
	if refreshToken != "" {
		details["refresh_fp"] = cryptox.FingerprintToken(refreshToken)
	}
	s.Audit.Record(ctx, Entry{
		Action:       domain.AuditLogout,
		ResourceType: "token",
		Details:      details,
	})

	return nil
}

// RequestPasswordReset mints a reset token and mails the link. The response
// is identical whether or not the address has an account.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	now := time.Now().UTC()
	email = normalizeEmail(email)

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	// A new request supersedes any outstanding reset links.
	if err := s.Store.PasswordResetTokens().DeleteUnusedForUser(ctx, u.ID); err != nil {
		return err
	}

	token, err := cryptox.GenerateHexToken(oneTimeTokenBytes)
	if err != nil {
		return err
	}

	err = s.Store.PasswordResetTokens().Create(ctx, domain.OneTimeToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		Token:     token,
		ExpiresAt: now.Add(s.resetTTL()),
		CreatedAt: now,
	})
	if err != nil {
		return err
	}

	s.sendMail(ctx, mail.PasswordResetMessage(u.Email, u.DisplayName, s.FrontendBaseURL, token))
	return nil
}

// ConfirmPasswordReset consumes a reset token and installs the new password.
// A successful reset also clears any lockout on the account.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	now := time.Now().UTC()

	t, err := s.Store.PasswordResetTokens().GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}

	if t.Used {
		return ErrTokenUsed
	}
	if t.Expired(now) {
		_ = s.Store.PasswordResetTokens().Delete(ctx, t.ID)
		return ErrTokenExpired
	}

	u, err := s.Store.Users().GetUserByID(ctx, t.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.Store.Users().UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		return err
	}
	if err := s.Store.PasswordResetTokens().MarkUsed(ctx, t.ID); err != nil {
		return err
	}
	if err := s.Store.PasswordResetTokens().DeleteUnusedForUser(ctx, u.ID); err != nil {
		return err
	}
	if err := s.Lockout.Reset(ctx, u.Email); err != nil {
		return err
	}

	s.Audit.Record(ctx, Entry{
		ActorID:      u.ID,
		Action:       domain.AuditPasswordReset,
		ResourceType: "user",
		ResourceID:   u.ID,
	})

	return nil
}

// sendMail delivers best effort; auth flows never fail on a mail error.
func (s *AuthService) sendMail(ctx context.Context, msg mail.Message) {
	if s.Mailer == nil {
		return
	}
	if err := s.Mailer.Send(ctx, msg); err != nil {
		slogx.FromContext(ctx).Error("failed to send email",
			slog.String("to", msg.To),
			slog.String("subject", msg.Subject),
			slog.Any("error", err),
		)
	}
}

// mirrorToKeycloak creates the mirrored account, best effort.
func (s *AuthService) mirrorToKeycloak(ctx context.Context, u domain.User) {
	if s.Keycloak == nil {
		return
	}

	kcID, err := s.Keycloak.CreateUser(ctx, u.Email, u.DisplayName, u.Department)
	if err != nil {
		slogx.FromContext(ctx).Error("keycloak mirror failed",
			slog.String("user_id", u.ID),
			slog.Any("error", err),
		)
		return
	}
	if err := s.Store.Users().UpdateKeycloakID(ctx, u.ID, kcID); err != nil {
		slogx.FromContext(ctx).Error("failed to persist keycloak id",
			slog.String("user_id", u.ID),
			slog.Any("error", err),
		)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
