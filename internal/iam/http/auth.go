package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/csis-platform/iam/internal/iam/service"
	"github.com/csis-platform/iam/pkg/authsdk"
	"github.com/csis-platform/iam/pkg/httpx"
	"github.com/csis-platform/iam/pkg/slogx"
)

// minPasswordLength is the only password rule enforced server side. Argon2
// hashing makes long passwords cheap; composition rules are the frontend's
// problem.
const minPasswordLength = 8

// AuthHandler serves the /v1/auth endpoints: account lifecycle, sessions,
// and password recovery.
type AuthHandler struct {
	AuthService *service.AuthService
}

type registerRequest struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	DisplayName string  `json:"display_name"`
	Department  *string `json:"department,omitempty"`
}

type registerResponse struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

// HandleRegister serves POST /v1/auth/register. The new account starts
// pending; a verification link is emailed.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req registerRequest
	if err := readJSON(r, &req); err != nil {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}

	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.DisplayName) == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if len(req.Password) < minPasswordLength {
		authsdk.NewOAuth2Error(
			http.StatusBadRequest,
			authsdk.ErrorCodeInvalidRequest,
			"password must be at least 8 characters",
		).WriteError(w)
		return
	}

	u, err := h.AuthService.Register(ctx, req.Email, req.Password, req.DisplayName, req.Department)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			authsdk.NewOAuth2Error(
				http.StatusConflict,
				authsdk.ErrorCodeConflict,
				"email address already registered",
			).WriteError(w)
		default:
			log.Error("registration failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, registerResponse{
		ID:     u.ID,
		Email:  u.Email,
		Status: string(u.Status),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin serves POST /v1/auth/login. JSON variant of the password
// grant; the response envelope is identical.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}
	if req.Email == "" || req.Password == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	ip := httpx.IPKeyExtractor(r)
	pair, err := h.AuthService.Login(ctx, req.Email, req.Password, &ip)
	if err != nil {
		var locked *service.LockedError
		switch {
		case errors.As(err, &locked):
			writeLockedError(w, locked)
		case errors.Is(err, service.ErrInvalidCredentials):
			authsdk.ErrInvalidGrant.WriteError(w)
		default:
			log.Error("login failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	writeTokenResponse(w, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleRefresh serves POST /v1/auth/refresh.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req refreshRequest
	if err := readJSON(r, &req); err != nil {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}
	if req.RefreshToken == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.AuthService.Refresh(ctx, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRefresh):
			authsdk.ErrInvalidGrant.WriteError(w)
		default:
			log.Error("refresh failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	writeTokenResponse(w, pair)
}

type logoutRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// HandleLogout serves POST /v1/auth/logout. Always 204 for a well-formed
// request; dead or mangled tokens are not worth reporting.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req logoutRequest
	if err := readJSON(r, &req); err != nil {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}

	if err := h.AuthService.Logout(ctx, req.AccessToken, req.RefreshToken); err != nil {
		log.Error("logout failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleVerifyEmail serves POST /v1/auth/verify-email/{token}.
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	token := r.PathValue("token")
	if token == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.AuthService.VerifyEmail(ctx, token); err != nil {
		switch {
		case errors.Is(err, service.ErrTokenUsed):
			writeTokenError(w, "verification token has already been used")
		case errors.Is(err, service.ErrTokenExpired):
			writeTokenError(w, "verification token has expired")
		case errors.Is(err, service.ErrInvalidToken):
			writeTokenError(w, "verification token is invalid")
		default:
			log.Error("email verification failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type emailRequest struct {
	Email string `json:"email"`
}

// HandleResendVerification serves POST /v1/auth/resend-verification.
// Responds 202 whether or not the address has a pending account.
func (h *AuthHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req emailRequest
	if err := readJSON(r, &req); err != nil {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}
	if req.Email == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.AuthService.ResendVerification(ctx, req.Email); err != nil {
		log.Error("resend verification failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// HandlePasswordResetRequest serves POST /v1/auth/password-reset.
// Responds 202 whether or not the address has an account.
func (h *AuthHandler) HandlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req emailRequest
	if err := readJSON(r, &req); err != nil {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}
	if req.Email == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.AuthService.RequestPasswordReset(ctx, req.Email); err != nil {
		log.Error("password reset request failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

type passwordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// HandlePasswordResetConfirm serves POST /v1/auth/password-reset/confirm.
func (h *AuthHandler) HandlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req passwordResetConfirmRequest
	if err := readJSON(r, &req); err != nil {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}
	if req.Token == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		authsdk.NewOAuth2Error(
			http.StatusBadRequest,
			authsdk.ErrorCodeInvalidRequest,
			"password must be at least 8 characters",
		).WriteError(w)
		return
	}

	if err := h.AuthService.ConfirmPasswordReset(ctx, req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, service.ErrTokenUsed):
			writeTokenError(w, "reset token has already been used")
		case errors.Is(err, service.ErrTokenExpired):
			writeTokenError(w, "reset token has expired")
		case errors.Is(err, service.ErrInvalidToken):
			writeTokenError(w, "reset token is invalid")
		default:
			log.Error("password reset confirm failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
