package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/csis-platform/iam/internal/iam/service"
	"github.com/csis-platform/iam/pkg/authsdk"
	"github.com/csis-platform/iam/pkg/httpx"
	"github.com/csis-platform/iam/pkg/slogx"
)

// TokenHandler serves POST /v1/oauth2/token
// Accepts application/x-www-form-urlencoded per the RFC 6749 framework.
// Supported grant types: password and refresh_token.
type TokenHandler struct {
	AuthService *service.AuthService
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. Ensure the right content-type
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}

	// 2. Parse the form body
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}

	// 3. Handle the grant type
	grantType := r.Form.Get("grant_type")
	switch grantType {
	case "password":
		h.handlePasswordGrant(w, r, r.Form)
	case "refresh_token":
		h.handleRefreshGrant(w, r, r.Form)
	default:
		authsdk.ErrUnsupportedGrantType.WriteError(w)
	}
}

func (h *TokenHandler) handlePasswordGrant(w http.ResponseWriter, r *http.Request, form url.Values) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	username := strings.TrimSpace(form.Get("username"))
	password := form.Get("password")

	if username == "" || password == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	ip := httpx.IPKeyExtractor(r)
	pair, err := h.AuthService.Login(ctx, username, password, &ip)
	if err != nil {
		var locked *service.LockedError
		switch {
		case errors.As(err, &locked):
			writeLockedError(w, locked)
		case errors.Is(err, service.ErrInvalidCredentials):
			authsdk.ErrInvalidGrant.WriteError(w)
		default:
			log.Error("password grant failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	writeTokenResponse(w, pair)
}

func (h *TokenHandler) handleRefreshGrant(w http.ResponseWriter, r *http.Request, form url.Values) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	refresh := form.Get("refresh_token")
	if refresh == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.AuthService.Refresh(ctx, refresh)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRefresh):
			authsdk.ErrInvalidGrant.WriteError(w)
		default:
			log.Error("refresh grant failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	writeTokenResponse(w, pair)
}

// writeLockedError tells the caller how long the lockout has left. The
// remaining time is deliberately disclosed; the lockout itself already
// confirms the address exists to anyone willing to burn five attempts.
func writeLockedError(w http.ResponseWriter, locked *service.LockedError) {
	minutes := locked.RemainingMinutes(time.Now())
	authsdk.NewOAuth2Error(
		http.StatusTooManyRequests,
		authsdk.ErrorCodeInvalidGrant,
		fmt.Sprintf("account temporarily locked, try again in %d minutes", minutes),
	).WriteError(w)
}
