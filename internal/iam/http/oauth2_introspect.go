package http

import (
	"net/http"
	"strings"

	"github.com/csis-platform/iam/internal/iam/service"
	"github.com/csis-platform/iam/pkg/authsdk"
	"github.com/csis-platform/iam/pkg/httpx"
)

// IntrospectHandler serves POST /v1/oauth2/introspect (RFC 7662).
// Every failure mode collapses to {"active": false}; the endpoint never
// explains why a token is dead.
type IntrospectHandler struct {
	TokenService *service.TokenService
}

func (h *IntrospectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}

	token := r.Form.Get("token")

	claims, active := h.TokenService.Introspect(r.Context(), token)
	if !active {
		httpx.WriteJSON(w, http.StatusOK, authsdk.IntrospectionResponse{Active: false})
		return
	}

	resp := authsdk.IntrospectionResponse{
		Active:     true,
		Sub:        claims.Subject,
		Email:      claims.Email,
		Roles:      claims.Roles,
		Department: claims.Department,
		TokenType:  "Bearer",
		Iss:        claims.Issuer,
		Jti:        claims.ID,
	}
	if claims.ExpiresAt != nil {
		resp.Exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		resp.Iat = claims.IssuedAt.Unix()
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}
