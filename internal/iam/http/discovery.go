package http

import (
	"net/http"
	"strings"

	"github.com/csis-platform/iam/pkg/authsdk"
	"github.com/csis-platform/iam/pkg/httpx"
)

// DiscoveryHandler serves the OIDC discovery document. The issuer doubles as
// the base URL for every advertised endpoint.
func DiscoveryHandler(issuer string) http.HandlerFunc {
	base := strings.TrimSuffix(issuer, "/")
	doc := authsdk.DiscoveryResponse{
		Issuer:                base,
		TokenEndpoint:         base + "/v1/oauth2/token",
		IntrospectionEndpoint: base + "/v1/oauth2/introspect",
		UserinfoEndpoint:      base + "/v1/userinfo",
		JWKSURI:               base + "/.well-known/jwks.json",
		GrantTypesSupported:   []string{"password", "refresh_token"},
		TokenEndpointAuthMethodsSupported: []string{"none"},
		IDTokenSigningAlgValuesSupported:  []string{"RS256"},
		ClaimsSupported: []string{
			"sub", "email", "csis_roles", "department", "iss", "iat", "exp", "jti",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, doc)
	}
}
