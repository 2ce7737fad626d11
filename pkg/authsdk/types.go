package authsdk

import (
	"github.com/csis-platform/iam/pkg/jwtx"
)

// ErrorResponse represents a standard OAuth2 error response per RFC 6749.
// Used internally for parsing HTTP error responses; client code sees the
// OAuth2Error type from errors.go instead.
type ErrorResponse struct {
	// Error is the OAuth2 error code (e.g., "invalid_request", "invalid_grant")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// TokenResponse represents the OAuth2 token endpoint response per RFC 6749.
// Returned from POST /v1/oauth2/token for both the password and
// refresh_token grant types. Both tokens are RS256 JWTs.
type TokenResponse struct {
	// AccessToken authenticates API requests. Short lived.
	AccessToken string `json:"access_token"`

	// RefreshToken obtains new pairs via the refresh_token grant. Single
	// use: each refresh invalidates it and returns a replacement.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is always "Bearer" per OAuth2 spec
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int64 `json:"expires_in"`

	// RefreshExpiresIn is the lifetime in seconds of the refresh token
	RefreshExpiresIn int64 `json:"refresh_expires_in,omitempty"`
}

// IntrospectionResponse represents the RFC 7662 token introspection response.
// When a token is inactive only Active is present and false.
type IntrospectionResponse struct {
	Active bool `json:"active"`

	// Claim fields, present only when active=true
	Sub        string   `json:"sub,omitempty"`
	Email      string   `json:"email,omitempty"`
	Roles      []string `json:"csis_roles,omitempty"`
	Department string   `json:"department,omitempty"`
	TokenType  string   `json:"token_type,omitempty"`
	Exp        int64    `json:"exp,omitempty"`
	Iat        int64    `json:"iat,omitempty"`
	Iss        string   `json:"iss,omitempty"`
	Jti        string   `json:"jti,omitempty"`
}

// UserInfoResponse represents the GET /v1/userinfo response. Roles come from
// the role store at request time, not from the token, so the answer reflects
// grants and revocations made after the token was signed.
type UserInfoResponse struct {
	Sub         string   `json:"sub"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Department  string   `json:"department,omitempty"`
	Status      string   `json:"status"`
	Roles       []string `json:"csis_roles"`
}

// DiscoveryResponse is the OIDC discovery document served at
// /.well-known/openid-configuration.
type DiscoveryResponse struct {
	Issuer                            string   `json:"issuer"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
}

// HealthResponse is the response for the /livez and /readyz endpoints.
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the status of critical dependencies in /readyz.
type HealthChecks struct {
	// Database indicates the database connection status
	Database string `json:"database"`

	// Signer indicates the JWT signing capability status
	Signer string `json:"signer"`
}

// JWKSResponse contains the JSON Web Key Set served at
// /.well-known/jwks.json, used to verify token signatures locally.
type JWKSResponse jwtx.JWKS
