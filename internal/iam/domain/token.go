package domain

import "time"

// TokenPair is what the token endpoint returns: a short-lived access token
// and a longer-lived refresh token, both signed JWTs with the same claim
// shape.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn        int64  `json:"expires_in"`           // seconds until access expiry
	RefreshExpiresIn int64  `json:"refresh_expires_in"`   // seconds until refresh expiry
}

// RevokedToken is a denylist entry. Tokens are stored by full value and kept
// until their natural expiry, after which housekeeping purges the row.
type RevokedToken struct {
	ID        string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}
