/*
Package authsdk provides a small client for the identity service.

It covers the OAuth2 surface (token, introspection, JWKS) and the userinfo
and health endpoints. Internal services use it to authenticate service
accounts and to validate tokens without re-implementing the wire formats.

	client := authsdk.NewSDKClient("https://iam.example.com")

	tokens, err := client.PasswordGrant(ctx, "user@example.com", "password")
	if err != nil {
		var oauthErr *authsdk.OAuth2Error
		if errors.As(err, &oauthErr) {
			// Inspect oauthErr.Code, e.g. "invalid_grant"
		}
		return err
	}

	info, err := client.GetUserInfo(ctx, tokens.AccessToken)

Both token kinds are RS256 JWTs; resource servers that prefer local
verification can fetch the key set once via GetJWKS and skip the
introspection round trip.
*/
package authsdk
