package http

import (
	"context"
	"testing"

	nethttp "net/http"

	"github.com/csis-platform/iam/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestRegisterVerifyLoginFlow(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	// Register. The account starts pending.
	resp := ts.doJSON(t, nethttp.MethodPost, "/v1/auth/register", "", registerRequest{
		Email:       "Flow@Example.com",
		Password:    "correct horse battery",
		DisplayName: "Flow Tester",
	})
	require.Equal(t, nethttp.StatusCreated, resp.StatusCode)

	var created registerResponse
	decodeBody(t, resp, &created)
	require.Equal(t, "flow@example.com", created.Email)
	require.Equal(t, "pending", created.Status)

	// Pending accounts cannot log in.
	_, err := ts.SDK.PasswordGrant(ctx, "flow@example.com", "correct horse battery")
	var oauthErr *authsdk.OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, authsdk.ErrorCodeInvalidGrant, oauthErr.Code)

	// Follow the emailed verification link.
	resp = ts.doJSON(t, nethttp.MethodPost, "/v1/auth/verify-email/"+ts.Mail.lastToken(t), "", nil)
	require.Equal(t, nethttp.StatusNoContent, resp.StatusCode)

	// Now the whole session lifecycle works.
	pair := ts.login(t, "flow@example.com", "correct horse battery")

	info, err := ts.SDK.Introspect(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.True(t, info.Active)

	profile, err := ts.SDK.GetUserInfo(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, created.ID, profile.Sub)

	require.NoError(t, ts.SDK.Logout(ctx, pair.AccessToken, pair.RefreshToken))

	info, err = ts.SDK.Introspect(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.False(t, info.Active)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ts := newTestServer(t)
	ts.registerActive(t, "taken@example.com", "correct horse battery")

	resp := ts.doJSON(t, nethttp.MethodPost, "/v1/auth/register", "", registerRequest{
		Email:       "TAKEN@example.com",
		Password:    "another password",
		DisplayName: "Second",
	})
	require.Equal(t, nethttp.StatusConflict, resp.StatusCode)

	var body authsdk.ErrorResponse
	decodeBody(t, resp, &body)
	require.Equal(t, authsdk.ErrorCodeConflict, body.Error)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.doJSON(t, nethttp.MethodPost, "/v1/auth/register", "", registerRequest{
		Email:       "short@example.com",
		Password:    "short",
		DisplayName: "Short",
	})
	require.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
}

func TestVerifyEmailUnknownToken(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.doJSON(t, nethttp.MethodPost, "/v1/auth/verify-email/definitely-not-a-token", "", nil)
	require.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)

	var body authsdk.ErrorResponse
	decodeBody(t, resp, &body)
	require.Equal(t, "verification token is invalid", body.ErrorDescription)
}

func TestVerifyEmailReplayReportsUsed(t *testing.T) {
	ts := newTestServer(t)
	ts.registerActive(t, "replay@example.com", "correct horse battery")

	// registerActive already consumed the link; following it again says so.
	resp := ts.doJSON(t, nethttp.MethodPost, "/v1/auth/verify-email/"+ts.Mail.lastToken(t), "", nil)
	require.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)

	var body authsdk.ErrorResponse
	decodeBody(t, resp, &body)
	require.Equal(t, "verification token has already been used", body.ErrorDescription)
}

func TestJSONLoginAndRefresh(t *testing.T) {
	ts := newTestServer(t)
	ts.registerActive(t, "json@example.com", "correct horse battery")

	resp := ts.doJSON(t, nethttp.MethodPost, "/v1/auth/login", "", loginRequest{
		Email:    "json@example.com",
		Password: "correct horse battery",
	})
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)

	var pair authsdk.TokenResponse
	decodeBody(t, resp, &pair)
	require.NotEmpty(t, pair.AccessToken)
	require.Equal(t, "Bearer", pair.TokenType)

	resp = ts.doJSON(t, nethttp.MethodPost, "/v1/auth/refresh", "", refreshRequest{
		RefreshToken: pair.RefreshToken,
	})
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)

	var rotated authsdk.TokenResponse
	decodeBody(t, resp, &rotated)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
}

func TestPasswordResetFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.registerActive(t, "reset@example.com", "old password!")
	ctx := context.Background()

	// Unknown addresses get the same 202 as real ones.
	resp := ts.doJSON(t, nethttp.MethodPost, "/v1/auth/password-reset", "", emailRequest{
		Email: "nobody@example.com",
	})
	require.Equal(t, nethttp.StatusAccepted, resp.StatusCode)

	resp = ts.doJSON(t, nethttp.MethodPost, "/v1/auth/password-reset", "", emailRequest{
		Email: "reset@example.com",
	})
	require.Equal(t, nethttp.StatusAccepted, resp.StatusCode)

	token := ts.Mail.lastToken(t)
	resp = ts.doJSON(t, nethttp.MethodPost, "/v1/auth/password-reset/confirm", "", passwordResetConfirmRequest{
		Token:       token,
		NewPassword: "new password!!",
	})
	require.Equal(t, nethttp.StatusNoContent, resp.StatusCode)

	_, err := ts.SDK.PasswordGrant(ctx, "reset@example.com", "old password!")
	require.Error(t, err)

	_, err = ts.SDK.PasswordGrant(ctx, "reset@example.com", "new password!!")
	require.NoError(t, err)

	// Replaying the consumed token reports it as used.
	resp = ts.doJSON(t, nethttp.MethodPost, "/v1/auth/password-reset/confirm", "", passwordResetConfirmRequest{
		Token:       token,
		NewPassword: "third password",
	})
	require.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)

	var body authsdk.ErrorResponse
	decodeBody(t, resp, &body)
	require.Equal(t, "reset token has already been used", body.ErrorDescription)
}

func TestResendVerificationGenericResponse(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.doJSON(t, nethttp.MethodPost, "/v1/auth/resend-verification", "", emailRequest{
		Email: "nobody@example.com",
	})
	require.Equal(t, nethttp.StatusAccepted, resp.StatusCode)
}
