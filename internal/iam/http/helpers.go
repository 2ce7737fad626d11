package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/csis-platform/iam/internal/iam/domain"
	"github.com/csis-platform/iam/pkg/authsdk"
	"github.com/csis-platform/iam/pkg/httpx"
)

// maxJSONBody bounds request bodies on the JSON endpoints. Nothing the API
// accepts legitimately approaches this.
const maxJSONBody = 1 << 20

// readJSON decodes the request body into dst, rejecting unknown fields and
// trailing garbage.
func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}

// writeTokenError renders a 400 for a failed one-time token. The message
// says why; reset and verification tokens are random and not tied to an
// email, so the distinction leaks nothing.
func writeTokenError(w http.ResponseWriter, description string) {
	authsdk.NewOAuth2Error(
		http.StatusBadRequest,
		authsdk.ErrorCodeInvalidRequest,
		description,
	).WriteError(w)
}

// writeTokenResponse renders a token pair in the OAuth2 envelope.
func writeTokenResponse(w http.ResponseWriter, pair domain.TokenPair) {
	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        pair.TokenType,
		ExpiresIn:        pair.ExpiresIn,
		RefreshExpiresIn: pair.RefreshExpiresIn,
	})
}
