package http

import (
	"net/http"

	"github.com/csis-platform/iam/pkg/authsdk"
	"github.com/csis-platform/iam/pkg/httpx"
	"github.com/csis-platform/iam/pkg/jwtx"
)

// JWKSHandler exposes the JSON Web Key Set for public key discovery.
// Resource servers fetch this once and verify tokens locally.
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.JWKSResponse(keys.PublicJWKS()))
	}
}
