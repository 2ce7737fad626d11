package keycloak

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeRealm stands in for the Keycloak admin API: a token endpoint plus the
// user and role-mapping routes the client touches.
func fakeRealm(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var tokenRequests atomic.Int32
	mux := http.NewServeMux()

	mux.HandleFunc("POST /realms/csis/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		tokenRequests.Add(1)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.FormValue("grant_type"))
		require.Equal(t, "iam-sync", r.FormValue("client_id"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "admin-token",
			"expires_in":   300,
		})
	})

	requireAdminToken := func(r *http.Request) {
		require.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))
	}

	mux.HandleFunc("POST /admin/realms/csis/users", func(w http.ResponseWriter, r *http.Request) {
		requireAdminToken(r)
		var rep map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rep))
		require.Equal(t, "mirror@example.com", rep["email"])

		w.Header().Set("Location", r.Host+"/admin/realms/csis/users/kc-123")
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("GET /admin/realms/csis/roles/auditor", func(w http.ResponseWriter, r *http.Request) {
		requireAdminToken(r)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "role-9", "name": "auditor"})
	})

	mappings := func(w http.ResponseWriter, r *http.Request) {
		requireAdminToken(r)
		var roles []realmRole
		require.NoError(t, json.NewDecoder(r.Body).Decode(&roles))
		require.Len(t, roles, 1)
		require.Equal(t, "role-9", roles[0].ID)
		require.Equal(t, "auditor", roles[0].Name)
		w.WriteHeader(http.StatusNoContent)
	}
	mux.HandleFunc("POST /admin/realms/csis/users/kc-123/role-mappings/realm", mappings)
	mux.HandleFunc("DELETE /admin/realms/csis/users/kc-123/role-mappings/realm", mappings)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenRequests
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(Config{
		BaseURL:      srv.URL,
		Realm:        "csis",
		ClientID:     "iam-sync",
		ClientSecret: "secret",
	})
}

func TestCreateUserReturnsIDFromLocation(t *testing.T) {
	srv, _ := fakeRealm(t)
	c := newTestClient(srv)

	id, err := c.CreateUser(context.Background(), "mirror@example.com", "Mirror User", nil)
	require.NoError(t, err)
	require.Equal(t, "kc-123", id)
}

func TestRoleMappingRoundTrip(t *testing.T) {
	srv, tokenRequests := fakeRealm(t)
	c := newTestClient(srv)
	ctx := context.Background()

	require.NoError(t, c.AssignRole(ctx, "kc-123", "auditor"))
	require.NoError(t, c.RemoveRole(ctx, "kc-123", "auditor"))

	// The admin token is fetched once and reused until expiry.
	require.Equal(t, int32(1), tokenRequests.Load())
}

func TestAssignRoleUnknownRole(t *testing.T) {
	srv, _ := fakeRealm(t)
	c := newTestClient(srv)

	err := c.AssignRole(context.Background(), "kc-123", "no-such-role")
	require.Error(t, err)
}
