// Package keycloak mirrors local accounts into a Keycloak realm over its
// admin REST API. The mirror is best effort: every caller treats a failure
// here as log-and-continue, the local store stays authoritative.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
)

type Config struct {
	BaseURL      string // e.g. https://keycloak.internal
	Realm        string
	ClientID     string
	ClientSecret string
}

// Enabled reports whether sync is configured at all.
func (c Config) Enabled() bool {
	return c.BaseURL != "" && c.Realm != "" && c.ClientID != ""
}

type Client struct {
	cfg  Config
	http *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// userRepresentation is the subset of Keycloak's UserRepresentation we write.
type userRepresentation struct {
	Email         string              `json:"email"`
	Username      string              `json:"username"`
	FirstName     string              `json:"firstName,omitempty"`
	Enabled       bool                `json:"enabled"`
	EmailVerified bool                `json:"emailVerified"`
	Attributes    map[string][]string `json:"attributes,omitempty"`
}

// CreateUser mirrors a verified account into the realm and returns the
// Keycloak user id parsed from the Location header.
func (c *Client) CreateUser(ctx context.Context, email, displayName string, department *string) (string, error) {
	rep := userRepresentation{
		Email:         email,
		Username:      email,
		FirstName:     displayName,
		Enabled:       true,
		EmailVerified: true,
	}
	if department != nil {
		rep.Attributes = map[string][]string{"department": {*department}}
	}

	resp, err := c.do(ctx, http.MethodPost, c.adminURL("users"), rep)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("keycloak: create user: unexpected status %d", resp.StatusCode)
	}

	// Location: .../admin/realms/{realm}/users/{id}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", fmt.Errorf("keycloak: create user: missing Location header")
	}
	return path.Base(loc), nil
}

// SetEnabled flips the enabled flag, mirroring suspend and reactivate.
func (c *Client) SetEnabled(ctx context.Context, keycloakID string, enabled bool) error {
	resp, err := c.do(ctx, http.MethodPut, c.adminURL("users", keycloakID), map[string]any{
		"enabled": enabled,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("keycloak: set enabled: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// realmRole is the id and name pair the role-mapping endpoints require.
type realmRole struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AssignRole maps the named realm role onto the mirrored account. The role
// must already exist in the realm; roles are provisioned there out of band.
func (c *Client) AssignRole(ctx context.Context, keycloakID, roleName string) error {
	role, err := c.lookupRealmRole(ctx, roleName)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost,
		c.adminURL("users", keycloakID, "role-mappings", "realm"), []realmRole{role})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("keycloak: assign role: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// RemoveRole unmaps the named realm role from the mirrored account. A
// mapping that does not exist is not an error.
func (c *Client) RemoveRole(ctx context.Context, keycloakID, roleName string) error {
	role, err := c.lookupRealmRole(ctx, roleName)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodDelete,
		c.adminURL("users", keycloakID, "role-mappings", "realm"), []realmRole{role})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("keycloak: remove role: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// lookupRealmRole resolves a role name to the id the mapping calls need.
func (c *Client) lookupRealmRole(ctx context.Context, name string) (realmRole, error) {
	resp, err := c.do(ctx, http.MethodGet, c.adminURL("roles", name), nil)
	if err != nil {
		return realmRole{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return realmRole{}, fmt.Errorf("keycloak: lookup role %q: unexpected status %d", name, resp.StatusCode)
	}

	var role realmRole
	if err := json.NewDecoder(resp.Body).Decode(&role); err != nil {
		return realmRole{}, err
	}
	return role, nil
}

// DeleteUser removes the mirrored account.
func (c *Client) DeleteUser(ctx context.Context, keycloakID string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.adminURL("users", keycloakID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("keycloak: delete user: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) adminURL(parts ...string) string {
	segments := append([]string{"admin", "realms", c.cfg.Realm}, parts...)
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + path.Join(segments...)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body any) (*http.Response, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.http.Do(req)
}

// token returns a cached admin token, refreshing via client_credentials when
// it is within a minute of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Add(time.Minute).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	tokenURL := strings.TrimRight(c.cfg.BaseURL, "/") +
		"/realms/" + c.cfg.Realm + "/protocol/openid-connect/token"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("keycloak: admin token: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}

	c.accessToken = out.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return c.accessToken, nil
}
