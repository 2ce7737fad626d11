package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/csis-platform/iam/internal/iam/domain"
	"github.com/csis-platform/iam/internal/iam/service"
	"github.com/csis-platform/iam/pkg/authsdk"
	"github.com/csis-platform/iam/pkg/httpx"
	"github.com/csis-platform/iam/pkg/slogx"
)

// RolesHandler serves the administrative /v1/roles endpoints plus the
// per-user assignment routes under /v1/users/{id}/roles.
type RolesHandler struct {
	RBACService *service.RBACService
}

type roleResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	DepartmentScope *string   `json:"department_scope,omitempty"`
	Permissions     []string  `json:"permissions"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toRoleResponse(r domain.Role) roleResponse {
	return roleResponse{
		ID:              r.ID,
		Name:            r.Name,
		DepartmentScope: r.DepartmentScope,
		Permissions:     r.Permissions,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type listRolesResponse struct {
	Roles []roleResponse `json:"roles"`
}

// HandleList serves GET /v1/roles.
func (h *RolesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	roles, err := h.RBACService.ListRoles(ctx)
	if err != nil {
		log.Error("failed to list roles", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	response := listRolesResponse{Roles: make([]roleResponse, len(roles))}
	for i, role := range roles {
		response.Roles[i] = toRoleResponse(role)
	}

	httpx.WriteJSON(w, http.StatusOK, response)
}

type createRoleRequest struct {
	Name            string   `json:"name"`
	DepartmentScope *string  `json:"department_scope,omitempty"`
	Permissions     []string `json:"permissions"`
}

// HandleCreate serves POST /v1/roles.
func (h *RolesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req createRoleRequest
	if err := readJSON(r, &req); err != nil {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	role, err := h.RBACService.CreateRole(ctx, strings.TrimSpace(req.Name), req.DepartmentScope, req.Permissions)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRoleExists):
			authsdk.NewOAuth2Error(
				http.StatusConflict,
				authsdk.ErrorCodeConflict,
				"role name already exists",
			).WriteError(w)
		default:
			log.Error("failed to create role", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, toRoleResponse(role))
}

// HandleGet serves GET /v1/roles/{id}.
func (h *RolesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	role, err := h.RBACService.GetRole(ctx, r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			authsdk.ErrNotFoundResource.WriteError(w)
		default:
			log.Error("failed to load role", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toRoleResponse(role))
}

type updateRoleRequest struct {
	DepartmentScope *string  `json:"department_scope,omitempty"`
	Permissions     []string `json:"permissions"`
}

// HandleUpdate serves PATCH /v1/roles/{id}. The name is immutable; tokens
// in flight carry role names, so renames would silently orphan them.
func (h *RolesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req updateRoleRequest
	if err := readJSON(r, &req); err != nil {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}

	role, err := h.RBACService.UpdateRole(ctx, r.PathValue("id"), req.DepartmentScope, req.Permissions)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			authsdk.ErrNotFoundResource.WriteError(w)
		default:
			log.Error("failed to update role", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toRoleResponse(role))
}

// HandleDelete serves DELETE /v1/roles/{id}. Refused with 409 while any
// user still holds the role.
func (h *RolesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := h.RBACService.DeleteRole(ctx, r.PathValue("id")); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			authsdk.ErrNotFoundResource.WriteError(w)
		case errors.Is(err, service.ErrRoleAssigned):
			authsdk.ErrRoleInUse.WriteError(w)
		default:
			log.Error("failed to delete role", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type assignmentResponse struct {
	RoleID    string     `json:"role_id"`
	UserID    string     `json:"user_id"`
	GrantedBy *string    `json:"granted_by,omitempty"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type listUserRolesResponse struct {
	Roles       []roleResponse       `json:"roles"`
	Permissions []string             `json:"permissions"`
	Assignments []assignmentResponse `json:"assignments"`
}

// HandleListForUser serves GET /v1/users/{id}/roles. Roles are the
// currently effective set, permissions their deduplicated union;
// assignments include expired rows for audit.
func (h *RolesHandler) HandleListForUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	userID := r.PathValue("id")

	roles, err := h.RBACService.RolesForUser(ctx, userID)
	if err != nil {
		log.Error("failed to list user roles", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	perms, err := h.RBACService.PermissionsOf(ctx, userID)
	if err != nil {
		log.Error("failed to resolve user permissions", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	assignments, err := h.RBACService.AssignmentsForUser(ctx, userID)
	if err != nil {
		log.Error("failed to list user assignments", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	response := listUserRolesResponse{
		Roles:       make([]roleResponse, len(roles)),
		Permissions: perms,
		Assignments: make([]assignmentResponse, len(assignments)),
	}
	for i, role := range roles {
		response.Roles[i] = toRoleResponse(role)
	}
	for i, a := range assignments {
		response.Assignments[i] = assignmentResponse{
			RoleID:    a.RoleID,
			UserID:    a.UserID,
			GrantedBy: a.GrantedBy,
			GrantedAt: a.GrantedAt,
			ExpiresAt: a.ExpiresAt,
		}
	}

	httpx.WriteJSON(w, http.StatusOK, response)
}

type assignRoleRequest struct {
	RoleID    string     `json:"role_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// HandleAssign serves POST /v1/users/{id}/roles. Granting a role the user
// already holds refreshes the expiry.
func (h *RolesHandler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req assignRoleRequest
	if err := readJSON(r, &req); err != nil {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}
	if req.RoleID == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	actorID, _ := httpx.UserIDFromContext(ctx)
	err := h.RBACService.AssignRole(ctx, r.PathValue("id"), req.RoleID, actorID, req.ExpiresAt)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			authsdk.ErrNotFoundResource.WriteError(w)
		default:
			log.Error("failed to assign role", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleRevoke serves DELETE /v1/users/{id}/roles/{roleID}. Revoking a
// role the user does not hold still returns 204.
func (h *RolesHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	actorID, _ := httpx.UserIDFromContext(ctx)
	err := h.RBACService.RevokeRole(ctx, r.PathValue("id"), r.PathValue("roleID"), actorID)
	if err != nil {
		log.Error("failed to revoke role", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
