package http

import (
	"net/http"

	"github.com/csis-platform/iam/internal/iam/service"
	"github.com/csis-platform/iam/pkg/authsdk"
	"github.com/csis-platform/iam/pkg/httpx"
	"github.com/csis-platform/iam/pkg/slogx"
)

// UserInfoHandler serves GET /v1/userinfo. Roles are resolved from the store
// at request time rather than read from the token, so the answer is current
// even mid way through a token's life.
type UserInfoHandler struct {
	UserService *service.UserService
	RBACService *service.RBACService
}

func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok || userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	user, err := h.UserService.GetUserByID(ctx, userID)
	if err != nil {
		log.Warn("failed to load user", "user_id", userID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	roles, err := h.RBACService.RolesForUser(ctx, userID)
	if err != nil {
		log.Warn("failed to load roles", "user_id", userID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	roleNames := make([]string, 0, len(roles))
	for _, role := range roles {
		roleNames = append(roleNames, role.Name)
	}

	department := ""
	if user.Department != nil {
		department = *user.Department
	}

	response := authsdk.UserInfoResponse{
		Sub:         user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Department:  department,
		Status:      string(user.Status),
		Roles:       roleNames,
	}

	httpx.WriteJSON(w, http.StatusOK, response)
}
