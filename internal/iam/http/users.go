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

// UsersHandler serves the administrative /v1/users endpoints. All routes
// sit behind the admin role middleware.
type UsersHandler struct {
	UserService *service.UserService
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Department  *string   `json:"department,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Department:  u.Department,
		Status:      string(u.Status),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

type listUsersResponse struct {
	Users []userResponse `json:"users"`
}

// HandleList serves GET /v1/users.
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	users, err := h.UserService.ListUsers(ctx)
	if err != nil {
		log.Error("failed to list users", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	response := listUsersResponse{Users: make([]userResponse, len(users))}
	for i, u := range users {
		response.Users[i] = toUserResponse(u)
	}

	httpx.WriteJSON(w, http.StatusOK, response)
}

// HandleGet serves GET /v1/users/{id}.
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	u, err := h.UserService.GetUserByID(ctx, r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			authsdk.ErrNotFoundResource.WriteError(w)
		default:
			log.Error("failed to load user", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

type updateUserRequest struct {
	DisplayName string  `json:"display_name"`
	Department  *string `json:"department,omitempty"`
}

// HandleUpdate serves PATCH /v1/users/{id}.
func (h *UsersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req updateUserRequest
	if err := readJSON(r, &req); err != nil {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	u, err := h.UserService.UpdateProfile(ctx, r.PathValue("id"), req.DisplayName, req.Department)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			authsdk.ErrNotFoundResource.WriteError(w)
		default:
			log.Error("failed to update user", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

type setStatusRequest struct {
	Status string `json:"status"`
}

// HandleSetStatus serves PUT /v1/users/{id}/status.
func (h *UsersHandler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req setStatusRequest
	if err := readJSON(r, &req); err != nil {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}

	status := domain.UserStatus(req.Status)
	switch status {
	case domain.UserStatusActive, domain.UserStatusSuspended, domain.UserStatusDeactivated:
	default:
		authsdk.NewOAuth2Error(
			http.StatusBadRequest,
			authsdk.ErrorCodeInvalidRequest,
			"status must be one of active, suspended, deactivated",
		).WriteError(w)
		return
	}

	actorID, _ := httpx.UserIDFromContext(ctx)
	if err := h.UserService.SetStatus(ctx, r.PathValue("id"), status, actorID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			authsdk.ErrNotFoundResource.WriteError(w)
		default:
			log.Error("failed to set user status", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete serves DELETE /v1/users/{id}.
func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	actorID, _ := httpx.UserIDFromContext(ctx)
	if err := h.UserService.DeleteUser(ctx, r.PathValue("id"), actorID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			authsdk.ErrNotFoundResource.WriteError(w)
		default:
			log.Error("failed to delete user", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
