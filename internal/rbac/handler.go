package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockpile-ims/stockpile/internal/platform/httpx"
	"github.com/stockpile-ims/stockpile/internal/shared"
)

// RoleStore abstracts role administration for the HTTP layer.
type RoleStore interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
}

// Handler exposes role administration endpoints.
type Handler struct {
	logger *slog.Logger
	store  RoleStore
	rbac   Middleware
}

// NewHandler constructs the role administration HTTP handler.
func NewHandler(logger *slog.Logger, store RoleStore, rbacMW Middleware) *Handler {
	return &Handler{logger: logger, store: store, rbac: rbacMW}
}

// MountRoutes registers role administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	guard := h.rbac.RequireAny(shared.PermRoleManage)
	r.With(guard).Get("/", h.list)
	r.With(guard).Get("/permissions", h.permissions)
	r.With(guard).Get("/{id}", h.get)
	r.With(guard).Post("/{id}/assign", h.assign)
	r.With(guard).Delete("/{id}/assign/{userID}", h.unassign)
}

type roleResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type permissionResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type assignForm struct {
	UserID int64 `json:"user_id"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	items := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		items = append(items, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	role, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("get role", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) permissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.store.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	items := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		items = append(items, permissionResponse{ID: p.ID, Name: p.Name, Description: p.Description})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	roleID, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var form assignForm
	if err := httpx.DecodeJSON(r, &form); err != nil || form.UserID <= 0 {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	// Reject assignments against unknown roles up front.
	if _, err := h.store.GetRole(r.Context(), roleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("get role", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if err := h.store.AssignRole(r.Context(), form.UserID, roleID); err != nil {
		h.logger.Error("assign role", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unassign(w http.ResponseWriter, r *http.Request) {
	roleID, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	userID, ok := parseID(chi.URLParam(r, "userID"))
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.store.RemoveRole(r.Context(), userID, roleID); err != nil {
		h.logger.Error("remove role", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
