package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockpile-ims/stockpile/internal/platform/httpx"
	"github.com/stockpile-ims/stockpile/internal/shared"
)

// PermissionsPort resolves the effective permission snapshot for a user.
type PermissionsPort interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}

// Handler exposes authentication endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	sessions    *shared.SessionManager
	csrf        *shared.CSRFManager
	permissions PermissionsPort
	validate    *validator.Validate
}

// NewHandler constructs the auth HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, permissions PermissionsPort) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		sessions:    sessions,
		csrf:        csrf,
		permissions: permissions,
		validate:    validator.New(),
	}
}

// MountRoutes registers authentication routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/auth/login", h.login)
	r.Post("/auth/logout", h.logout)
	r.Get("/me", h.me)
	r.Get("/me/permissions", h.mePermissions)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email and password are required")
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.UserSafeMessage(shared.ErrInvalidCredentials))
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	if _, err := h.csrf.EnsureToken(r.Context(), sess); err != nil {
		h.logger.Warn("issue csrf token", slog.Any("error", err))
	}
	expires := time.Now().Add(h.sessions.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expires, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"user":       toUserResponse(user),
		"csrf_token": sess.Get(shared.CSRFSessionKey),
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessions.Destroy(sess)
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	user, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	// Returning clients re-fetch their CSRF token here after a page reload.
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if token, err := h.csrf.EnsureToken(r.Context(), sess); err == nil {
			w.Header().Set(shared.CSRFHeader, token)
		}
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(user))
}

// mePermissions recomputes the effective permission set on every call so a
// client refresh always observes current grants.
func (h *Handler) mePermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	perms, err := h.permissions.EffectivePermissions(r.Context(), userID)
	if err != nil {
		h.logger.Error("effective permissions", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if perms == nil {
		perms = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func toUserResponse(u *User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name, IsActive: u.IsActive}
}
