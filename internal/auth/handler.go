package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gigboard/gigboard/internal/audit"
	"github.com/gigboard/gigboard/internal/platform/httpx"
	"github.com/gigboard/gigboard/internal/rbac"
	"github.com/gigboard/gigboard/internal/sessions"
	"github.com/gigboard/gigboard/internal/shared"
	"github.com/gigboard/gigboard/internal/users"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessions       *sessions.Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validate       *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessionSvc *sessions.Service, manager *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		sessions:       sessionSvc,
		sessionManager: manager,
		csrfManager:    csrf,
		validate:       validator.New(),
	}
}

// MountPublicRoutes registers the login endpoint.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/login", h.login)
}

// MountRoutes registers endpoints that need an authenticated session.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
	Role      string `json:"role"`
	CSRFToken string `json:"csrfToken,omitempty"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	sess.SetUser(strconv.FormatInt(user.ID, 10))

	meta := audit.ClientMeta{IPAddress: r.RemoteAddr, UserAgent: r.UserAgent()}
	if _, err := h.sessions.Create(r.Context(), user, sess.ID, meta); err != nil {
		h.logger.Error("register session", slog.Int64("user_id", user.ID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}

	csrfToken, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Warn("issue csrf token", slog.Any("error", err))
	}

	httpx.JSON(w, http.StatusOK, loginResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      string(user.Role),
		CSRFToken: csrfToken,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if actor, ok := rbac.ActorFromContext(r.Context()); ok {
		meta := audit.ClientMeta{IPAddress: r.RemoteAddr, UserAgent: r.UserAgent()}
		if err := h.sessions.Revoke(r.Context(), actor, sess.ID, meta); err != nil {
			h.logger.Warn("revoke session on logout", slog.Any("error", err))
		}
	}
	h.sessionManager.Destroy(sess)
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
		return
	}
	user, err := h.service.store.GetUser(r.Context(), actor.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, meResponse(user))
}

type meView struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FullName    string     `json:"fullName"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	Permissions []string   `json:"permissions"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func meResponse(u *users.User) meView {
	perms := rbac.PermissionsOf(u.Role)
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}
	return meView{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		Role:        string(u.Role),
		Status:      string(u.Status),
		Permissions: out,
		LastLoginAt: u.LastLoginAt,
	}
}
