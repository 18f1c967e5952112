package invitations

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
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    rbac.Middleware
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		guard:    guard,
		validate: validator.New(),
	}
}

// MountRoutes registers the authenticated management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequirePermission(rbac.PermCreateInvitations)).Post("/", h.create)
	r.With(h.guard.RequirePermission(rbac.PermCreateInvitations)).Get("/", h.listPending)
	r.Get("/mine", h.listMine)
	r.With(h.guard.RequirePermission(rbac.PermRevokeInvitations)).Delete("/{invitationID}", h.revoke)
}

// MountPublicRoutes registers the acceptance flow, reachable without a
// session: the invitee does not have an account yet.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Get("/{token}", h.inspect)
	r.Post("/{token}/accept", h.accept)
}

type invitationResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	InvitedBy int64     `json:"invitedBy"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func toInvitationResponse(inv *Invitation, now time.Time) invitationResponse {
	return invitationResponse{
		ID:        inv.ID,
		Email:     inv.Email,
		Role:      string(inv.Role),
		Status:    inv.Status(now),
		InvitedBy: inv.InvitedBy,
		CreatedAt: inv.CreatedAt,
		ExpiresAt: inv.ExpiresAt,
	}
}

type createRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=OWNER ASSISTANT VIEWER"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Create(r.Context(), actor, req.Email, role, clientMeta(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvitationResponse(inv, time.Now()))
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
		return
	}
	list, err := h.service.ListPending(r.Context(), actor)
	if err != nil {
		h.logger.Error("list pending invitations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	now := time.Now()
	out := make([]invitationResponse, 0, len(list))
	for i := range list {
		out = append(out, toInvitationResponse(&list[i], now))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invitations": out})
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
		return
	}
	list, err := h.service.ListMine(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	now := time.Now()
	out := make([]invitationResponse, 0, len(list))
	for i := range list {
		out = append(out, toInvitationResponse(&list[i], now))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invitations": out})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "invitationID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Invalid invitation id")
		return
	}
	if err := h.service.Revoke(r.Context(), actor, id, clientMeta(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handler) inspect(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Inspect(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	// The token holder already knows the token; never echo it back anyway.
	httpx.JSON(w, http.StatusOK, map[string]any{
		"email":     inv.Email,
		"role":      string(inv.Role),
		"expiresAt": inv.ExpiresAt,
	})
}

type acceptRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	FullName string `json:"fullName" validate:"max=128"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.Accept(r.Context(), chi.URLParam(r, "token"), AcceptParams{
		Username: req.Username,
		FullName: req.FullName,
		Password: req.Password,
	}, clientMeta(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
		"role":     string(user.Role),
	})
}

func clientMeta(r *http.Request) audit.ClientMeta {
	return audit.ClientMeta{IPAddress: r.RemoteAddr, UserAgent: r.UserAgent()}
}
