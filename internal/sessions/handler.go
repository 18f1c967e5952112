package sessions

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gigboard/gigboard/internal/audit"
	"github.com/gigboard/gigboard/internal/platform/httpx"
	"github.com/gigboard/gigboard/internal/rbac"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers the session-log surface. The guard handles the
// self-or-permission split; the service repeats the check with the richer
// role comparison for revocations.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listOwn)
	r.With(h.guard.RequireSelfOrPermission(rbac.PermViewSessionLogs)).Get("/user/{userID}", h.listForUser)
	r.Delete("/{sessionID}", h.revoke)
	r.With(h.guard.RequireSelfOrPermission(rbac.PermRevokeSessions)).Delete("/user/{userID}", h.revokeAll)
}

type sessionResponse struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"userId"`
	SessionID      string     `json:"sessionId"`
	IPAddress      string     `json:"ipAddress,omitempty"`
	UserAgent      string     `json:"userAgent,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
	Live           bool       `json:"live"`
}

func toSessionResponses(list []UserSession) []sessionResponse {
	now := time.Now()
	out := make([]sessionResponse, 0, len(list))
	for i := range list {
		s := &list[i]
		out = append(out, sessionResponse{
			ID:             s.ID,
			UserID:         s.UserID,
			SessionID:      s.SessionID,
			IPAddress:      s.IPAddress,
			UserAgent:      s.UserAgent,
			CreatedAt:      s.CreatedAt,
			LastActivityAt: s.LastActivityAt,
			ExpiresAt:      s.ExpiresAt,
			RevokedAt:      s.RevokedAt,
			Live:           s.IsLive(now),
		})
	}
	return out
}

func (h *Handler) listOwn(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
		return
	}
	list, err := h.service.List(r.Context(), actor, actor.ID)
	if err != nil {
		h.logger.Error("list own sessions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sessions": toSessionResponses(list)})
}

func (h *Handler) listForUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
		return
	}
	targetID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Invalid user id")
		return
	}
	list, err := h.service.List(r.Context(), actor, targetID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sessions": toSessionResponses(list)})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.service.Revoke(r.Context(), actor, sessionID, clientMeta(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handler) revokeAll(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
		return
	}
	targetID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Invalid user id")
		return
	}
	n, err := h.service.RevokeAll(r.Context(), actor, targetID, r.URL.Query().Get("except"), clientMeta(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "revoked", "count": n})
}

func clientMeta(r *http.Request) audit.ClientMeta {
	return audit.ClientMeta{IPAddress: r.RemoteAddr, UserAgent: r.UserAgent()}
}
