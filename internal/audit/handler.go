package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gigboard/gigboard/internal/platform/httpx"
	"github.com/gigboard/gigboard/internal/rbac"
)

// Handler exposes the read-only audit query surface.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(rbac.PermViewAuditLogs))
		r.Get("/", h.list)
	})
}

type entryResponse struct {
	ID           int64          `json:"id"`
	ActorUserID  *int64         `json:"actorUserId"`
	TargetUserID *int64         `json:"targetUserId"`
	Action       string         `json:"action"`
	Resource     string         `json:"resource,omitempty"`
	ResourceID   string         `json:"resourceId,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type listResponse struct {
	Entries []entryResponse `json:"entries"`
	Paging  PagingInfo      `json:"paging"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list audit entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	entries := make([]entryResponse, 0, len(result.Entries))
	for _, e := range result.Entries {
		entries = append(entries, entryResponse{
			ID:           e.ID,
			ActorUserID:  e.ActorUserID,
			TargetUserID: e.TargetUserID,
			Action:       string(e.Action),
			Resource:     e.Resource,
			ResourceID:   e.ResourceID,
			Meta:         e.Meta,
			IPAddress:    e.IPAddress,
			UserAgent:    e.UserAgent,
			CreatedAt:    e.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, listResponse{Entries: entries, Paging: result.Paging})
}

func parseFilters(r *http.Request) (Filters, error) {
	q := r.URL.Query()
	var filters Filters
	if raw := q.Get("actor"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Filters{}, err
		}
		filters.ActorUserID = &id
	}
	if raw := q.Get("target"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Filters{}, err
		}
		filters.TargetUserID = &id
	}
	filters.Action = Action(q.Get("action"))
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Filters{}, err
		}
		filters.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Filters{}, err
		}
		filters.To = t
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	return filters, nil
}
