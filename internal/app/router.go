package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gigboard/gigboard/internal/audit"
	"github.com/gigboard/gigboard/internal/auth"
	"github.com/gigboard/gigboard/internal/invitations"
	"github.com/gigboard/gigboard/internal/observability"
	"github.com/gigboard/gigboard/internal/sessions"
	"github.com/gigboard/gigboard/internal/shared"
	"github.com/gigboard/gigboard/internal/users"
	"github.com/gigboard/gigboard/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler        *auth.Handler
	AuthMiddleware     *auth.Middleware
	UsersHandler       *users.Handler
	InvitationsHandler *invitations.Handler
	SessionsHandler    *sessions.Handler
	AuditHandler       *audit.Handler
	JobsHandler        *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router. Everything except login, invitation
// acceptance and the health endpoint sits behind the tracked-session check.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", func(r chi.Router) {
		params.AuthHandler.MountPublicRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.RequireSession)
			params.AuthHandler.MountRoutes(r)
		})
	})

	// Invite links land here; the invitee has no account yet.
	r.Route("/invites", params.InvitationsHandler.MountPublicRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.AuthMiddleware.RequireSession)

		r.Route("/users", params.UsersHandler.MountRoutes)
		r.Route("/invitations", params.InvitationsHandler.MountRoutes)
		r.Route("/sessions", params.SessionsHandler.MountRoutes)
		r.Route("/audit", params.AuditHandler.MountRoutes)
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
