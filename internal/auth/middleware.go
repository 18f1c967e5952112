package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gigboard/gigboard/internal/audit"
	"github.com/gigboard/gigboard/internal/platform/httpx"
	"github.com/gigboard/gigboard/internal/rbac"
	"github.com/gigboard/gigboard/internal/sessions"
	"github.com/gigboard/gigboard/internal/shared"
)

// Middleware validates the tracked session on every authenticated request
// and resolves the acting user into the request context.
type Middleware struct {
	logger         *slog.Logger
	sessions       *sessions.Service
	sessionManager *shared.SessionManager
	store          UserStore
}

func NewMiddleware(logger *slog.Logger, sessionSvc *sessions.Service, manager *shared.SessionManager, store UserStore) *Middleware {
	return &Middleware{
		logger:         logger,
		sessions:       sessionSvc,
		sessionManager: manager,
		store:          store,
	}
}

// RequireSession rejects requests whose session is missing, revoked or
// expired. A live session has its activity timestamp advanced; a dead one
// never comes back, whatever the cookie says.
func (m *Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
			return
		}
		userID, err := strconv.ParseInt(sess.User(), 10, 64)
		if err != nil {
			m.sessionManager.Destroy(sess)
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
			return
		}

		meta := audit.ClientMeta{IPAddress: r.RemoteAddr, UserAgent: r.UserAgent()}
		tracked, err := m.sessions.Touch(r.Context(), sess.ID, meta)
		if err != nil {
			m.sessionManager.Destroy(sess)
			switch {
			case errors.Is(err, shared.ErrExpired):
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Session expired")
			case errors.Is(err, shared.ErrAlreadyResolved), errors.Is(err, shared.ErrNotFound):
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Session revoked")
			default:
				m.logger.Error("touch session", slog.Any("error", err))
				httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "")
			}
			return
		}
		if tracked.UserID != userID {
			m.sessionManager.Destroy(sess)
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
			return
		}

		user, err := m.store.GetUser(r.Context(), userID)
		if err != nil {
			m.sessionManager.Destroy(sess)
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
			return
		}
		if user.Status == rbac.StatusDeleted {
			m.sessionManager.Destroy(sess)
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
			return
		}

		ctx := rbac.ContextWithActor(r.Context(), user.Actor())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
