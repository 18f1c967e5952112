package rbac

import (
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/gigboard/gigboard/internal/observability"
)

// Middleware wires authorization guards for HTTP handlers. The actor must
// already be resolved into the request context by the auth middleware.
type Middleware struct {
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// RequirePermission ensures the current actor is active and holds the
// permission.
func (m Middleware) RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return m.guard(string(perm), func(actor Actor, _ *http.Request) bool {
		return HasPermission(actor.Role, perm)
	})
}

// RequireAnyPermission ensures the current actor holds at least one of the
// required permissions.
func (m Middleware) RequireAnyPermission(perms ...Permission) func(http.Handler) http.Handler {
	return m.guard(permsLabel(perms), func(actor Actor, _ *http.Request) bool {
		return HasAnyPermission(actor.Role, perms...)
	})
}

// RequireAllPermissions ensures the current actor holds every required
// permission.
func (m Middleware) RequireAllPermissions(perms ...Permission) func(http.Handler) http.Handler {
	return m.guard(permsLabel(perms), func(actor Actor, _ *http.Request) bool {
		return HasAllPermissions(actor.Role, perms...)
	})
}

// RequireRoleAtLeast ensures the current actor's role outranks or equals
// minRole.
func (m Middleware) RequireRoleAtLeast(minRole Role) func(http.Handler) http.Handler {
	return m.guard("role:"+string(minRole), func(actor Actor, _ *http.Request) bool {
		return IsHigherOrEqualRole(actor.Role, minRole)
	})
}

// RequireSelfOrPermission allows the request when the {userID} path value
// matches the actor, or when the actor holds the permission. Routes with no
// user parameter default to self.
func (m Middleware) RequireSelfOrPermission(perm Permission) func(http.Handler) http.Handler {
	return m.guard(string(perm), func(actor Actor, r *http.Request) bool {
		raw := strings.TrimSpace(chi.URLParam(r, "userID"))
		if raw == "" {
			return true
		}
		targetID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return false
		}
		return actor.ID == targetID || HasPermission(actor.Role, perm)
	})
}

func (m Middleware) guard(label string, allow func(Actor, *http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if !actor.IsActive() {
				if m.Logger != nil {
					m.Logger.Warn("inactive account blocked", slog.Int64("user_id", actor.ID), slog.String("status", string(actor.Status)))
				}
				http.Error(w, "Account suspended", http.StatusForbidden)
				return
			}
			if !allow(actor, r) {
				m.Metrics.AuthzDenied(label)
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func permsLabel(perms []Permission) string {
	parts := make([]string, 0, len(perms))
	for _, p := range perms {
		parts = append(parts, string(p))
	}
	return strings.Join(parts, ",")
}
