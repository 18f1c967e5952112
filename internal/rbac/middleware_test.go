package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, mw func(http.Handler) http.Handler, actor *Actor) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	if actor != nil {
		req = req.WithContext(ContextWithActor(req.Context(), *actor))
	}
	res := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(res, req)
	return res.Code
}

func TestRequirePermissionWithoutActor(t *testing.T) {
	mw := Middleware{}.RequirePermission(PermViewUserList)
	if code := doRequest(t, mw, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRequirePermissionDeniesSuspendedAccount(t *testing.T) {
	mw := Middleware{}.RequirePermission(PermViewUserList)
	actor := Actor{ID: 1, Role: RoleOwner, Status: StatusSuspended}
	if code := doRequest(t, mw, &actor); code != http.StatusForbidden {
		t.Fatalf("expected 403 for suspended owner, got %d", code)
	}
}

func TestRequirePermissionGrantsAndDenies(t *testing.T) {
	mw := Middleware{}.RequirePermission(PermViewUserList)

	assistant := Actor{ID: 2, Role: RoleAssistant, Status: StatusActive}
	if code := doRequest(t, mw, &assistant); code != http.StatusOK {
		t.Fatalf("expected 200 for assistant, got %d", code)
	}

	viewer := Actor{ID: 3, Role: RoleViewer, Status: StatusActive}
	if code := doRequest(t, mw, &viewer); code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer, got %d", code)
	}
}

func TestRequireRoleAtLeast(t *testing.T) {
	mw := Middleware{}.RequireRoleAtLeast(RoleAssistant)

	owner := Actor{ID: 1, Role: RoleOwner, Status: StatusActive}
	if code := doRequest(t, mw, &owner); code != http.StatusOK {
		t.Fatalf("expected 200 for owner, got %d", code)
	}

	viewer := Actor{ID: 3, Role: RoleViewer, Status: StatusActive}
	if code := doRequest(t, mw, &viewer); code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer, got %d", code)
	}
}

func TestRequireAnyPermission(t *testing.T) {
	mw := Middleware{}.RequireAnyPermission(PermDeleteUsers, PermReadAllData)

	assistant := Actor{ID: 2, Role: RoleAssistant, Status: StatusActive}
	if code := doRequest(t, mw, &assistant); code != http.StatusOK {
		t.Fatalf("expected 200 for assistant holding READ_ALL_DATA, got %d", code)
	}

	viewer := Actor{ID: 3, Role: RoleViewer, Status: StatusActive}
	if code := doRequest(t, mw, &viewer); code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer, got %d", code)
	}
}

func doRouteRequest(t *testing.T, mw func(http.Handler) http.Handler, path string, actor Actor) int {
	t.Helper()
	r := chi.NewRouter()
	r.With(mw).Get("/sessions/user/{userID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = req.WithContext(ContextWithActor(req.Context(), actor))
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
	return res.Code
}

func TestRequireSelfOrPermission(t *testing.T) {
	mw := Middleware{}.RequireSelfOrPermission(PermViewSessionLogs)

	viewer := Actor{ID: 3, Role: RoleViewer, Status: StatusActive}
	if code := doRouteRequest(t, mw, "/sessions/user/3", viewer); code != http.StatusOK {
		t.Fatalf("expected 200 for viewer on own resource, got %d", code)
	}
	if code := doRouteRequest(t, mw, "/sessions/user/2", viewer); code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer on foreign resource, got %d", code)
	}
	if code := doRouteRequest(t, mw, "/sessions/user/abc", viewer); code != http.StatusForbidden {
		t.Fatalf("expected 403 for malformed user id, got %d", code)
	}

	owner := Actor{ID: 1, Role: RoleOwner, Status: StatusActive}
	if code := doRouteRequest(t, mw, "/sessions/user/3", owner); code != http.StatusOK {
		t.Fatalf("expected 200 for owner on foreign resource, got %d", code)
	}
}
