package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigboard/gigboard/internal/audit"
	"github.com/gigboard/gigboard/internal/rbac"
	"github.com/gigboard/gigboard/internal/sessions"
	"github.com/gigboard/gigboard/internal/shared"
	"github.com/gigboard/gigboard/internal/users"
	_ "github.com/gigboard/gigboard/testing"
)

type trackedStore struct {
	rows    map[string]*sessions.UserSession
	entries []audit.Entry
}

func newTrackedStore() *trackedStore {
	return &trackedStore{rows: make(map[string]*sessions.UserSession)}
}

func (s *trackedStore) CreateSession(_ context.Context, sess sessions.UserSession, entry audit.Entry) (*sessions.UserSession, error) {
	sess.CreatedAt = time.Now().UTC()
	sess.LastActivityAt = sess.CreatedAt
	s.rows[sess.SessionID] = &sess
	s.entries = append(s.entries, entry)
	cp := sess
	return &cp, nil
}

func (s *trackedStore) GetBySessionID(_ context.Context, sessionID string) (*sessions.UserSession, error) {
	row, ok := s.rows[sessionID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *trackedStore) ListForUser(_ context.Context, userID int64) ([]sessions.UserSession, error) {
	var out []sessions.UserSession
	for _, row := range s.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *trackedStore) TouchSession(_ context.Context, sessionID string, now time.Time, _ audit.ClientMeta) (*sessions.UserSession, error) {
	row, ok := s.rows[sessionID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	if row.RevokedAt != nil {
		return nil, shared.ErrAlreadyResolved
	}
	if !now.Before(row.ExpiresAt) {
		at := now
		row.RevokedAt = &at
		return nil, shared.ErrExpired
	}
	if now.After(row.LastActivityAt) {
		row.LastActivityAt = now
	}
	cp := *row
	return &cp, nil
}

func (s *trackedStore) RevokeSession(_ context.Context, sessionID string, now time.Time, entry audit.Entry) error {
	row, ok := s.rows[sessionID]
	if !ok {
		return shared.ErrNotFound
	}
	if row.RevokedAt != nil {
		return shared.ErrAlreadyResolved
	}
	at := now
	row.RevokedAt = &at
	s.entries = append(s.entries, entry)
	return nil
}

func (s *trackedStore) RevokeAllForUser(_ context.Context, userID int64, exceptSessionID string, now time.Time, entry audit.Entry) (int64, error) {
	var n int64
	for _, row := range s.rows {
		if row.UserID == userID && row.RevokedAt == nil && row.SessionID != exceptSessionID {
			at := now
			row.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (s *trackedStore) ExpireStale(_ context.Context, _ time.Time) (int64, error) { return 0, nil }

func (s *trackedStore) DeleteTerminatedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type middlewareFixture struct {
	users   *stubUserStore
	tracked *trackedStore
	mw      *Middleware
}

func newMiddlewareFixture(t *testing.T) *middlewareFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	manager := shared.NewSessionManager(client, "gigboard_session", "secret", time.Hour, false)

	userStore := newStubUserStore(
		&users.User{ID: 1, Email: "owner@example.com", Role: rbac.RoleOwner, Status: rbac.StatusActive},
		&users.User{ID: 3, Email: "viewer@example.com", Role: rbac.RoleViewer, Status: rbac.StatusActive},
	)
	tracked := newTrackedStore()
	sessionSvc := sessions.NewService(tracked, userStore, discardLogger(), time.Hour)

	return &middlewareFixture{
		users:   userStore,
		tracked: tracked,
		mw:      NewMiddleware(discardLogger(), sessionSvc, manager, userStore),
	}
}

func requestWithSession(sessionID, userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	sess := &shared.Session{ID: sessionID}
	if userID != "" {
		sess.SetUser(userID)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func actorEcho(t *testing.T, captured *rbac.Actor) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := rbac.ActorFromContext(r.Context())
		require.True(t, ok, "actor must be resolved")
		*captured = actor
		w.WriteHeader(http.StatusOK)
	})
}

func trackRow(f *middlewareFixture, sessionID string, userID int64, expiresAt time.Time) {
	f.tracked.rows[sessionID] = &sessions.UserSession{
		UserID:         userID,
		SessionID:      sessionID,
		LastActivityAt: time.Now().Add(-time.Minute),
		ExpiresAt:      expiresAt,
	}
}

func TestRequireSessionWithoutSession(t *testing.T) {
	f := newMiddlewareFixture(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)

	f.mw.RequireSession(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSessionAnonymousCookie(t *testing.T) {
	f := newMiddlewareFixture(t)
	rec := httptest.NewRecorder()

	f.mw.RequireSession(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rec, requestWithSession("sess-1", ""))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSessionResolvesActor(t *testing.T) {
	f := newMiddlewareFixture(t)
	trackRow(f, "sess-1", 1, time.Now().Add(time.Hour))

	var actor rbac.Actor
	rec := httptest.NewRecorder()
	f.mw.RequireSession(actorEcho(t, &actor)).ServeHTTP(rec, requestWithSession("sess-1", "1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), actor.ID)
	assert.Equal(t, rbac.RoleOwner, actor.Role)
}

func TestRequireSessionTouchAdvancesActivity(t *testing.T) {
	f := newMiddlewareFixture(t)
	trackRow(f, "sess-1", 1, time.Now().Add(time.Hour))
	before := f.tracked.rows["sess-1"].LastActivityAt

	var actor rbac.Actor
	rec := httptest.NewRecorder()
	f.mw.RequireSession(actorEcho(t, &actor)).ServeHTTP(rec, requestWithSession("sess-1", "1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.tracked.rows["sess-1"].LastActivityAt.After(before))
}

func TestRequireSessionRevoked(t *testing.T) {
	f := newMiddlewareFixture(t)
	trackRow(f, "sess-1", 1, time.Now().Add(time.Hour))
	at := time.Now()
	f.tracked.rows["sess-1"].RevokedAt = &at

	rec := httptest.NewRecorder()
	f.mw.RequireSession(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("revoked session must not pass")
	})).ServeHTTP(rec, requestWithSession("sess-1", "1"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Session revoked")
}

func TestRequireSessionExpiredAutoTerminates(t *testing.T) {
	f := newMiddlewareFixture(t)
	trackRow(f, "sess-1", 1, time.Now().Add(-time.Minute))

	rec := httptest.NewRecorder()
	f.mw.RequireSession(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("expired session must not pass")
	})).ServeHTTP(rec, requestWithSession("sess-1", "1"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Session expired")
	assert.NotNil(t, f.tracked.rows["sess-1"].RevokedAt, "expired session is terminated on contact")
}

func TestRequireSessionUnknownTrackedRow(t *testing.T) {
	f := newMiddlewareFixture(t)

	rec := httptest.NewRecorder()
	f.mw.RequireSession(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("untracked session must not pass")
	})).ServeHTTP(rec, requestWithSession("sess-unknown", "1"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSessionDeletedUser(t *testing.T) {
	f := newMiddlewareFixture(t)
	f.users.byID[3].Status = rbac.StatusDeleted
	trackRow(f, "sess-3", 3, time.Now().Add(time.Hour))

	rec := httptest.NewRecorder()
	f.mw.RequireSession(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("deleted user must not pass")
	})).ServeHTTP(rec, requestWithSession("sess-3", "3"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSessionUserMismatch(t *testing.T) {
	f := newMiddlewareFixture(t)
	trackRow(f, "sess-1", 1, time.Now().Add(time.Hour))

	rec := httptest.NewRecorder()
	f.mw.RequireSession(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("mismatched session must not pass")
	})).ServeHTTP(rec, requestWithSession("sess-1", "3"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
