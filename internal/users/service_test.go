package users

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigboard/gigboard/internal/audit"
	"github.com/gigboard/gigboard/internal/rbac"
	"github.com/gigboard/gigboard/internal/shared"
)

type stubStore struct {
	users map[int64]*User

	roleEntries   []audit.Entry
	statusEntries []audit.Entry
	failMutation  error
}

func newStubStore(us ...*User) *stubStore {
	s := &stubStore{users: make(map[int64]*User)}
	for _, u := range us {
		s.users[u.ID] = u
	}
	return s
}

func (s *stubStore) GetUser(_ context.Context, id int64) (*User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *stubStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubStore) ListUsers(_ context.Context, _, _ int) ([]User, error) {
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out, nil
}

func (s *stubStore) CreateUser(_ context.Context, nu NewUser, _ audit.Entry) (*User, error) {
	u := &User{ID: int64(len(s.users) + 1), Username: nu.Username, Email: nu.Email, Role: nu.Role, Status: rbac.StatusActive}
	s.users[u.ID] = u
	return u, nil
}

func (s *stubStore) UpdateUserRole(_ context.Context, id int64, role rbac.Role, entry audit.Entry) error {
	if s.failMutation != nil {
		return s.failMutation
	}
	u, ok := s.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.Role = role
	s.roleEntries = append(s.roleEntries, entry)
	return nil
}

func (s *stubStore) UpdateUserStatus(_ context.Context, id int64, status rbac.UserStatus, entry audit.Entry) error {
	if s.failMutation != nil {
		return s.failMutation
	}
	u, ok := s.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.Status = status
	s.statusEntries = append(s.statusEntries, entry)
	return nil
}

func (s *stubStore) TouchLastLogin(_ context.Context, _ int64) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activeUser(id int64, role rbac.Role) *User {
	return &User{ID: id, Username: "user", Email: "user@example.com", Role: role, Status: rbac.StatusActive}
}

func TestGetSelfAlwaysAllowed(t *testing.T) {
	viewer := activeUser(3, rbac.RoleViewer)
	svc := NewService(newStubStore(viewer), testLogger())

	got, err := svc.Get(context.Background(), viewer.Actor(), viewer.ID)
	require.NoError(t, err)
	assert.Equal(t, viewer.ID, got.ID)
}

func TestGetViewerCannotReadOthers(t *testing.T) {
	viewer := activeUser(3, rbac.RoleViewer)
	other := activeUser(4, rbac.RoleViewer)
	svc := NewService(newStubStore(viewer, other), testLogger())

	_, err := svc.Get(context.Background(), viewer.Actor(), other.ID)
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestGetOwnerReadsAnyone(t *testing.T) {
	owner := activeUser(1, rbac.RoleOwner)
	viewer := activeUser(3, rbac.RoleViewer)
	svc := NewService(newStubStore(owner, viewer), testLogger())

	got, err := svc.Get(context.Background(), owner.Actor(), viewer.ID)
	require.NoError(t, err)
	assert.Equal(t, viewer.ID, got.ID)
}

func TestChangeRoleOwnerOnly(t *testing.T) {
	owner := activeUser(1, rbac.RoleOwner)
	assistant := activeUser(2, rbac.RoleAssistant)
	viewer := activeUser(3, rbac.RoleViewer)

	for _, actor := range []*User{assistant, viewer} {
		store := newStubStore(owner, assistant, viewer)
		svc := NewService(store, testLogger())
		err := svc.ChangeRole(context.Background(), actor.Actor(), viewer.ID, rbac.RoleAssistant, audit.ClientMeta{})
		assert.ErrorIs(t, err, shared.ErrForbidden, "role %s must not assign roles", actor.Role)
		assert.Empty(t, store.roleEntries)
	}
}

func TestChangeRoleWritesAuditEntry(t *testing.T) {
	owner := activeUser(1, rbac.RoleOwner)
	viewer := activeUser(3, rbac.RoleViewer)
	store := newStubStore(owner, viewer)
	svc := NewService(store, testLogger())

	err := svc.ChangeRole(context.Background(), owner.Actor(), viewer.ID, rbac.RoleAssistant, audit.ClientMeta{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	require.Len(t, store.roleEntries, 1)

	entry := store.roleEntries[0]
	assert.Equal(t, audit.ActionRoleChanged, entry.Action)
	require.NotNil(t, entry.ActorUserID)
	assert.Equal(t, owner.ID, *entry.ActorUserID)
	require.NotNil(t, entry.TargetUserID)
	assert.Equal(t, viewer.ID, *entry.TargetUserID)
	assert.Equal(t, "VIEWER", entry.Meta["from"])
	assert.Equal(t, "ASSISTANT", entry.Meta["to"])
	assert.Equal(t, "10.0.0.1", entry.IPAddress)
	assert.Equal(t, rbac.RoleAssistant, store.users[viewer.ID].Role)
}

func TestChangeRoleNoopWhenUnchanged(t *testing.T) {
	owner := activeUser(1, rbac.RoleOwner)
	viewer := activeUser(3, rbac.RoleViewer)
	store := newStubStore(owner, viewer)
	svc := NewService(store, testLogger())

	err := svc.ChangeRole(context.Background(), owner.Actor(), viewer.ID, rbac.RoleViewer, audit.ClientMeta{})
	require.NoError(t, err)
	assert.Empty(t, store.roleEntries)
}

func TestChangeRoleUnknownTarget(t *testing.T) {
	owner := activeUser(1, rbac.RoleOwner)
	svc := NewService(newStubStore(owner), testLogger())

	err := svc.ChangeRole(context.Background(), owner.Actor(), 99, rbac.RoleViewer, audit.ClientMeta{})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestChangeRoleSuspendedActorDenied(t *testing.T) {
	owner := activeUser(1, rbac.RoleOwner)
	owner.Status = rbac.StatusSuspended
	viewer := activeUser(3, rbac.RoleViewer)
	svc := NewService(newStubStore(owner, viewer), testLogger())

	err := svc.ChangeRole(context.Background(), owner.Actor(), viewer.ID, rbac.RoleAssistant, audit.ClientMeta{})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestChangeStatusPermissionPerTransition(t *testing.T) {
	owner := activeUser(1, rbac.RoleOwner)
	assistant := activeUser(2, rbac.RoleAssistant)
	viewer := activeUser(3, rbac.RoleViewer)

	// Assistants lack SUSPEND_USERS and DELETE_USERS.
	for _, status := range []rbac.UserStatus{rbac.StatusSuspended, rbac.StatusDeleted} {
		store := newStubStore(owner, assistant, viewer)
		svc := NewService(store, testLogger())
		err := svc.ChangeStatus(context.Background(), assistant.Actor(), viewer.ID, status, audit.ClientMeta{})
		assert.ErrorIs(t, err, shared.ErrForbidden, "assistant must not set %s", status)
		assert.Empty(t, store.statusEntries)
	}
}

func TestChangeStatusSuspendWritesAudit(t *testing.T) {
	owner := activeUser(1, rbac.RoleOwner)
	assistant := activeUser(2, rbac.RoleAssistant)
	store := newStubStore(owner, assistant)
	svc := NewService(store, testLogger())

	err := svc.ChangeStatus(context.Background(), owner.Actor(), assistant.ID, rbac.StatusSuspended, audit.ClientMeta{})
	require.NoError(t, err)
	require.Len(t, store.statusEntries, 1)
	assert.Equal(t, audit.ActionUserSuspended, store.statusEntries[0].Action)
	assert.Equal(t, rbac.StatusSuspended, store.users[assistant.ID].Status)
}

func TestChangeStatusReactivate(t *testing.T) {
	owner := activeUser(1, rbac.RoleOwner)
	assistant := activeUser(2, rbac.RoleAssistant)
	assistant.Status = rbac.StatusSuspended
	store := newStubStore(owner, assistant)
	svc := NewService(store, testLogger())

	err := svc.ChangeStatus(context.Background(), owner.Actor(), assistant.ID, rbac.StatusActive, audit.ClientMeta{})
	require.NoError(t, err)
	require.Len(t, store.statusEntries, 1)
	assert.Equal(t, audit.ActionUserReactivated, store.statusEntries[0].Action)
	assert.Equal(t, rbac.StatusActive, store.users[assistant.ID].Status)
}

func TestChangeStatusSelfLockoutDenied(t *testing.T) {
	owner := activeUser(1, rbac.RoleOwner)
	store := newStubStore(owner)
	svc := NewService(store, testLogger())

	err := svc.ChangeStatus(context.Background(), owner.Actor(), owner.ID, rbac.StatusSuspended, audit.ClientMeta{})
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Empty(t, store.statusEntries)
}

func TestChangeStatusUnknownStatus(t *testing.T) {
	owner := activeUser(1, rbac.RoleOwner)
	svc := NewService(newStubStore(owner), testLogger())

	err := svc.ChangeStatus(context.Background(), owner.Actor(), owner.ID, rbac.UserStatus("FROZEN"), audit.ClientMeta{})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestMutationFailureSurfaces(t *testing.T) {
	owner := activeUser(1, rbac.RoleOwner)
	viewer := activeUser(3, rbac.RoleViewer)
	store := newStubStore(owner, viewer)
	store.failMutation = errors.New("store down")
	svc := NewService(store, testLogger())

	err := svc.ChangeRole(context.Background(), owner.Actor(), viewer.ID, rbac.RoleAssistant, audit.ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, rbac.RoleViewer, store.users[viewer.ID].Role)
}
