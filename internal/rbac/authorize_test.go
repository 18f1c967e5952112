package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gigboard/gigboard/internal/shared"
)

func TestRoleOrdering(t *testing.T) {
	assert.True(t, IsHigherRole(RoleOwner, RoleAssistant))
	assert.True(t, IsHigherRole(RoleAssistant, RoleViewer))
	assert.True(t, IsHigherRole(RoleOwner, RoleViewer))
	assert.False(t, IsHigherRole(RoleViewer, RoleOwner))
	assert.False(t, IsHigherRole(RoleOwner, RoleOwner))

	assert.True(t, IsHigherOrEqualRole(RoleOwner, RoleOwner))
	assert.True(t, IsHigherOrEqualRole(RoleAssistant, RoleViewer))
	assert.False(t, IsHigherOrEqualRole(RoleViewer, RoleAssistant))
}

func TestCanAccessUserData(t *testing.T) {
	cases := []struct {
		name     string
		role     Role
		actorID  int64
		targetID int64
		want     bool
	}{
		{"owner reads anyone", RoleOwner, 1, 2, true},
		{"assistant reads anyone", RoleAssistant, 2, 1, true},
		{"viewer reads self", RoleViewer, 3, 3, true},
		{"viewer denied for others", RoleViewer, 3, 1, false},
		{"unknown role denied", Role("INTRUDER"), 4, 5, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanAccessUserData(tc.role, tc.actorID, tc.targetID))
		})
	}

	// Self-access holds for every role.
	for _, role := range Roles() {
		assert.True(t, CanAccessUserData(role, 7, 7), "self-access must hold for %s", role)
	}
}

func TestCanModifyUserData(t *testing.T) {
	cases := []struct {
		name       string
		role       Role
		actorID    int64
		targetID   int64
		targetRole Role
		want       bool
	}{
		{"self always allowed", RoleViewer, 3, 3, RoleViewer, true},
		{"owner modifies anyone", RoleOwner, 1, 3, RoleViewer, true},
		{"owner modifies another owner", RoleOwner, 1, 9, RoleOwner, true},
		{"assistant modifies viewer", RoleAssistant, 2, 3, RoleViewer, true},
		{"assistant modifies assistant", RoleAssistant, 2, 5, RoleAssistant, true},
		{"assistant never modifies owner", RoleAssistant, 2, 1, RoleOwner, false},
		{"viewer denied for others", RoleViewer, 3, 2, RoleViewer, false},
		{"unknown role denied", Role("INTRUDER"), 4, 5, RoleViewer, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanModifyUserData(tc.role, tc.actorID, tc.targetID, tc.targetRole))
		})
	}
}

func TestCanAssignRole(t *testing.T) {
	for _, target := range Roles() {
		assert.True(t, CanAssignRole(RoleOwner, target))
		assert.False(t, CanAssignRole(RoleAssistant, target), "assistant must not assign %s", target)
		assert.False(t, CanAssignRole(RoleViewer, target), "viewer must not assign %s", target)
	}
}

func TestHasAnyAndAllPermissions(t *testing.T) {
	assert.True(t, HasAnyPermission(RoleViewer, PermDeleteUsers, PermReadOwnData))
	assert.False(t, HasAnyPermission(RoleViewer, PermDeleteUsers, PermAssignRoles))
	assert.True(t, HasAllPermissions(RoleAssistant, PermReadAllData, PermExportData))
	assert.False(t, HasAllPermissions(RoleAssistant, PermReadAllData, PermDeleteUsers))
	assert.True(t, HasAllPermissions(RoleOwner))
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("OWNER")
	assert.NoError(t, err)
	assert.Equal(t, RoleOwner, role)

	for _, bad := range []string{"owner", "ADMIN", "", "OWNER "} {
		_, err := ParseRole(bad)
		assert.True(t, errors.Is(err, shared.ErrValidation), "ParseRole(%q) must fail validation", bad)
	}
}

func TestParseUserStatus(t *testing.T) {
	status, err := ParseUserStatus("SUSPENDED")
	assert.NoError(t, err)
	assert.Equal(t, StatusSuspended, status)

	_, err = ParseUserStatus("PAUSED")
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestActorIsActive(t *testing.T) {
	assert.True(t, Actor{ID: 1, Role: RoleOwner, Status: StatusActive}.IsActive())
	assert.False(t, Actor{ID: 1, Role: RoleOwner, Status: StatusSuspended}.IsActive())
	assert.False(t, Actor{ID: 1, Role: RoleOwner, Status: StatusDeleted}.IsActive())
}

func TestRoleDisplay(t *testing.T) {
	assert.Equal(t, "Owner", RoleOwner.DisplayName())
	assert.Equal(t, "Viewer", RoleViewer.DisplayName())
	assert.Equal(t, "Active", StatusActive.DisplayName())
	assert.NotEmpty(t, RoleAssistant.Description())
}
