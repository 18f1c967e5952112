package rbac

import (
	"fmt"

	"github.com/gigboard/gigboard/internal/shared"
)

// Permission is one of a closed set of atomic capabilities.
type Permission string

const (
	// User management
	PermCreateInvitations Permission = "CREATE_INVITATIONS"
	PermRevokeInvitations Permission = "REVOKE_INVITATIONS"
	PermManageUsers       Permission = "MANAGE_USERS"
	PermSuspendUsers      Permission = "SUSPEND_USERS"
	PermDeleteUsers       Permission = "DELETE_USERS"
	PermViewUserList      Permission = "VIEW_USER_LIST"

	// Role management
	PermAssignRoles Permission = "ASSIGN_ROLES"
	PermChangeRoles Permission = "CHANGE_ROLES"

	// Session management
	PermRevokeSessions  Permission = "REVOKE_SESSIONS"
	PermViewSessionLogs Permission = "VIEW_SESSION_LOGS"

	// Data access
	PermReadAllData   Permission = "READ_ALL_DATA"
	PermModifyAllData Permission = "MODIFY_ALL_DATA"
	PermDeleteAllData Permission = "DELETE_ALL_DATA"

	// System administration
	PermViewAuditLogs  Permission = "VIEW_AUDIT_LOGS"
	PermSystemSettings Permission = "SYSTEM_SETTINGS"
	PermExportData     Permission = "EXPORT_DATA"

	// Personal data
	PermReadOwnData   Permission = "READ_OWN_DATA"
	PermModifyOwnData Permission = "MODIFY_OWN_DATA"

	// Collaboration
	PermCollaborate    Permission = "COLLABORATE"
	PermShareResources Permission = "SHARE_RESOURCES"
)

// RolePermissions maps each role to its capability set. Each set is an
// explicit literal: OWNER is not derived from ASSISTANT at runtime, so the
// owner-only destructive capabilities (DELETE_USERS, ASSIGN_ROLES,
// SYSTEM_SETTINGS) can never leak downward through a derivation bug.
var RolePermissions = map[Role][]Permission{
	RoleOwner: {
		PermCreateInvitations,
		PermRevokeInvitations,
		PermManageUsers,
		PermSuspendUsers,
		PermDeleteUsers,
		PermViewUserList,
		PermAssignRoles,
		PermChangeRoles,
		PermRevokeSessions,
		PermViewSessionLogs,
		PermReadAllData,
		PermModifyAllData,
		PermDeleteAllData,
		PermViewAuditLogs,
		PermSystemSettings,
		PermExportData,
		PermReadOwnData,
		PermModifyOwnData,
		PermCollaborate,
		PermShareResources,
	},
	RoleAssistant: {
		PermViewUserList,
		PermRevokeSessions,
		PermViewSessionLogs,
		PermReadAllData,
		PermModifyAllData,
		PermViewAuditLogs,
		PermExportData,
		PermReadOwnData,
		PermModifyOwnData,
		PermCollaborate,
		PermShareResources,
	},
	RoleViewer: {
		PermReadOwnData,
		PermModifyOwnData,
		PermCollaborate,
	},
}

var allPermissions = RolePermissions[RoleOwner]

// Permissions returns the full permission catalog.
func Permissions() []Permission {
	out := make([]Permission, len(allPermissions))
	copy(out, allPermissions)
	return out
}

// PermissionsOf returns the capability set for a role. Total: unknown roles
// yield the empty set rather than an error.
func PermissionsOf(role Role) []Permission {
	perms := RolePermissions[role]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// IsValidPermission reports whether the given string names a known permission.
func IsValidPermission(s string) bool {
	for _, p := range allPermissions {
		if p == Permission(s) {
			return true
		}
	}
	return false
}

// ParsePermission validates a permission string at the boundary.
func ParsePermission(s string) (Permission, error) {
	if !IsValidPermission(s) {
		return "", fmt.Errorf("rbac: unknown permission %q: %w", s, shared.ErrValidation)
	}
	return Permission(s), nil
}
