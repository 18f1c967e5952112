package rbac

// Actor describes the authenticated principal making a request. Role and
// status are resolved once per request from a single snapshot of the user
// row; decisions within that request never observe a torn role.
type Actor struct {
	ID     int64
	Role   Role
	Status UserStatus
}

// IsActive reports whether the actor's account may act at all.
func (a Actor) IsActive() bool {
	return a.Status == StatusActive
}

// HasPermission reports whether the role's capability set contains the
// permission. Inputs are assumed validated; an unknown role simply has no
// capabilities.
func HasPermission(role Role, permission Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether the role holds at least one of the
// given permissions.
func HasAnyPermission(role Role, permissions ...Permission) bool {
	for _, p := range permissions {
		if HasPermission(role, p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the role holds every given permission.
func HasAllPermissions(role Role, permissions ...Permission) bool {
	for _, p := range permissions {
		if !HasPermission(role, p) {
			return false
		}
	}
	return true
}

// CanAccessUserData decides read access to another user's data. OWNER and
// ASSISTANT read anyone; VIEWER reads only itself.
func CanAccessUserData(actorRole Role, actorID, targetUserID int64) bool {
	if actorRole == RoleOwner || actorRole == RoleAssistant {
		return true
	}
	if actorRole == RoleViewer {
		return actorID == targetUserID
	}
	return false
}

// CanModifyUserData decides write access to a user account. Self-writes are
// always allowed. OWNER writes anyone. ASSISTANT writes anyone except an
// OWNER account: an assistant must never be able to mutate an owner, even
// indirectly. VIEWER writes only itself.
func CanModifyUserData(actorRole Role, actorID, targetUserID int64, targetRole Role) bool {
	if actorID == targetUserID {
		return true
	}
	if actorRole == RoleOwner {
		return true
	}
	if actorRole == RoleAssistant {
		return targetRole != RoleOwner
	}
	return false
}

// CanAssignRole decides whether the actor may grant targetRole to any user.
// Only OWNER assigns roles; ASSISTANT and VIEWER never do, not even lateral
// or downward assignment.
func CanAssignRole(actorRole Role, targetRole Role) bool {
	return actorRole == RoleOwner
}
